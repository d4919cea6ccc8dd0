// Package tray shows the capture state in the system tray.
package tray

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log"
	"sync"

	"github.com/getlantern/systray"
)

// Config holds the tray text and menu callbacks. Callbacks run on the tray
// goroutine and must not block.
type Config struct {
	Title     string
	Tooltip   string
	OnStop    func()
	OnOpenDir func()
	OnExit    func()
}

// Tray is the running tray icon.
type Tray struct {
	cfg  Config
	once sync.Once
}

var (
	mu      sync.Mutex
	ready   bool
	pending string
)

// New prepares a tray icon. Call Run to show it.
func New(cfg Config) (*Tray, error) {
	if cfg.Title == "" {
		cfg.Title = "CaptiOCR"
	}
	return &Tray{cfg: cfg}, nil
}

// Run shows the icon and blocks until Destroy or Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(Icon())
	systray.SetTitle(t.cfg.Title)

	mu.Lock()
	ready = true
	tip := t.cfg.Tooltip
	if pending != "" {
		tip = pending
	}
	mu.Unlock()
	systray.SetTooltip(tip)

	mStop := systray.AddMenuItem("Stop capture", "Stop and save the transcript")
	mOpen := systray.AddMenuItem("Open captures folder", "Show where transcripts are saved")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Stop capture and quit")

	go func() {
		for {
			select {
			case <-mStop.ClickedCh:
				call(t.cfg.OnStop)
			case <-mOpen.ClickedCh:
				call(t.cfg.OnOpenDir)
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	mu.Lock()
	ready = false
	mu.Unlock()
	call(t.cfg.OnExit)
}

func call(f func()) {
	if f != nil {
		f()
	}
}

// Destroy removes the icon. Safe to call more than once.
func (t *Tray) Destroy() {
	t.once.Do(systray.Quit)
}

// UpdateTooltip sets the tooltip, or remembers it until the icon is ready.
func UpdateTooltip(text string) {
	mu.Lock()
	defer mu.Unlock()
	if !ready {
		pending = text
		return
	}
	systray.SetTooltip(text)
	log.Printf("tray: tooltip %q", text)
}

// Icon returns a 16x16 PNG: a caption bar inside a frame.
func Icon() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	frame := color.NRGBA{0x00, 0x78, 0xd4, 0xff}
	text := color.NRGBA{0xff, 0xff, 0xff, 0xff}
	for i := 0; i < 16; i++ {
		img.Set(i, 0, frame)
		img.Set(i, 15, frame)
		img.Set(0, i, frame)
		img.Set(15, i, frame)
	}
	for y := 9; y <= 12; y++ {
		for x := 2; x <= 13; x++ {
			img.Set(x, y, frame)
		}
	}
	for x := 3; x <= 12; x += 2 {
		img.Set(x, 10, text)
		img.Set(x, 11, text)
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
