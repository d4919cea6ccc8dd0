package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"captiocr/src/hotkey"
	"captiocr/src/messages"
	"captiocr/src/ocr"
	"captiocr/src/profile"
	"captiocr/src/screenshot"
	"captiocr/src/session"
	"captiocr/src/singleinstance"
)

// Session is the capture session driven by the loop.
type Session interface {
	Start(ctx context.Context, region screenshot.Region, language string, interval session.Interval) error
	RequestStop() error
	UpdateRegion(region screenshot.Region) error
	Snapshot() session.Snapshot
	Done() <-chan struct{}
	Result() session.Result
	Text() string
}

// Options wires the loop. Session is required; the rest is optional.
type Options struct {
	Session Session
	// Server, when set, is started and serves STOP/REGION/STATUS.
	Server singleinstance.Server
	// Profiles receives the finished setup as lastconfig.
	Profiles *profile.Store
	// CopyToClipboard receives the transcript text when the session ends.
	CopyToClipboard func(text string) error
	// Tooltip shows the current state (tray).
	Tooltip func(text string)
	// Notify alerts the user when a session ends abnormally.
	Notify func(title, message string)
}

// Loop is the single-threaded coordinator: every start/stop/region/status
// request, whatever its source, is handled on the goroutine running Run.
type Loop struct {
	opts     Options
	start    messages.StartCapture
	msgs     chan messages.Message
	hotkeyCh chan struct{}
	hk       *hotkey.Listener
	// stopConns are STOP clients waiting for the transcript path.
	stopConns []singleinstance.Conn
}

// New creates a new event loop.
func New(opts Options) *Loop {
	return &Loop{
		opts:     opts,
		msgs:     make(chan messages.Message, 8),
		hotkeyCh: make(chan struct{}, 4),
	}
}

// StartHotkey registers the global stop hotkey and posts presses into the
// loop.
func (l *Loop) StartHotkey(combo string) error {
	if combo == "" {
		return nil
	}
	hk, err := hotkey.Listen(combo, l.HotkeyPressed)
	if err != nil {
		return err
	}
	l.hk = hk
	return nil
}

// HotkeyPressed posts a stop request without blocking the hook goroutine.
func (l *Loop) HotkeyPressed() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
	}
}

// Post delivers a message to the loop without blocking. Returns false when
// the queue is full.
func (l *Loop) Post(msg messages.Message) bool {
	select {
	case l.msgs <- msg:
		return true
	default:
		log.Printf("eventloop: queue full, dropping %s", msg.Type())
		return false
	}
}

// Run starts the session described by start and coordinates it until it
// ends. It returns the session result; ctx cancellation stops the session
// like a user stop.
func (l *Loop) Run(ctx context.Context, start messages.StartCapture) (session.Result, error) {
	if l.opts.Session == nil {
		return session.Result{}, errors.New("eventloop: Session is required")
	}
	if l.hk != nil {
		defer l.hk.Stop()
	}

	reqCh := make(chan singleinstance.Conn, 4)
	if l.opts.Server != nil {
		if err := l.opts.Server.Start(ctx); err != nil {
			return session.Result{}, fmt.Errorf("control channel: %w", err)
		}
		defer l.opts.Server.Close()
		log.Printf("Resident listening on 127.0.0.1:%d", l.opts.Server.Port())
		go func() {
			for {
				conn, err := l.opts.Server.Next(ctx)
				if err != nil {
					return
				}
				select {
				case reqCh <- conn:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}
		}()
	}

	sessCtx, cancelSess := context.WithCancel(context.Background())
	defer cancelSess()
	if err := l.startSession(sessCtx, start); err != nil {
		return session.Result{}, err
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("eventloop: shutdown requested")
			if _, err := l.handle(messages.StopCapture{Source: messages.SourceSignal}); err != nil {
				log.Printf("eventloop: stop failed: %v", err)
			}
			res := l.finish()
			return res, res.Err
		case <-l.hotkeyCh:
			l.handle(messages.StopCapture{Source: messages.SourceHotkey})
		case msg := <-l.msgs:
			l.handle(msg)
		case conn := <-reqCh:
			l.handleConn(conn)
		case <-l.opts.Session.Done():
			res := l.finish()
			return res, res.Err
		}
	}
}

func (l *Loop) startSession(ctx context.Context, start messages.StartCapture) error {
	if start.Language == "" {
		start.Language = ocr.DefaultLanguage
	}
	if start.MinInterval <= 0 {
		start.MinInterval = session.DefaultMinInterval
	}
	if start.MaxInterval <= 0 {
		start.MaxInterval = max(session.DefaultMaxInterval, start.MinInterval)
	}
	interval := session.Interval{Min: start.MinInterval, Max: start.MaxInterval, MaxSimilar: start.MaxSimilar}
	if err := l.opts.Session.Start(ctx, start.Region, start.Language, interval); err != nil {
		return err
	}
	l.start = start
	l.tooltip(fmt.Sprintf("CaptiOCR - capturing %dx%d (%s)", start.Region.Width, start.Region.Height, start.Language))
	return nil
}

// handle applies one message and returns the reply payload for control
// clients. A stop only signals the session; the Done case finishes it.
func (l *Loop) handle(msg messages.Message) (string, error) {
	switch m := msg.(type) {
	case messages.StopCapture:
		log.Printf("eventloop: stop requested (%s)", m.Source)
		l.tooltip("CaptiOCR - saving transcript...")
		return "", l.opts.Session.RequestStop()
	case messages.UpdateRegion:
		if err := l.opts.Session.UpdateRegion(m.Region); err != nil {
			return "", err
		}
		l.start.Region = m.Region.Normalized()
		return "", nil
	case messages.StatusRequest:
		s := l.opts.Session.Snapshot()
		return fmt.Sprintf("%s %d %d", s.State, s.Ticks, s.Segments), nil
	default:
		return "", fmt.Errorf("unsupported message %s", msg.Type())
	}
}

func (l *Loop) handleConn(conn singleinstance.Conn) {
	msg, err := requestMessage(conn.Request())
	if err != nil {
		_ = conn.RespondError(err.Error())
		_ = conn.Close()
		return
	}
	reply, err := l.handle(msg)
	if err != nil {
		_ = conn.RespondError(err.Error())
		_ = conn.Close()
		return
	}
	if _, ok := msg.(messages.StopCapture); ok {
		// Answered with the transcript path once the session is done.
		l.stopConns = append(l.stopConns, conn)
		return
	}
	_ = conn.Respond(reply)
	_ = conn.Close()
}

// requestMessage maps a control request to a loop message.
func requestMessage(req singleinstance.Request) (messages.Message, error) {
	switch strings.ToUpper(req.Command) {
	case singleinstance.CmdStop:
		return messages.StopCapture{Source: messages.SourceControl}, nil
	case singleinstance.CmdRegion:
		r, err := screenshot.Parse(req.Arg)
		if err != nil {
			return nil, err
		}
		return messages.UpdateRegion{Region: r}, nil
	case singleinstance.CmdStatus:
		return messages.StatusRequest{}, nil
	}
	return nil, fmt.Errorf("unknown command %q", req.Command)
}

// finish waits for the session to stop, answers pending STOP clients and
// runs the end-of-session steps.
func (l *Loop) finish() session.Result {
	<-l.opts.Session.Done()
	res := l.opts.Session.Result()
	for _, conn := range l.stopConns {
		if res.Err != nil {
			_ = conn.RespondError(res.Err.Error())
		} else {
			_ = conn.Respond(res.Path)
		}
		_ = conn.Close()
	}
	l.stopConns = nil
	l.onEnded(messages.SessionEnded{Result: res})
	return res
}

func (l *Loop) onEnded(m messages.SessionEnded) {
	res := m.Result
	switch res.Status {
	case session.StatusUser, session.StatusCancelled:
		log.Printf("eventloop: capture saved to %s (%d segments)", res.Path, res.Segments)
		l.tooltip("CaptiOCR - saved " + res.Path)
	case session.StatusDegraded:
		log.Printf("eventloop: capture ended after repeated failures: %v", res.Err)
		l.tooltip("CaptiOCR - capture failed, partial transcript saved")
		l.notify("Capture stopped", fmt.Sprintf("Text recognition kept failing. Partial transcript: %s", res.Path))
	case session.StatusPersistFailed:
		log.Printf("eventloop: transcript could not be written: %v", res.Err)
		l.tooltip("CaptiOCR - could not save transcript")
		l.notify("Transcript not saved", fmt.Sprint(res.Err))
	}

	if l.opts.CopyToClipboard != nil {
		if text := l.opts.Session.Text(); text != "" {
			if err := l.opts.CopyToClipboard(text); err != nil {
				log.Printf("eventloop: clipboard copy failed: %v", err)
			}
		}
	}

	if l.opts.Profiles != nil {
		last := profile.Profile{
			Region:      l.start.Region,
			Language:    l.start.Language,
			Debug:       l.start.Debug,
			CaptionMode: l.start.CaptionMode,
			MinInterval: l.start.MinInterval.Seconds(),
			MaxInterval: l.start.MaxInterval.Seconds(),
			MaxSimilar:  l.start.MaxSimilar,
		}
		if err := l.opts.Profiles.SaveLast(last); err != nil {
			log.Printf("eventloop: saving %s failed: %v", profile.LastName, err)
		}
	}
}

func (l *Loop) tooltip(text string) {
	if l.opts.Tooltip != nil {
		l.opts.Tooltip(text)
	}
}

func (l *Loop) notify(title, message string) {
	if l.opts.Notify != nil {
		l.opts.Notify(title, message)
	}
}
