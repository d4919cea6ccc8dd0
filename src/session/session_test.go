package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"captiocr/src/ocr"
	"captiocr/src/screenshot"
	"captiocr/src/transcript"
)

type fakeCapturer struct {
	mu      sync.Mutex
	err     error
	regions []screenshot.Region
}

func (f *fakeCapturer) Capture(ctx context.Context, r screenshot.Region) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions = append(f.regions, r)
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
}

func (f *fakeCapturer) seen() []screenshot.Region {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]screenshot.Region(nil), f.regions...)
}

// scriptedEngine returns its script in order, repeating the last entry.
// An entry starting with "!" is returned as an OCR error.
type scriptedEngine struct {
	mu     sync.Mutex
	script []string
	calls  int
	langs  []string
}

func (e *scriptedEngine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	e.calls++
	e.langs = append(e.langs, lang)
	s := e.script[i]
	if strings.HasPrefix(s, "!") {
		return "", fmt.Errorf("%w: %s", ocr.ErrOCR, s[1:])
	}
	return s, nil
}

func (e *scriptedEngine) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var testRegion = screenshot.Region{Left: 0, Top: 0, Width: 200, Height: 60}

func fast() Interval { return FixedInterval(time.Millisecond) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHelloWorldScenario(t *testing.T) {
	dir := t.TempDir()
	eng := &scriptedEngine{script: []string{"Hello wor", "Hello world"}}
	l := New(Options{Capturer: &fakeCapturer{}, Engine: eng, OutputDir: dir})

	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "several ticks", func() bool { return eng.count() >= 4 })

	res, err := l.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Status != StatusUser {
		t.Fatalf("status = %s, want %s", res.Status, StatusUser)
	}

	segs := l.Sink().Segments()
	if len(segs) != 2 || segs[0].Text != "Hello wor" || segs[1].Text != "ld" {
		t.Fatalf("segments = %+v", segs)
	}
	if got := l.Text(); got != "Hello world" {
		t.Fatalf("transcript = %q, want %q", got, "Hello world")
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "] Hello wor\n") || !strings.Contains(out, "] ld\n") {
		t.Fatalf("unexpected file:\n%s", out)
	}
	if filepath.Dir(res.Path) != dir || !strings.HasPrefix(filepath.Base(res.Path), transcript.FilePrefix) {
		t.Fatalf("unexpected path %s", res.Path)
	}
	if res.Segments != 2 {
		t.Fatalf("result segments = %d", res.Segments)
	}
}

func TestDegradedAfterConsecutiveCaptureFailures(t *testing.T) {
	capt := &fakeCapturer{err: fmt.Errorf("%w: monitor gone", screenshot.ErrCapture)}
	l := New(Options{Capturer: capt, Engine: &scriptedEngine{script: []string{"unused"}}, OutputDir: t.TempDir()})

	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop itself")
	}

	res := l.Result()
	if res.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", res.Status)
	}
	if !errors.Is(res.Err, ErrDegradedSession) || !errors.Is(res.Err, screenshot.ErrCapture) {
		t.Fatalf("unexpected err %v", res.Err)
	}
	if res.Ticks != DefaultFailureThreshold {
		t.Fatalf("ticks = %d, want %d", res.Ticks, DefaultFailureThreshold)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("degraded session should still flush: %v", err)
	}
	if l.State() != StateStopped {
		t.Fatalf("state = %s", l.State())
	}

	again, err := l.Stop()
	if !errors.Is(err, ErrDegradedSession) || again.Path != res.Path {
		t.Fatalf("Stop after degradation = %+v, %v", again, err)
	}
}

func TestTransientFailuresDoNotDegrade(t *testing.T) {
	eng := &scriptedEngine{script: []string{"!a", "!b", "first line", "!c", "!d", "first line more"}}
	l := New(Options{Capturer: &fakeCapturer{}, Engine: eng, OutputDir: t.TempDir()})

	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "script to run", func() bool { return eng.count() >= 8 })
	res, err := l.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Status != StatusUser {
		t.Fatalf("status = %s", res.Status)
	}
	if got := l.Text(); got != "first line more" {
		t.Fatalf("transcript = %q", got)
	}
}

func TestStopTwiceReturnsSameResult(t *testing.T) {
	l := New(Options{Capturer: &fakeCapturer{}, Engine: &scriptedEngine{script: []string{"some caption"}}, OutputDir: t.TempDir()})
	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := l.Stop()
	if err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	second, err := l.Stop()
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if first != second {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}

	entries, _ := os.ReadDir(filepath.Dir(first.Path))
	if len(entries) != 1 {
		t.Fatalf("expected one transcript file, got %d", len(entries))
	}
}

func TestStartTwiceAndInvalidRegion(t *testing.T) {
	l := New(Options{Capturer: &fakeCapturer{}, Engine: &scriptedEngine{script: []string{""}}, OutputDir: t.TempDir()})

	err := l.Start(context.Background(), screenshot.Region{Width: 10, Height: 10}, "eng", fast())
	if !errors.Is(err, screenshot.ErrRegionTooSmall) {
		t.Fatalf("expected ErrRegionTooSmall, got %v", err)
	}
	if l.State() != StateIdle {
		t.Fatalf("failed Start changed state to %s", l.State())
	}
	if _, err := l.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop on idle loop = %v", err)
	}

	if err := l.Start(context.Background(), testRegion, "", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()
	if err := l.Start(context.Background(), testRegion, "eng", fast()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestUpdateRegionTakesEffectNextTick(t *testing.T) {
	capt := &fakeCapturer{}
	eng := &scriptedEngine{script: []string{"Hello there friend"}}
	l := New(Options{Capturer: capt, Engine: eng, OutputDir: t.TempDir()})
	if err := l.Start(context.Background(), testRegion, "ita", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := l.UpdateRegion(screenshot.Region{Width: 5, Height: 5}); !errors.Is(err, screenshot.ErrRegionTooSmall) {
		t.Fatalf("expected ErrRegionTooSmall, got %v", err)
	}

	moved := screenshot.Region{Left: 100, Top: 300, Width: 400, Height: 80}
	if err := l.UpdateRegion(moved); err != nil {
		t.Fatalf("UpdateRegion: %v", err)
	}
	waitFor(t, "moved region", func() bool {
		for _, r := range capt.seen() {
			if r.Left == 100 && r.Top == 300 {
				return true
			}
		}
		return false
	})

	if _, err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// Same text after the move is still a duplicate.
	if n := len(l.Sink().Segments()); n != 1 {
		t.Fatalf("segments = %d, want 1", n)
	}
	if got := l.Snapshot().Region; got.Left != 100 || got.Width != 400 {
		t.Fatalf("snapshot region = %+v", got)
	}
	if eng.langs[0] != "ita" {
		t.Fatalf("engine language = %q", eng.langs[0])
	}
	if err := l.UpdateRegion(moved); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("UpdateRegion after stop = %v", err)
	}
}

func TestRequestStopReturnsBeforeFinalWrite(t *testing.T) {
	l := New(Options{Capturer: &fakeCapturer{}, Engine: &scriptedEngine{script: []string{"some caption"}}, OutputDir: t.TempDir()})
	if err := l.RequestStop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("RequestStop on idle loop = %v, want ErrNotRunning", err)
	}
	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := l.RequestStop(); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}
	if err := l.RequestStop(); err != nil {
		t.Fatalf("second RequestStop: %v", err)
	}
	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop")
	}
	res := l.Result()
	if res.Status != StatusUser || res.Path == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New(Options{Capturer: &fakeCapturer{}, Engine: &scriptedEngine{script: []string{"caption text"}}, OutputDir: t.TempDir()})
	if err := l.Start(ctx, testRegion, "eng", FixedInterval(time.Hour)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "first segment", func() bool { return l.Snapshot().Segments == 1 })
	cancel()

	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("loop ignored cancellation")
	}
	if res := l.Result(); res.Status != StatusCancelled || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
}

func TestPersistenceFailureKeepsTranscript(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := &scriptedEngine{script: []string{"kept in memory"}}
	l := New(Options{Capturer: &fakeCapturer{}, Engine: eng, OutputDir: blocker})
	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "segment", func() bool { return l.Snapshot().Segments == 1 })

	res, err := l.Stop()
	var perr *transcript.PersistenceError
	if !errors.As(err, &perr) || !errors.Is(err, transcript.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if res.Status != StatusPersistFailed || res.Path != "" {
		t.Fatalf("result = %+v", res)
	}

	path, err := l.Sink().FinalizeTo(t.TempDir(), "")
	if err != nil {
		t.Fatalf("retry elsewhere: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "kept in memory") {
		t.Fatalf("retried file missing text:\n%s", data)
	}
}

func TestUnchangedFramesSkipOCR(t *testing.T) {
	eng := &scriptedEngine{script: []string{"static caption"}}
	l := New(Options{
		Capturer:  &fakeCapturer{},
		Engine:    eng,
		OutputDir: t.TempDir(),
		Detector:  screenshot.NewChangeDetector(-1),
	})
	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "ticks", func() bool { return l.Snapshot().Ticks >= 7 })
	res, err := l.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	// first frame, then one forced recognition after every run of skips
	want := 1 + (res.Ticks-1)/(screenshot.MaxConsecutiveSkips+1)
	if n := eng.count(); n != want {
		t.Fatalf("OCR ran %d times over %d identical frames, want %d", n, res.Ticks, want)
	}
}

// captionScreen renders one caption per capture, repeating the last, and
// remembers which caption the latest frame showed.
type captionScreen struct {
	mu       sync.Mutex
	captions []string
	captures int
	showing  string
}

func (c *captionScreen) Capture(ctx context.Context, r screenshot.Region) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := min(c.captures, len(c.captions)-1)
	c.captures++
	c.showing = c.captions[i]

	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(8, r.Height/2),
	}
	d.DrawString(c.showing)
	return img, nil
}

func (c *captionScreen) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showing, nil
}

func TestOneGlyphCaptionChangeReachesTranscript(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
	}{
		{name: "digit", before: "price is 100 dollars", after: "price is 400 dollars"},
		{name: "trailing period", before: "we should go now", after: "we should go now."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen := &captionScreen{captions: []string{tt.before, tt.before, tt.after}}
			l := New(Options{
				Capturer:  screen,
				Engine:    screen,
				OutputDir: t.TempDir(),
				Detector:  screenshot.NewChangeDetector(-1),
			})
			if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitFor(t, "ticks", func() bool { return l.Snapshot().Ticks >= 3+screenshot.MaxConsecutiveSkips+1 })
			if _, err := l.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}

			segs := l.Sink().Segments()
			if len(segs) != 2 {
				t.Fatalf("segments = %+v, want the caption before and after the change", segs)
			}
			if segs[0].Text != tt.before {
				t.Fatalf("first segment = %q, want %q", segs[0].Text, tt.before)
			}
			if segs[1].Text == "" || !strings.HasSuffix(tt.after, segs[1].Text) {
				t.Fatalf("second segment %q is not the new part of %q", segs[1].Text, tt.after)
			}
		})
	}
}

func TestDebugFramesWritten(t *testing.T) {
	debugDir := filepath.Join(t.TempDir(), "frames")
	l := New(Options{
		Capturer:  &fakeCapturer{},
		Engine:    &scriptedEngine{script: []string{"frame text"}},
		OutputDir: t.TempDir(),
		DebugDir:  debugDir,
	})
	if err := l.Start(context.Background(), testRegion, "eng", fast()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "tick", func() bool { return l.Snapshot().Ticks >= 2 })
	if _, err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(debugDir, "frame_*.png"))
	if len(matches) == 0 {
		t.Fatal("no debug frames written")
	}
}
