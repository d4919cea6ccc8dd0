// Package session runs a caption capture session: a background loop that
// captures a screen region at an adaptive interval, recognizes it, drops
// text already seen and appends the rest to a transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"captiocr/src/dedup"
	"captiocr/src/logutil"
	"captiocr/src/ocr"
	"captiocr/src/screenshot"
	"captiocr/src/textproc"
	"captiocr/src/transcript"
)

var (
	ErrDegradedSession = errors.New("session degraded after consecutive failures")
	ErrAlreadyStarted  = errors.New("session already started")
	ErrNotRunning      = errors.New("session not running")
)

const (
	DefaultFailureThreshold = 3
	DefaultOCRDeadline      = 20 * time.Second
)

// State is the lifecycle position of a Loop.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status tells how a session ended.
type Status string

const (
	StatusUser          Status = "user"
	StatusDegraded      Status = "degraded"
	StatusCancelled     Status = "cancelled"
	StatusPersistFailed Status = "persist_failed"
)

// Options wires a Loop to its collaborators. Capturer and Engine are
// required.
type Options struct {
	Capturer screenshot.Capturer
	Engine   ocr.Engine
	// Sink receives accepted text. When nil one is created in OutputDir at
	// Start.
	Sink       *transcript.Sink
	OutputDir  string
	OutputName string
	// Window is the dedup history. Defaults to dedup.New(dedup.Options{}).
	Window           *dedup.Window
	FailureThreshold int
	OCRDeadline      time.Duration
	// Detector skips OCR for frames that look the same as the previous one.
	Detector    *screenshot.ChangeDetector
	CaptionMode bool
	// DebugDir, when set, receives every captured frame as PNG.
	DebugDir string
	Now      func() time.Time
}

// Result summarizes a finished session.
type Result struct {
	ID       string
	Path     string
	Status   Status
	Ticks    int
	Segments int
	Err      error
}

// Snapshot is a point-in-time view of a Loop.
type Snapshot struct {
	ID       string
	State    State
	Ticks    int
	Segments int
	Failures int
	Region   screenshot.Region
}

// Loop is one capture session. It is created idle, runs once and ends
// stopped; a new session needs a new Loop.
type Loop struct {
	opts Options
	id   string

	regionCh chan screenshot.Region
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	state    State
	region   screenshot.Region
	language string
	ticks    int
	failures int
	result   Result
}

// New creates an idle loop.
func New(opts Options) *Loop {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.OCRDeadline <= 0 {
		opts.OCRDeadline = DefaultOCRDeadline
	}
	if opts.Window == nil {
		opts.Window = dedup.New(dedup.Options{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{
		opts:     opts,
		id:       uuid.NewString(),
		regionCh: make(chan screenshot.Region, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the session id used in logs.
func (l *Loop) ID() string { return l.id }

// Start validates region and launches the capture goroutine. The first tick
// runs immediately.
func (l *Loop) Start(ctx context.Context, region screenshot.Region, language string, interval Interval) error {
	if l.opts.Capturer == nil || l.opts.Engine == nil {
		return errors.New("session: Capturer and Engine are required")
	}
	region = region.Normalized()
	if err := region.Validate(); err != nil {
		return err
	}
	if language == "" {
		language = ocr.DefaultLanguage
	}

	l.mu.Lock()
	if l.state != StateIdle {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.state = StateRunning
	l.region = region
	l.language = language
	if l.opts.Sink == nil {
		l.opts.Sink = transcript.NewSink(l.opts.OutputDir, transcript.Header{
			Started:     l.opts.Now(),
			Language:    language,
			CaptionMode: l.opts.CaptionMode,
			Region:      region.String(),
		})
	}
	l.mu.Unlock()

	log.Printf("Session %s: started region=%s lang=%s interval=%v..%v", l.id, region, language, interval.Min, interval.Max)
	go l.run(ctx, interval)
	return nil
}

// UpdateRegion replaces the capture region from the next tick on. Only the
// latest pending update is kept. Dedup history is left alone.
func (l *Loop) UpdateRegion(region screenshot.Region) error {
	region = region.Normalized()
	if err := region.Validate(); err != nil {
		return err
	}
	if l.State() != StateRunning {
		return ErrNotRunning
	}
	for {
		select {
		case l.regionCh <- region:
			log.Printf("Session %s: region update queued %s", l.id, region)
			return nil
		default:
			select {
			case <-l.regionCh:
			default:
			}
		}
	}
}

// Stop asks the loop to finish, waits for the in-flight tick and the final
// write, and returns the result. Calling Stop again returns the same result.
func (l *Loop) Stop() (Result, error) {
	if err := l.RequestStop(); err != nil {
		return Result{}, err
	}
	<-l.done
	r := l.Result()
	return r, r.Err
}

// RequestStop asks the loop to finish and returns immediately. Done is
// closed once the final write is over.
func (l *Loop) RequestStop() error {
	l.mu.Lock()
	if l.state == StateIdle {
		l.mu.Unlock()
		return ErrNotRunning
	}
	if l.state == StateRunning {
		l.state = StateStopping
	}
	l.mu.Unlock()

	l.requestStop()
	return nil
}

func (l *Loop) requestStop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Done is closed once the loop has stopped, whatever the reason.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Result returns the session result. Only meaningful after Done is closed.
func (l *Loop) Result() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result
}

// State returns the lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot returns counters for status reporting.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{
		ID:       l.id,
		State:    l.state,
		Ticks:    l.ticks,
		Failures: l.failures,
		Region:   l.region,
	}
	if l.opts.Sink != nil {
		s.Segments = l.opts.Sink.Len()
	}
	return s
}

// Text returns the transcript accumulated so far.
func (l *Loop) Text() string {
	l.mu.Lock()
	sink := l.opts.Sink
	l.mu.Unlock()
	if sink == nil {
		return ""
	}
	return sink.Text()
}

func (l *Loop) stopping() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func (l *Loop) run(ctx context.Context, interval Interval) {
	status := StatusUser
	var endErr error

	for {
		if l.stopping() {
			break
		}
		if ctx.Err() != nil {
			status = StatusCancelled
			break
		}

		newText, err := l.tick(ctx)
		if err != nil {
			l.mu.Lock()
			l.failures++
			failures := l.failures
			l.mu.Unlock()
			log.Printf("Session %s: tick failed (%d/%d): %v", l.id, failures, l.opts.FailureThreshold, err)
			if failures >= l.opts.FailureThreshold {
				status = StatusDegraded
				endErr = fmt.Errorf("%w: last error: %w", ErrDegradedSession, err)
				break
			}
		} else {
			l.mu.Lock()
			l.failures = 0
			l.mu.Unlock()
		}

		wait := interval.Observe(newText)
		logutil.Debugf("Session %s: next tick in %v", l.id, wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-l.stopCh:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}

	l.finish(status, endErr)
}

// tick runs one capture → OCR → normalize → dedup → append cycle. It
// reports whether new text reached the transcript.
func (l *Loop) tick(ctx context.Context) (bool, error) {
	select {
	case r := <-l.regionCh:
		l.mu.Lock()
		l.region = r
		l.mu.Unlock()
		if l.opts.Detector != nil {
			l.opts.Detector.Reset()
		}
		log.Printf("Session %s: region now %s", l.id, r)
	default:
	}

	l.mu.Lock()
	l.ticks++
	n := l.ticks
	region := l.region
	lang := l.language
	l.mu.Unlock()

	img, err := l.opts.Capturer.Capture(ctx, region)
	if err != nil {
		return false, err
	}
	if l.opts.DebugDir != "" {
		l.saveFrame(img, n)
	}
	if l.opts.Detector != nil && l.opts.Detector.Unchanged(img) {
		logutil.Debugf("Session %s: tick %d frame unchanged, skipping OCR", l.id, n)
		return false, nil
	}

	ocrCtx, cancel := context.WithTimeout(ctx, l.opts.OCRDeadline)
	raw, err := l.opts.Engine.Recognize(ocrCtx, img, lang)
	cancel()
	if err != nil {
		if l.opts.Detector != nil {
			l.opts.Detector.Reset()
		}
		if !errors.Is(err, ocr.ErrOCR) {
			err = fmt.Errorf("%w: %w", ocr.ErrOCR, err)
		}
		return false, err
	}

	cleaned := textproc.Normalize(raw)
	residue := l.opts.Window.Submit(cleaned)
	logutil.Debugf("Session %s: tick %d raw=%q residue=%q", l.id, n, logutil.Sanitize(raw, 80), residue)
	if residue == "" {
		return false, nil
	}
	l.opts.Sink.Append(residue, l.opts.Now())
	log.Printf("Session %s: tick %d appended %d chars", l.id, n, len(residue))
	return true, nil
}

func (l *Loop) saveFrame(img image.Image, n int) {
	data, err := screenshot.EncodePNG(img)
	if err != nil {
		log.Printf("Session %s: debug frame encode failed: %v", l.id, err)
		return
	}
	if err := os.MkdirAll(l.opts.DebugDir, 0o755); err != nil {
		log.Printf("Session %s: debug dir: %v", l.id, err)
		return
	}
	name := filepath.Join(l.opts.DebugDir, fmt.Sprintf("frame_%s_%04d.png", l.id[:8], n))
	if err := os.WriteFile(name, data, 0o644); err != nil {
		log.Printf("Session %s: debug frame write failed: %v", l.id, err)
	}
}

func (l *Loop) finish(status Status, endErr error) {
	l.mu.Lock()
	l.state = StateStopping
	ticks := l.ticks
	sink := l.opts.Sink
	l.mu.Unlock()

	path, err := sink.Finalize(l.opts.OutputName)
	if err != nil {
		status = StatusPersistFailed
		endErr = errors.Join(endErr, err)
		log.Printf("Session %s: transcript write failed, %d segments kept in memory: %v", l.id, sink.Len(), err)
	}

	res := Result{
		ID:       l.id,
		Path:     path,
		Status:   status,
		Ticks:    ticks,
		Segments: sink.Len(),
		Err:      endErr,
	}
	switch status {
	case StatusUser:
		log.Printf("Session %s: stopped by user, %d ticks, %d segments -> %s", l.id, ticks, res.Segments, path)
	default:
		log.Printf("Session %s: ended (%s), %d ticks, %d segments -> %s: %v", l.id, status, ticks, res.Segments, path, endErr)
	}

	l.mu.Lock()
	l.state = StateStopped
	l.result = res
	l.mu.Unlock()
	close(l.done)
}

// Sink returns the transcript sink so a failed write can be retried
// elsewhere with FinalizeTo.
func (l *Loop) Sink() *transcript.Sink {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opts.Sink
}
