package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"runtime"
	"sync"

	"captiocr/src/ocr"
)

// ErrBusy is returned when the single-slot queue is occupied.
var ErrBusy = errors.New("ocr worker busy")

// ResultCallback is invoked on OCR completion (from a worker goroutine).
type ResultCallback func(text string, err error)

// Pool is a fixed-size OCR worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	engine ocr.Engine
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
}

type job struct {
	ctx  context.Context
	img  image.Image
	lang string
	cb   ResultCallback
}

// New creates a worker pool around engine. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(engine ocr.Engine, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{engine: engine, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				b := j.img.Bounds()
				log.Printf("Worker: Starting OCR for frame %dx%d lang=%s", b.Dx(), b.Dy(), j.lang)
				text, err := recognizeWithContext(j.ctx, p.engine, j.img, j.lang)
				log.Printf("Worker: OCR completed, text length=%d, err=%v", len(text), err)
				j.cb(text, err)
			}
		}()
	}
}

// Submit enqueues an OCR job if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, img image.Image, lang string, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, img: img, lang: lang, cb: cb}:
		return true
	default:
		return false
	}
}

// Recognize submits a job and waits for its result or for ctx to end.
func (p *Pool) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	if !p.Submit(ctx, img, lang, func(text string, err error) {
		resCh <- result{text, err}
	}) {
		return "", fmt.Errorf("%w: %w", ocr.ErrOCR, ErrBusy)
	}
	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ocr.ErrOCR, ctx.Err())
	}
}

// Close stops the pool after draining current work. Safe to call twice.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}

// recognizeWithContext runs the engine with a deadline-aware shim: an
// engine that ignores ctx keeps running in the background while the caller
// gets the timeout.
func recognizeWithContext(ctx context.Context, engine ocr.Engine, img image.Image, lang string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return engine.Recognize(ctx, img, lang)
	}
	resCh := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := engine.Recognize(ctx, img, lang)
		resCh <- struct {
			text string
			err  error
		}{text, err}
	}()
	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ocr.ErrOCR, ctx.Err())
	}
}
