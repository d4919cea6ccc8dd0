//go:build cgo

package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"captiocr/src/screenshot"
)

// Tesseract recognizes text through libtesseract. One client is reused
// across calls; gosseract clients are not safe for concurrent use, so calls
// are serialized.
type Tesseract struct {
	opts   Options
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates the engine. The Tesseract client is created on first
// use.
func NewTesseract(opts Options) *Tesseract {
	return &Tesseract{opts: opts}
}

func (t *Tesseract) ensureClient() (*gosseract.Client, error) {
	if t.client != nil {
		return t.client, nil
	}
	client := gosseract.NewClient()
	if t.opts.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataDir); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: set tessdata path: %v", ErrOCR, err)
		}
	}
	mode := gosseract.PSM_SINGLE_BLOCK
	if t.opts.CaptionMode {
		mode = gosseract.PSM_AUTO
	}
	if err := client.SetPageSegMode(mode); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: set page segmentation: %v", ErrOCR, err)
	}
	t.client = client
	return client, nil
}

// Recognize runs OCR on img in lang.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}
	if img == nil || img.Bounds().Empty() {
		return "", fmt.Errorf("%w: empty image", ErrOCR)
	}
	if t.opts.MaxDimension >= 0 {
		img = Preprocess(img, t.opts.MaxDimension)
	}
	data, err := screenshot.EncodePNG(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	client, err := t.ensureClient()
	if err != nil {
		return "", err
	}
	if err := client.SetLanguage(ResolveLanguage(t.opts.TessdataDir, lang)); err != nil {
		return "", fmt.Errorf("%w: set language %q: %v", ErrOCR, lang, err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("%w: set image: %v", ErrOCR, err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOCR, err)
	}
	return text, nil
}

// Close releases the Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// Version returns the linked Tesseract version.
func Version() (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version(), nil
}
