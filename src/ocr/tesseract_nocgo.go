//go:build !cgo

package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
)

var errNoTesseract = errors.New("tesseract support not compiled in (build with CGO_ENABLED=1)")

// Tesseract is unavailable without cgo; every call fails with ErrOCR.
type Tesseract struct {
	opts Options
}

func NewTesseract(opts Options) *Tesseract {
	return &Tesseract{opts: opts}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	return "", fmt.Errorf("%w: %v", ErrOCR, errNoTesseract)
}

func (t *Tesseract) Close() error { return nil }

func Version() (string, error) {
	return "", errNoTesseract
}
