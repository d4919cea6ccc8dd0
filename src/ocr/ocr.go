// Package ocr turns captured frames into text with Tesseract.
package ocr

import (
	"context"
	"errors"
	"image"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// ErrOCR marks a failed recognition (bad image, missing language data, ...).
var ErrOCR = errors.New("ocr failed")

const (
	DefaultLanguage     = "eng"
	DefaultMaxDimension = 1000
	contrastBoost       = 20 // percent
)

// Engine recognizes text in an image for a Tesseract language code.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// Options configures the Tesseract engine.
type Options struct {
	TessdataDir string
	// CaptionMode selects automatic page segmentation, which copes with
	// captions that move around inside the region. Otherwise the frame is
	// treated as one uniform block of text.
	CaptionMode bool
	// MaxDimension bounds the frame area to MaxDimension² before OCR.
	// Zero means DefaultMaxDimension; negative disables preprocessing.
	MaxDimension int
}

// Language is a supported OCR language.
type Language struct {
	Name string
	Code string
}

var SupportedLanguages = []Language{
	{"English", "eng"},
	{"Italiano", "ita"},
	{"Français", "fra"},
	{"Español", "spa"},
	{"Deutsch", "deu"},
	{"Português", "por"},
}

var codePattern = regexp.MustCompile(`^[a-z]{3}(_[a-z]+)?(\+[a-z]{3}(_[a-z]+)?)*$`)

// ValidCode reports whether code looks like a Tesseract language string
// ("eng", "chi_sim", "eng+deu").
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// LanguageAvailable reports whether every language in code has
// traineddata in tessdataDir.
func LanguageAvailable(tessdataDir, code string) bool {
	if tessdataDir == "" || !ValidCode(code) {
		return false
	}
	for _, part := range strings.Split(code, "+") {
		if _, err := os.Stat(filepath.Join(tessdataDir, part+".traineddata")); err != nil {
			return false
		}
	}
	return true
}

// ResolveLanguage returns code when its data is installed, otherwise
// English. With no tessdata directory configured the system installation is
// trusted as is.
func ResolveLanguage(tessdataDir, code string) string {
	if code == "" {
		return DefaultLanguage
	}
	if tessdataDir == "" || LanguageAvailable(tessdataDir, code) {
		return code
	}
	log.Printf("OCR: language %q not found in %s, using %s", code, tessdataDir, DefaultLanguage)
	return DefaultLanguage
}

// InstalledLanguages lists the traineddata files present in tessdataDir.
func InstalledLanguages(tessdataDir string) []string {
	matches, err := filepath.Glob(filepath.Join(tessdataDir, "*.traineddata"))
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".traineddata"))
	}
	return out
}

// Preprocess shrinks frames larger than maxDimension² (keeping aspect
// ratio), converts to grayscale and lifts contrast.
func Preprocess(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w*h > maxDimension*maxDimension {
		if w > h {
			img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
		}
	}
	return adjust.Contrast(effect.Grayscale(img), contrastBoost/100.0)
}
