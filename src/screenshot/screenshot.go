package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"

	"github.com/kbinani/screenshot"
)

// ErrCapture marks a failed frame grab (region off-screen, display gone, ...).
var ErrCapture = errors.New("capture failed")

// Capturer grabs a raster image of a region.
type Capturer interface {
	Capture(ctx context.Context, region Region) (image.Image, error)
}

// Display is one active monitor as reported by the OS.
type Display struct {
	Index  int
	Bounds image.Rectangle
}

// displayBackend is the slice of kbinani/screenshot the capturer needs;
// tests swap it out.
type displayBackend interface {
	NumActiveDisplays() int
	GetDisplayBounds(i int) image.Rectangle
	CaptureRect(r image.Rectangle) (*image.RGBA, error)
}

type kbinaniBackend struct{}

func (kbinaniBackend) NumActiveDisplays() int { return screenshot.NumActiveDisplays() }
func (kbinaniBackend) GetDisplayBounds(i int) image.Rectangle { return screenshot.GetDisplayBounds(i) }
func (kbinaniBackend) CaptureRect(r image.Rectangle) (*image.RGBA, error) { return screenshot.CaptureRect(r) }

// DisplayCapturer captures regions of the live desktop.
type DisplayCapturer struct {
	backend displayBackend
}

// NewDisplayCapturer returns a Capturer backed by the OS screen APIs.
func NewDisplayCapturer() *DisplayCapturer {
	return &DisplayCapturer{backend: kbinaniBackend{}}
}

// Capture grabs region. The monitor the region was selected on must still be
// present and the region must overlap it; otherwise the display layout has
// changed since selection and the frame is rejected.
func (c *DisplayCapturer) Capture(ctx context.Context, region Region) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}

	n := c.backend.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("%w: no active displays found", ErrCapture)
	}
	if region.MonitorID >= n {
		return nil, fmt.Errorf("%w: monitor %d not connected (%d active)", ErrCapture, region.MonitorID, n)
	}

	bounds := region.Bounds()
	display := c.backend.GetDisplayBounds(region.MonitorID)
	if !bounds.Overlaps(display) {
		return nil, fmt.Errorf("%w: region %v is outside monitor %d %v", ErrCapture, bounds, region.MonitorID, display)
	}

	img, err := c.backend.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return img, nil
}

// Displays enumerates active monitors.
func Displays() []Display {
	return displaysFrom(kbinaniBackend{})
}

func displaysFrom(b displayBackend) []Display {
	n := b.NumActiveDisplays()
	out := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Display{Index: i, Bounds: b.GetDisplayBounds(i)})
	}
	return out
}

// LogDisplays writes the current monitor layout to the log.
func LogDisplays() {
	displays := Displays()
	log.Printf("MONITOR: Detected %d displays", len(displays))
	for _, d := range displays {
		log.Printf("MONITOR: #%d bounds=%v", d.Index, d.Bounds)
	}
}

// EncodePNG encodes img for debug dumps and file-based OCR.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %v", err)
	}
	return buf.Bytes(), nil
}
