package screenshot

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// MinRegionSize is the smallest width/height (logical pixels) that still gives
// Tesseract enough glyph pixels to work with.
const MinRegionSize = 50

var (
	ErrInvalidRegion  = errors.New("invalid region")
	ErrRegionTooSmall = errors.New("region too small")
)

// Region describes the on-screen rectangle to capture, in logical
// (DPI-independent) coordinates of the given monitor's virtual-screen space.
type Region struct {
	Left      int     `json:"left"`
	Top       int     `json:"top"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	MonitorID int     `json:"monitor_id"`
	DPIScale  float64 `json:"dpi_scale"`
}

// Normalized returns a copy with a zero DPI scale replaced by 1.
func (r Region) Normalized() Region {
	if r.DPIScale == 0 {
		r.DPIScale = 1
	}
	return r
}

// Validate checks the minimum-size and scale invariants.
func (r Region) Validate() error {
	r = r.Normalized()
	if r.DPIScale < 0 || math.IsNaN(r.DPIScale) || math.IsInf(r.DPIScale, 0) {
		return fmt.Errorf("%w: dpi scale %v", ErrInvalidRegion, r.DPIScale)
	}
	if r.MonitorID < 0 {
		return fmt.Errorf("%w: monitor %d", ErrInvalidRegion, r.MonitorID)
	}
	if r.Width < MinRegionSize || r.Height < MinRegionSize {
		return fmt.Errorf("%w: %dx%d (minimum %dx%d)", ErrRegionTooSmall, r.Width, r.Height, MinRegionSize, MinRegionSize)
	}
	return nil
}

// Bounds returns the physical pixel rectangle covered by the region.
func (r Region) Bounds() image.Rectangle {
	r = r.Normalized()
	scale := func(v int) int { return int(math.Round(float64(v) * r.DPIScale)) }
	x0, y0 := scale(r.Left), scale(r.Top)
	return image.Rect(x0, y0, x0+scale(r.Width), y0+scale(r.Height))
}

// String renders the region in the format accepted by Parse.
func (r Region) String() string {
	r = r.Normalized()
	return fmt.Sprintf("%d,%d,%d,%d,%d,%s", r.Left, r.Top, r.Width, r.Height, r.MonitorID,
		strconv.FormatFloat(r.DPIScale, 'g', -1, 64))
}

// Parse reads "left,top,width,height[,monitor[,dpi]]". The result is not
// validated; callers decide when to enforce the size minimum.
func Parse(s string) (Region, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 4 || len(parts) > 6 {
		return Region{}, fmt.Errorf("%w: %q: want left,top,width,height[,monitor[,dpi]]", ErrInvalidRegion, s)
	}

	ints := make([]int, 0, 5)
	for i := 0; i < len(parts) && i < 5; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q: field %d: %v", ErrInvalidRegion, s, i+1, err)
		}
		ints = append(ints, n)
	}

	r := Region{Left: ints[0], Top: ints[1], Width: ints[2], Height: ints[3], DPIScale: 1}
	if len(ints) == 5 {
		r.MonitorID = ints[4]
	}
	if len(parts) == 6 {
		dpi, err := strconv.ParseFloat(strings.TrimSpace(parts[5]), 64)
		if err != nil {
			return Region{}, fmt.Errorf("%w: %q: dpi: %v", ErrInvalidRegion, s, err)
		}
		r.DPIScale = dpi
	}
	return r, nil
}
