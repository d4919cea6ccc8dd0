package screenshot

import (
	"image"
	"log"
	"sync"

	"github.com/corona10/goimagehash"
)

const (
	// hashSide is the side of the DCT grid (16x16, a 256-bit hash).
	hashSide = 16

	// MaxHashDistance is the default largest Hamming distance at which two
	// frames count as the same picture. Zero: only an identical hash skips.
	MaxHashDistance = 0

	// MaxConsecutiveSkips bounds how many ticks in a row may skip OCR.
	// The next frame is recognized whatever its hash.
	MaxConsecutiveSkips = 2
)

// ChangeDetector remembers the perceptual hash of the last recognized frame.
type ChangeDetector struct {
	mu          sync.Mutex
	last        *goimagehash.ExtImageHash
	maxDistance int
	skips       int
}

// NewChangeDetector returns a detector using maxDistance (<0 means MaxHashDistance).
func NewChangeDetector(maxDistance int) *ChangeDetector {
	if maxDistance < 0 {
		maxDistance = MaxHashDistance
	}
	return &ChangeDetector{maxDistance: maxDistance}
}

// Unchanged reports whether img matches the last recognized frame and OCR
// may be skipped. Hashing errors never suppress a frame, and after
// MaxConsecutiveSkips skipped frames the next one is always reported changed.
func (d *ChangeDetector) Unchanged(img image.Image) bool {
	hash, err := goimagehash.ExtPerceptionHash(img, hashSide, hashSide)
	if err != nil {
		log.Printf("ChangeDetector: hash failed: %v", err)
		d.Reset()
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.last != nil && d.skips < MaxConsecutiveSkips {
		if dist, err := d.last.Distance(hash); err == nil && dist <= d.maxDistance {
			d.skips++
			return true
		}
	}
	d.last = hash
	d.skips = 0
	return false
}

// Reset forgets the last frame, e.g. after the region moved.
func (d *ChangeDetector) Reset() {
	d.mu.Lock()
	d.last = nil
	d.skips = 0
	d.mu.Unlock()
}
