package session

import "time"

const (
	DefaultMinInterval = 3 * time.Second
	DefaultMaxInterval = 6 * time.Second
	DefaultMaxSimilar  = 1
	intervalStep       = time.Second
)

// Interval paces capture ticks. While captions keep producing new text the
// loop polls at Min; after more than MaxSimilar consecutive ticks without new
// text it backs off one second per tick up to Max. Min == Max gives a fixed
// interval.
type Interval struct {
	Min        time.Duration
	Max        time.Duration
	MaxSimilar int

	current time.Duration
	similar int
}

// FixedInterval returns an Interval that never adapts.
func FixedInterval(d time.Duration) Interval {
	return Interval{Min: d, Max: d}
}

func (iv *Interval) normalize() {
	if iv.Min <= 0 {
		iv.Min = DefaultMinInterval
	}
	if iv.Max < iv.Min {
		iv.Max = iv.Min
	}
	if iv.MaxSimilar < 0 {
		iv.MaxSimilar = 0
	}
	if iv.current < iv.Min || iv.current > iv.Max {
		iv.current = iv.Min
	}
}

// Current returns the wait before the next tick.
func (iv *Interval) Current() time.Duration {
	iv.normalize()
	return iv.current
}

// Observe records a tick outcome and returns the next wait.
func (iv *Interval) Observe(newText bool) time.Duration {
	iv.normalize()
	if newText {
		iv.similar = 0
		iv.current = iv.Min
		return iv.current
	}
	iv.similar++
	if iv.similar > iv.MaxSimilar && iv.current < iv.Max {
		iv.current += intervalStep
		if iv.current > iv.Max {
			iv.current = iv.Max
		}
	}
	return iv.current
}
