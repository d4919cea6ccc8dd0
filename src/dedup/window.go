// Package dedup suppresses text that consecutive capture ticks have already
// emitted: unchanged captions, growing captions and partially scrolled frames.
package dedup

import "strings"

const (
	DefaultMinOverlap  = 4
	DefaultHistorySize = 5
)

// Options tunes a Window. Zero values select the defaults.
type Options struct {
	// MinOverlap is the shortest match, in runes, accepted as overlap
	// between a recent entry and new text. Shorter matches are treated as
	// coincidence (common short words).
	MinOverlap int
	// HistorySize is how many recently accepted texts are compared against.
	HistorySize int
}

// Window holds recently accepted texts. It is not safe for concurrent use;
// the capture loop is its only writer.
type Window struct {
	minOverlap int
	size       int
	recent     []string // newest first
}

// New returns an empty Window.
func New(opts Options) *Window {
	if opts.MinOverlap <= 0 {
		opts.MinOverlap = DefaultMinOverlap
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	return &Window{minOverlap: opts.MinOverlap, size: opts.HistorySize}
}

// Submit folds cleaned text into the window and returns the part that has
// not been emitted before. Empty input is a no-op.
func (w *Window) Submit(cleaned string) string {
	if cleaned == "" {
		return ""
	}
	if len(w.recent) > 0 && cleaned == w.recent[0] {
		return ""
	}

	residue, matched := w.bestOverlap(cleaned)
	if !matched {
		residue = cleaned
	}
	w.remember(cleaned)
	return residue
}

// Last returns the most recently accepted text.
func (w *Window) Last() string {
	if len(w.recent) == 0 {
		return ""
	}
	return w.recent[0]
}

// Reset drops all history.
func (w *Window) Reset() {
	w.recent = w.recent[:0]
}

func (w *Window) remember(text string) {
	w.recent = append(w.recent, "")
	copy(w.recent[1:], w.recent)
	w.recent[0] = text
	if len(w.recent) > w.size {
		w.recent = w.recent[:w.size]
	}
}

type candidate struct {
	length  int // matched runes
	residue string
}

// better prefers the longer match, then the smaller residue.
func (c candidate) better(o candidate) bool {
	if c.length != o.length {
		return c.length > o.length
	}
	return len(c.residue) < len(o.residue)
}

// bestOverlap compares text against every recent entry and returns the
// residue of the strongest overlap.
func (w *Window) bestOverlap(text string) (string, bool) {
	var best candidate
	found := false
	consider := func(c candidate) {
		if !found || c.better(best) {
			best = c
			found = true
		}
	}

	textLen := runeLen(text)
	for i, prev := range w.recent {
		prevLen := runeLen(prev)

		if text == prev {
			consider(candidate{length: prevLen, residue: ""})
			continue
		}

		// The last caption grew in place: always a continuation, whatever
		// its length.
		if i == 0 && strings.HasPrefix(text, prev) {
			consider(candidate{length: prevLen, residue: text[len(prev):]})
			continue
		}

		if prevLen >= w.minOverlap {
			if idx := strings.Index(text, prev); idx >= 0 {
				consider(candidate{length: prevLen, residue: text[idx+len(prev):]})
				continue
			}
		}

		if textLen >= w.minOverlap && strings.Contains(prev, text) {
			consider(candidate{length: textLen, residue: ""})
			continue
		}

		if n := suffixPrefixOverlap(prev, text); n > 0 {
			if l := runeLen(text[:n]); l >= w.minOverlap {
				consider(candidate{length: l, residue: text[n:]})
			}
		}
	}
	return best.residue, found
}

// suffixPrefixOverlap returns the byte length of the longest prefix of b
// that is also a suffix of a, on rune boundaries.
func suffixPrefixOverlap(a, b string) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for n := limit; n > 0; n-- {
		if !runeBoundary(b, n) {
			continue
		}
		if strings.HasSuffix(a, b[:n]) {
			return n
		}
	}
	return 0
}

func runeBoundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

func runeLen(s string) int {
	return len([]rune(s))
}
