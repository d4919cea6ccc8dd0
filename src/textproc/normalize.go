// Package textproc cleans raw OCR output before it reaches the dedup window.
package textproc

import (
	"strings"
	"unicode"
)

// MinAlnum is the number of letters/digits a frame must keep after cleaning
// to count as text rather than noise.
const MinAlnum = 3

// allowedPunct is the punctuation OCR commonly gets right in captions.
const allowedPunct = `.,!?():-—–|/\&%$#@*+="<>'`

// Normalize trims and collapses whitespace, strips OCR artifact characters
// and isolated punctuation tokens, and returns "" for pure-noise frames.
// It is pure and idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	filtered := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(allowedPunct, r):
			return r
		default:
			return -1
		}
	}, raw)

	tokens := strings.Fields(filtered)
	kept := tokens[:0]
	alnum := 0
	for _, tok := range tokens {
		n := countAlnum(tok)
		if n == 0 {
			continue
		}
		alnum += n
		kept = append(kept, tok)
	}

	if alnum < MinAlnum {
		return ""
	}
	return strings.Join(kept, " ")
}

func countAlnum(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// CountWords returns the number of whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}

// Truncate shortens s to at most maxChars runes, appending "..." when cut.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "..."
}
