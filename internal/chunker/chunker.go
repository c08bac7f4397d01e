// Package chunker splits chapter text into segments small enough for a
// single translation request.
//
// Segments never overlap and never split a UTF-8 sequence, and joining them
// reproduces the input byte for byte. Separators stay attached to the end of
// the segment they terminate.
package chunker

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultSize matches the request size the translation prompts were tuned for.
const DefaultSize = 1500

// boundaries are tried in order of preference. Within a group the cut that
// keeps the longest segment wins.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "。", "！", "？"},
	{" ", "\t"},
}

// Split returns a lazy sequence of segments of at most maxSize bytes.
// A non-positive maxSize yields the whole text as one segment and empty
// text yields nothing. The sequence has no side effects and can be ranged
// over any number of times.
func Split(text string, maxSize int) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for len(rest) > 0 {
			n := cutPoint(rest, maxSize)
			if !yield(rest[:n]) {
				return
			}
			rest = rest[n:]
		}
	}
}

// Collect materializes Split.
func Collect(text string, maxSize int) []string {
	return slices.Collect(Split(text, maxSize))
}

// cutPoint returns the length of the next segment of s.
func cutPoint(s string, maxSize int) int {
	if maxSize <= 0 || len(s) <= maxSize {
		return len(s)
	}

	limit := maxSize
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	if limit == 0 {
		// A single rune wider than maxSize still has to go somewhere.
		_, size := utf8.DecodeRuneInString(s)
		return size
	}

	window := s[:limit]
	minCut := limit / 2
	for _, group := range boundaries {
		best := -1
		for _, sep := range group {
			if i := strings.LastIndex(window, sep); i >= 0 && i+len(sep) > best {
				best = i + len(sep)
			}
		}
		if best > minCut {
			return best
		}
	}
	return limit
}
