// Package segment splits document text into bounded-length pieces for speech
// synthesis.
package segment

import (
	"errors"
	"fmt"
)

// DefaultMaxChars is the largest segment the synthesis service accepts.
const DefaultMaxChars = 4800

// ErrInvalidMaxChars is returned when the maximum segment length is not positive.
var ErrInvalidMaxChars = errors.New("max segment length must be positive")

// Segment is one contiguous slice of the source text.
type Segment struct {
	Index int
	Text  string
}

// Len returns the segment length in characters.
func (s Segment) Len() int {
	return len([]rune(s.Text))
}

// Split partitions text into consecutive segments of at most maxChars
// characters. Lengths are measured in runes so a multi-byte character is never
// cut in half. Joining the segments in order yields text exactly; empty text
// yields no segments.
func Split(text string, maxChars int) ([]Segment, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxChars, maxChars)
	}

	runes := []rune(text)
	segments := make([]Segment, 0, (len(runes)+maxChars-1)/maxChars)

	for start := 0; start < len(runes); start += maxChars {
		end := min(start+maxChars, len(runes))
		segments = append(segments, Segment{
			Index: len(segments),
			Text:  string(runes[start:end]),
		})
	}

	return segments, nil
}

// Texts returns the text of each segment in order.
func Texts(segments []Segment) []string {
	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	return texts
}
