// Package text provides text cleanup utilities applied before speech synthesis
// when a document is read as-is, without machine translation.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text cleanup.
const (
	// noiseRegexPattern matches runs of anything that is not a letter (of any
	// alphabet, so Romanian ă â î ș ț and the legacy cedilla forms survive),
	// a digit, an underscore, whitespace or sentence punctuation.
	noiseRegexPattern = `[^\p{L}\p{N}_\s.,?!;:]+`
)

const noiseSpace = " "

// Cleaner normalizes extracted document text for speech synthesis.
type Cleaner struct {
	noisePattern *regexp.Regexp
}

// NewCleaner creates a Cleaner with its patterns compiled once.
func NewCleaner() *Cleaner {
	return &Cleaner{
		noisePattern: regexp.MustCompile(noiseRegexPattern),
	}
}

// Clean replaces markup, symbols and other non-text noise with spaces and
// collapses every whitespace run into a single space. A hyphen is noise like
// any other symbol, so "s-a" reads as "s a". Whitespace-only input yields the
// empty string.
func (c *Cleaner) Clean(text string) string {
	if text == "" {
		return text
	}

	cleaned := c.noisePattern.ReplaceAllString(text, noiseSpace)

	return collapseWhitespace(cleaned)
}

// IsBlank reports whether text has no characters other than whitespace.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
