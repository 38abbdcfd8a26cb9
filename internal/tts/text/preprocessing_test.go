package text_test

import (
	"testing"

	"github.com/book-expert/doc2speech/internal/tts/text"
)

// cleanerTestCase defines a standard test case for the cleaner.
type cleanerTestCase struct {
	name     string
	input    string
	expected string
}

func runCleanerTests(t *testing.T, tests []cleanerTestCase) {
	t.Helper()

	cleaner := text.NewCleaner()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := cleaner.Clean(testCase.input)
			if result != testCase.expected {
				t.Errorf("Expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

func TestCleaner_Clean_Whitespace(t *testing.T) {
	t.Parallel()

	runCleanerTests(t, []cleanerTestCase{
		{name: "empty", input: "", expected: ""},
		{name: "whitespace only", input: " \t\n\r\n  ", expected: ""},
		{name: "runs collapse", input: "one   two\n\nthree\tfour", expected: "one two three four"},
		{name: "trimmed", input: "  padded  ", expected: "padded"},
		{name: "non-breaking space", input: "a\u00a0\u00a0b", expected: "a b"},
	})
}

func TestCleaner_Clean_Noise(t *testing.T) {
	t.Parallel()

	runCleanerTests(t, []cleanerTestCase{
		{name: "markdown", input: "# Title\n**bold** and _under_", expected: "Title bold and _under_"},
		{name: "symbols", input: "price: 10$ @ 50% <tag>", expected: "price: 10 50 tag"},
		{name: "punctuation kept", input: "Yes, no. Why? Stop! a; b:", expected: "Yes, no. Why? Stop! a; b:"},
		{name: "ellipsis", input: "wait… then", expected: "wait then"},
		{name: "only noise", input: "*** ### ---", expected: ""},
	})
}

func TestCleaner_Clean_PreservesRomanianLetters(t *testing.T) {
	t.Parallel()

	runCleanerTests(t, []cleanerTestCase{
		{name: "comma below", input: "Ăă Ââ Îî Șș Țț", expected: "Ăă Ââ Îî Șș Țț"},
		{name: "cedilla", input: "Şş Ţţ", expected: "Şş Ţţ"},
		{name: "sentence", input: "Într-o zi, școala s-a închis!", expected: "Într o zi, școala s a închis!"},
	})
}

func TestCleaner_Clean_HyphenAtLineEndSeparatesWords(t *testing.T) {
	t.Parallel()

	runCleanerTests(t, []cleanerTestCase{
		{name: "pronoun", input: "școala s-\na închis", expected: "școala s a închis"},
		{name: "article", input: "Într-\no zi", expected: "Într o zi"},
		{name: "compound", input: "Romania-\nFrance", expected: "Romania France"},
		{name: "windows line end", input: "s-\r\na", expected: "s a"},
	})
}

func TestIsBlank(t *testing.T) {
	t.Parallel()

	if !text.IsBlank(" \n\t") {
		t.Error("Expected whitespace to be blank")
	}

	if text.IsBlank(" a ") {
		t.Error("Expected text not to be blank")
	}
}
