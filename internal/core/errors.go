package core

import "errors"

// Pipeline failure classes. Every error that leaves the pipeline wraps exactly
// one of these so callers can classify it with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrExtraction           = errors.New("text extraction failed")
	ErrEmptyDocument        = errors.New("document is empty or has no selectable text")
	ErrTranslationTransient = errors.New("translation service temporarily unavailable")
	ErrTranslationTerminal  = errors.New("translation failed")
	ErrSynthesis            = errors.New("speech synthesis failed")
	ErrConcatToolMissing    = errors.New("concatenation tool not found")
	ErrConcatTimeout        = errors.New("concatenation timed out")
	ErrConcatProcess        = errors.New("concatenation process failed")
	ErrUnexpected           = errors.New("unexpected processing error")
)

// User-facing messages, one per failure class.
const (
	msgConfiguration = "The translation service is not configured on this server."
	msgExtraction    = "The document could not be read. It may be encrypted or corrupt."
	msgEmptyDocument = "The document is empty or contains no selectable text."
	msgTranslation   = "The translation service failed to process the document."
	msgOverloaded    = "The translation service stayed overloaded. Please try again later."
	msgSynthesis     = "Speech generation failed."
	msgToolMissing   = "Audio merging is unavailable: the media tool is not installed."
	msgTimeout       = "Audio merging took too long and was stopped."
	msgConcat        = "Audio merging failed."
	msgUnexpected    = "Unexpected processing error on the server."
)

// UserMessage renders err as a single human-readable sentence followed by the
// underlying detail. A nil error yields an empty string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	return summary(err) + " (" + err.Error() + ")"
}

func summary(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return msgConfiguration
	case errors.Is(err, ErrExtraction):
		return msgExtraction
	case errors.Is(err, ErrEmptyDocument):
		return msgEmptyDocument
	case errors.Is(err, ErrTranslationTransient):
		return msgOverloaded
	case errors.Is(err, ErrTranslationTerminal):
		return msgTranslation
	case errors.Is(err, ErrSynthesis):
		return msgSynthesis
	case errors.Is(err, ErrConcatToolMissing):
		return msgToolMissing
	case errors.Is(err, ErrConcatTimeout):
		return msgTimeout
	case errors.Is(err, ErrConcatProcess):
		return msgConcat
	default:
		return msgUnexpected
	}
}
