// Package core defines the core business logic and interfaces for the document
// to speech pipeline.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// TextExtractor turns an uploaded document into plain text.
// Implementations never return an error message as text: a failure is always
// reported through the error value.
type TextExtractor interface {
	Extract(ctx context.Context, path, extension string) (string, error)
}

// Translation is the successful outcome of a Translator call.
type Translation struct {
	// Text is the translated and cleaned document text.
	Text string
	// Language is the human-readable target language (e.g. "Romanian").
	Language string
	// LanguageCode is the synthesis language code for Language (e.g. "ro").
	LanguageCode string
	// Attempts is the number of service calls it took to succeed.
	Attempts int
}

// Translator converts a full document into the configured target language.
type Translator interface {
	Translate(ctx context.Context, text string) (Translation, error)
}

// Synthesizer converts one segment of text into encoded speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// Concatenator joins audio fragment files, in order, into one output file.
type Concatenator interface {
	Concatenate(ctx context.Context, fragments []string, outputPath string) error
}

// Notifier announces finished artifacts to interested listeners.
type Notifier interface {
	ArtifactCreated(ctx context.Context, artifactName string) error
}
