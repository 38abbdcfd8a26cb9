package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/logger"
)

const promptTemplate = `You are a text processing expert. Translate the following text into %s.
Very important: remove symbols, markdown formatting, excessive whitespace and any non-text characters.
Do not shorten anything, keep the text complete. Return ONLY the final processed text.

TEXT TO PROCESS:
---
%s
---`

// Log messages.
const (
	logFmtAttempt   = "Translating %d characters into %s (attempt %d/%d)"
	logFmtTransient = "Translation service unavailable on attempt %d/%d, retrying in %s: %v"
	logFmtSucceeded = "Translation into %s succeeded after %d attempt(s), %d characters"
	logFmtTerminal  = "Translation failed on attempt %d/%d: %v"
)

// Error messages.
const (
	errMissingAPIKey     = "translation API key is not set"
	errFmtExhausted      = "%w: service stayed unavailable after %d attempts: %w"
	errFmtTerminal       = "%w: %w"
	errFmtRetryCancelled = "%w: retry wait interrupted: %w"
)

// Generator produces a model response for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Translator implements core.Translator with a bounded retry loop around a
// Generator. Only ErrServiceUnavailable is retried.
type Translator struct {
	generator    Generator
	apiKey       string
	language     string
	languageCode string
	maxRetries   int
	retryDelay   time.Duration
	sleep        SleepFunc
	log          *logger.Logger
}

var _ core.Translator = (*Translator)(nil)

// Option customizes a Translator.
type Option func(*Translator)

// WithSleep replaces the wait between retries.
func WithSleep(sleep SleepFunc) Option {
	return func(t *Translator) {
		t.sleep = sleep
	}
}

// New creates a Translator talking to the configured Gemini endpoint.
func New(cfg config.TranslationConfig, log *logger.Logger, opts ...Option) *Translator {
	client := NewGeminiClient(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.Timeout())

	return NewWithGenerator(client, cfg, log, opts...)
}

// NewWithGenerator creates a Translator around a custom Generator.
func NewWithGenerator(
	generator Generator,
	cfg config.TranslationConfig,
	log *logger.Logger,
	opts ...Option,
) *Translator {
	translator := &Translator{
		generator:    generator,
		apiKey:       cfg.APIKey,
		language:     cfg.TargetLanguage,
		languageCode: cfg.TargetLanguageCode,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay(),
		sleep:        sleepContext,
		log:          log,
	}

	for _, opt := range opts {
		opt(translator)
	}

	return translator
}

// Translate sends text to the generative service, one request per attempt.
//
// Attempts run from 1 to maxRetries. A transient failure before the last
// attempt waits retryDelay and tries again; on the last attempt it becomes
// terminal. Any other failure, including an empty response, is terminal
// immediately.
func (t *Translator) Translate(ctx context.Context, text string) (core.Translation, error) {
	if t.apiKey == "" {
		return core.Translation{}, fmt.Errorf("%w: %s", core.ErrConfiguration, errMissingAPIKey)
	}

	prompt := fmt.Sprintf(promptTemplate, t.language, text)
	chars := utf8.RuneCountInString(text)

	for attempt := 1; ; attempt++ {
		t.log.Info(logFmtAttempt, chars, t.language, attempt, t.maxRetries)

		result, err := t.generator.Generate(ctx, prompt)
		if err == nil {
			t.log.Info(logFmtSucceeded, t.language, attempt, utf8.RuneCountInString(result))

			return core.Translation{
				Text:         strings.TrimSpace(result),
				Language:     t.language,
				LanguageCode: t.languageCode,
				Attempts:     attempt,
			}, nil
		}

		if !errors.Is(err, ErrServiceUnavailable) {
			t.log.Error(logFmtTerminal, attempt, t.maxRetries, err)

			return core.Translation{}, fmt.Errorf(errFmtTerminal, core.ErrTranslationTerminal, err)
		}

		transientErr := fmt.Errorf(errFmtTerminal, core.ErrTranslationTransient, err)

		if attempt >= t.maxRetries {
			t.log.Error(logFmtTerminal, attempt, t.maxRetries, err)

			return core.Translation{}, fmt.Errorf(errFmtExhausted, core.ErrTranslationTerminal, attempt, transientErr)
		}

		t.log.Warn(logFmtTransient, attempt, t.maxRetries, t.retryDelay, err)

		sleepErr := t.sleep(ctx, t.retryDelay)
		if sleepErr != nil {
			return core.Translation{}, fmt.Errorf(errFmtRetryCancelled, core.ErrTranslationTerminal, sleepErr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
