// Package extract turns uploaded PDF and plain-text documents into text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/logger"
	"github.com/ledongthuc/pdf"
)

// Supported extensions.
const (
	ExtPDF = "pdf"
	ExtTXT = "txt"
)

const pageSeparator = "\n"

// Extraction errors. All of them also wrap core.ErrExtraction.
var (
	ErrUnsupportedExtension = errors.New("unsupported document extension")
	ErrInvalidEncoding      = errors.New("text file is not valid UTF-8")
)

// Extractor implements core.TextExtractor for PDF and TXT documents.
type Extractor struct {
	log *logger.Logger
}

var _ core.TextExtractor = (*Extractor)(nil)

// New creates a new Extractor.
func New(log *logger.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract reads the document at path. extension is matched case-insensitively
// and may carry a leading dot.
func (e *Extractor) Extract(ctx context.Context, path, extension string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))

	e.log.Info("Extracting text from %s document %s", ext, path)

	var (
		text string
		err  error
	)

	switch ext {
	case ExtPDF:
		text, err = extractPDF(ctx, path)
	case ExtTXT:
		text, err = extractTXT(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedExtension, extension)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtraction, err)
	}

	e.log.Info("Extracted %d characters from %s", utf8.RuneCountInString(text), path)

	return text, nil
}

func extractTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read text file: %w", err)
	}

	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}

	return string(data), nil
}

// extractPDF concatenates the plain text of every page, each followed by a
// newline. The PDF reader panics on some malformed files, so panics are
// reported as extraction errors.
func extractPDF(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			text = ""
			err = fmt.Errorf("malformed PDF: %v", recovered)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("document is encrypted or corrupt: %w", err)
	}
	defer file.Close()

	var builder strings.Builder

	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			return "", fmt.Errorf("failed to read page %d: %w", pageIndex, pageErr)
		}

		builder.WriteString(pageText)
		builder.WriteString(pageSeparator)
	}

	return builder.String(), nil
}
