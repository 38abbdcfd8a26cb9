package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/logger"
)

const (
	filePermissions = 0o644
	partialPattern  = ".artifact-*.part"
)

const (
	logFmtMemoryMerged = "Merged %d fragments in memory into %s (%d bytes)"
	errFmtFragment     = "%w: fragment %d (%s): %w"
	errFmtWriteOutput  = "%w: failed to write %s: %w"
)

// MemoryConcatenator merges MP3 fragments without an external tool. MPEG
// audio is a sequence of self-contained frames, so appending the frame
// payloads of each fragment (tags removed) yields a stream whose audio is the
// exact concatenation of the inputs.
type MemoryConcatenator struct {
	log *logger.Logger
}

var _ core.Concatenator = (*MemoryConcatenator)(nil)

// NewMemoryConcatenator creates a MemoryConcatenator.
func NewMemoryConcatenator(log *logger.Logger) *MemoryConcatenator {
	return &MemoryConcatenator{log: log}
}

// Concatenate appends the fragments in order and writes outputPath once,
// through a temporary file in the same directory that is renamed into place.
// On failure no file is left at outputPath.
func (c *MemoryConcatenator) Concatenate(ctx context.Context, fragments []string, outputPath string) error {
	if len(fragments) == 0 {
		return fmt.Errorf("%w: %w", core.ErrConcatProcess, ErrNoFragments)
	}

	if outputPath == "" {
		return fmt.Errorf("%w: %w", core.ErrConcatProcess, ErrEmptyOutput)
	}

	var merged bytes.Buffer

	for index, fragment := range fragments {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", core.ErrConcatProcess, ctxErr)
		}

		data, readErr := os.ReadFile(fragment)
		if readErr != nil {
			return fmt.Errorf(errFmtFragment, core.ErrConcatProcess, index, fragment, readErr)
		}

		frames, stripErr := StripTags(data)
		if stripErr != nil {
			return fmt.Errorf(errFmtFragment, core.ErrConcatProcess, index, fragment, stripErr)
		}

		validateErr := ValidateFragment(frames)
		if validateErr != nil {
			return fmt.Errorf(errFmtFragment, core.ErrConcatProcess, index, fragment, validateErr)
		}

		merged.Write(frames)
	}

	writeErr := writeAtomically(outputPath, merged.Bytes())
	if writeErr != nil {
		return fmt.Errorf(errFmtWriteOutput, core.ErrConcatProcess, outputPath, writeErr)
	}

	c.log.Info(logFmtMemoryMerged, len(fragments), outputPath, merged.Len())

	return nil
}

func writeAtomically(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), partialPattern)
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr == nil {
		writeErr = os.Chmod(tmpPath, filePermissions)
	}

	if writeErr == nil {
		writeErr = os.Rename(tmpPath, path)
	}

	if writeErr != nil {
		_ = os.Remove(tmpPath)

		return writeErr
	}

	return nil
}
