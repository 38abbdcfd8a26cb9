package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/logger"
)

const (
	manifestPattern  = "concat-*.txt"
	manifestLineFmt  = "file '%s'\n"
	processWaitDelay = 2 * time.Second
	maxOutputInError = 2048
)

const (
	logFmtFFmpegStart  = "Running %s to merge %d fragments into %s"
	logFmtFFmpegMerged = "Merged %d fragments with %s into %s"
	logFmtFFmpegFailed = "Concatenation with %s failed: %v"
	logFmtRemoveFailed = "Failed to remove %s: %v"
	errFmtManifest     = "%w: failed to write manifest: %w"
	errFmtLookPath     = "%w: %s: %w"
	errFmtTimeout      = "%w: %s exceeded %s"
)

// ProcessError is a non-zero exit of the external concatenation tool. Output
// holds its combined stdout and stderr.
type ProcessError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ProcessError) Error() string {
	output := strings.TrimSpace(e.Output)
	if len(output) > maxOutputInError {
		output = output[len(output)-maxOutputInError:]
	}

	if output == "" {
		return fmt.Sprintf("%s: %s: %v", core.ErrConcatProcess, e.Tool, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v: %s", core.ErrConcatProcess, e.Tool, e.Err, output)
}

// Unwrap exposes both the failure class and the underlying exec error.
func (e *ProcessError) Unwrap() []error {
	return []error{core.ErrConcatProcess, e.Err}
}

// FFmpegConcatenator merges fragments with the ffmpeg concat demuxer using
// stream copy. The run is bounded by a wall-clock timeout.
type FFmpegConcatenator struct {
	binary  string
	timeout time.Duration
	log     *logger.Logger
}

var _ core.Concatenator = (*FFmpegConcatenator)(nil)

// NewFFmpegConcatenator creates a concatenator that runs binary, which is
// either a name looked up in PATH or a path to the executable.
func NewFFmpegConcatenator(binary string, timeout time.Duration, log *logger.Logger) (*FFmpegConcatenator, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	return &FFmpegConcatenator{binary: binary, timeout: timeout, log: log}, nil
}

// Concatenate writes a manifest next to the first fragment, runs ffmpeg over
// it and removes the manifest again. A missing tool, a timeout and a failed
// run are reported as core.ErrConcatToolMissing, core.ErrConcatTimeout and a
// *ProcessError respectively; in every failure case a partial output file is
// removed.
func (c *FFmpegConcatenator) Concatenate(ctx context.Context, fragments []string, outputPath string) error {
	if len(fragments) == 0 {
		return fmt.Errorf("%w: %w", core.ErrConcatProcess, ErrNoFragments)
	}

	if outputPath == "" {
		return fmt.Errorf("%w: %w", core.ErrConcatProcess, ErrEmptyOutput)
	}

	toolPath, lookErr := exec.LookPath(c.binary)
	if lookErr != nil {
		return fmt.Errorf(errFmtLookPath, core.ErrConcatToolMissing, c.binary, lookErr)
	}

	manifest, manifestErr := writeManifest(filepath.Dir(fragments[0]), fragments)
	if manifestErr != nil {
		return fmt.Errorf(errFmtManifest, core.ErrConcatProcess, manifestErr)
	}
	defer c.remove(manifest)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, toolPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "concat", "-safe", "0",
		"-i", manifest,
		"-c", "copy",
		outputPath,
	)
	cmd.WaitDelay = processWaitDelay

	c.log.Info(logFmtFFmpegStart, c.binary, len(fragments), outputPath)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		c.remove(outputPath)

		var err error
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf(errFmtTimeout, core.ErrConcatTimeout, c.binary, c.timeout)
		} else {
			err = &ProcessError{Tool: c.binary, Output: string(output), Err: runErr}
		}

		c.log.Error(logFmtFFmpegFailed, c.binary, err)

		return err
	}

	c.log.Info(logFmtFFmpegMerged, len(fragments), c.binary, outputPath)

	return nil
}

func (c *FFmpegConcatenator) remove(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warn(logFmtRemoveFailed, path, err)
	}
}

// writeManifest lists the fragments, in order, in concat demuxer syntax.
func writeManifest(dir string, fragments []string) (string, error) {
	file, err := os.CreateTemp(dir, manifestPattern)
	if err != nil {
		return "", err
	}

	var builder strings.Builder

	for _, fragment := range fragments {
		abs, absErr := filepath.Abs(fragment)
		if absErr != nil {
			_ = file.Close()
			_ = os.Remove(file.Name())

			return "", absErr
		}

		fmt.Fprintf(&builder, manifestLineFmt, strings.ReplaceAll(abs, "'", `'\''`))
	}

	_, writeErr := file.WriteString(builder.String())
	closeErr := file.Close()

	if writeErr == nil {
		writeErr = closeErr
	}

	if writeErr != nil {
		_ = os.Remove(file.Name())

		return "", writeErr
	}

	return file.Name(), nil
}
