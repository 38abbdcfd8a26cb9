package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
)

const (
	runDirPattern     = "run-*"
	fragmentNameFmt   = "fragment_%04d_%s.mp3"
	workDirPermission = 0o750
)

const (
	logFmtRemoveFailed = "Failed to remove temporary file %s: %v"
	logFmtReleased     = "Released workspace %s (%d tracked files)"
	errFmtCreateRun    = "failed to create run directory in %s: %w"
)

// Workspace owns every temporary file of one pipeline run. Paths are tracked
// before anything is written to them and Release removes all of them,
// together with the private run directory, on every exit path.
type Workspace struct {
	mu       sync.Mutex
	dir      string
	tracked  []string
	released bool
	log      *logger.Logger
}

// NewWorkspace creates a private run directory below parent.
func NewWorkspace(parent string, log *logger.Logger) (*Workspace, error) {
	mkdirErr := os.MkdirAll(parent, workDirPermission)
	if mkdirErr != nil {
		return nil, fmt.Errorf(errFmtCreateRun, parent, mkdirErr)
	}

	dir, err := os.MkdirTemp(parent, runDirPattern)
	if err != nil {
		return nil, fmt.Errorf(errFmtCreateRun, parent, err)
	}

	return &Workspace{dir: dir, log: log}, nil
}

// Dir returns the run directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// FragmentPath registers and returns a unique fragment path for a segment.
func (w *Workspace) FragmentPath(index int) string {
	name := fmt.Sprintf(fragmentNameFmt, index, strings.ReplaceAll(uuid.NewString(), "-", ""))
	path := filepath.Join(w.dir, name)

	w.Track(path)

	return path
}

// Track registers path for removal on Release.
func (w *Workspace) Track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tracked = append(w.tracked, path)
}

// Tracked returns a copy of the registered paths.
func (w *Workspace) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.tracked...)
}

// Release removes every tracked file and the run directory. Files that were
// registered but never written are not an error. Failures are logged and
// joined; Release is safe to call more than once.
func (w *Workspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return nil
	}

	w.released = true

	var errs []error

	for _, path := range w.tracked {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			w.log.Warn(logFmtRemoveFailed, path, err)
			errs = append(errs, err)
		}
	}

	// Also catches files the run created without tracking, such as a
	// concatenation manifest.
	err := os.RemoveAll(w.dir)
	if err != nil {
		w.log.Warn(logFmtRemoveFailed, w.dir, err)
		errs = append(errs, err)
	}

	w.log.Info(logFmtReleased, w.dir, len(w.tracked))

	return errors.Join(errs...)
}
