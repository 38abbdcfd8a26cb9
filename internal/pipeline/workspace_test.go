package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func TestWorkspace_FragmentPathIsTrackedAndUnique(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()

	ws, err := pipeline.NewWorkspace(parent, createTestLogger(t))
	require.NoError(t, err)

	assert.Equal(t, parent, filepath.Dir(ws.Dir()))

	first := ws.FragmentPath(0)
	second := ws.FragmentPath(0)

	assert.NotEqual(t, first, second)
	assert.Equal(t, ws.Dir(), filepath.Dir(first))
	assert.Equal(t, []string{first, second}, ws.Tracked())
}

func TestWorkspace_ReleaseRemovesEverything(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()

	ws, err := pipeline.NewWorkspace(parent, createTestLogger(t))
	require.NoError(t, err)

	written := ws.FragmentPath(0)
	require.NoError(t, os.WriteFile(written, []byte("audio"), 0o600))

	// Registered but never written.
	_ = ws.FragmentPath(1)

	untracked := filepath.Join(ws.Dir(), "concat-manifest.txt")
	require.NoError(t, os.WriteFile(untracked, []byte("file 'x'"), 0o600))

	require.NoError(t, ws.Release())

	assert.NoFileExists(t, written)
	assert.NoFileExists(t, untracked)
	assert.NoDirExists(t, ws.Dir())

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, ws.Release(), "second release is a no-op")
}

func TestWorkspaces_AreIndependent(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	log := createTestLogger(t)

	first, err := pipeline.NewWorkspace(parent, log)
	require.NoError(t, err)

	second, err := pipeline.NewWorkspace(parent, log)
	require.NoError(t, err)

	assert.NotEqual(t, first.Dir(), second.Dir())

	kept := second.FragmentPath(0)
	require.NoError(t, os.WriteFile(kept, []byte("audio"), 0o600))

	require.NoError(t, first.Release())
	assert.FileExists(t, kept)

	require.NoError(t, second.Release())
}
