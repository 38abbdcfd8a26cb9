package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/tts/audio"
	"github.com/book-expert/doc2speech/internal/tts/audio/mp3test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPaths struct {
	config string
	work   string
	static string
}

// writeTestConfig writes a configuration whose speech service is speechURL
// and whose directories all live in temporary directories.
func writeTestConfig(t *testing.T, speechURL string) testPaths {
	t.Helper()

	paths := testPaths{
		config: filepath.Join(t.TempDir(), "doc2speech.toml"),
		work:   t.TempDir(),
		static: t.TempDir(),
	}

	content := fmt.Sprintf(`
[paths]
upload_dir = %q
static_dir = %q
work_dir = %q
base_logs_dir = %q

[speech]
base_url = %q
timeout_seconds = 5
`, t.TempDir(), paths.static, paths.work, t.TempDir(), speechURL)

	require.NoError(t, os.WriteFile(paths.config, []byte(content), 0o600))

	return paths
}

func speechServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		index, _ := strconv.Atoi(r.URL.Query().Get("idx"))

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(mp3test.Frames(10, byte(index)))
	}))
	t.Cleanup(server.Close)

	return server
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()

	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCommand()

	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Subset(t, names, []string{"serve", "convert"})
	assert.NotNil(t, root.PersistentFlags().Lookup(flagConfig))
}

func TestConvert_RequiresDocument(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "convert")
	require.Error(t, err)
}

func TestConvert_EndToEnd(t *testing.T) {
	t.Setenv(config.EnvNATSURL, "")

	paths := writeTestConfig(t, speechServer(t).URL)

	document := filepath.Join(t.TempDir(), "story.txt")
	require.NoError(t, os.WriteFile(document, []byte("Bună ziua. Aceasta este o poveste scurtă."), 0o600))

	output := filepath.Join(t.TempDir(), "story.mp3")

	stdout, _, err := execute(t, "--config", paths.config, "convert", document, "--lang", "ro", "--output", output)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, output), stdout)
	assert.Contains(t, stdout, "1 segment(s)")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, audio.IsMP3(data))

	artifacts, err := os.ReadDir(paths.static)
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)

	leftovers, err := os.ReadDir(paths.work)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestConvert_EmptyDocument(t *testing.T) {
	t.Setenv(config.EnvNATSURL, "")

	paths := writeTestConfig(t, speechServer(t).URL)

	document := filepath.Join(t.TempDir(), "blank.txt")
	require.NoError(t, os.WriteFile(document, []byte("  \n\t "), 0o600))

	_, stderr, err := execute(t, "--config", paths.config, "convert", document)
	require.ErrorIs(t, err, core.ErrEmptyDocument)
	assert.Contains(t, stderr, "The document is empty")
}

func TestConvert_RejectsUnsupportedDocument(t *testing.T) {
	t.Setenv(config.EnvNATSURL, "")

	paths := writeTestConfig(t, speechServer(t).URL)

	_, _, err := execute(t, "--config", paths.config, "convert", "slides.pptx")
	require.ErrorIs(t, err, errUnsupportedDocument)
}

func TestNewConcatenator(t *testing.T) {
	t.Parallel()

	log, err := setupLogger(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	memory, err := newConcatenator(config.ConcatConfig{Strategy: config.ConcatStrategyMemory}, log)
	require.NoError(t, err)
	assert.IsType(t, &audio.MemoryConcatenator{}, memory)

	ffmpeg, err := newConcatenator(config.ConcatConfig{
		Strategy:       config.ConcatStrategyFFmpeg,
		FFmpegPath:     "ffmpeg",
		TimeoutSeconds: 60,
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &audio.FFmpegConcatenator{}, ffmpeg)

	_, err = newConcatenator(config.ConcatConfig{Strategy: config.ConcatStrategyFFmpeg, FFmpegPath: "ffmpeg"}, log)
	require.ErrorIs(t, err, audio.ErrInvalidTimeout)
}
