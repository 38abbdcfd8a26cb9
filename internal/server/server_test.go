package server_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/doc2speech/internal/config"
	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/objectstore"
	"github.com/book-expert/doc2speech/internal/pipeline"
	"github.com/book-expert/doc2speech/internal/server"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu        sync.Mutex
	requests  []pipeline.Request
	documents []string
	result    pipeline.Result
	err       error
	delay     time.Duration
	active    atomic.Int32
	peak      atomic.Int32
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	current := f.active.Add(1)
	defer f.active.Add(-1)

	for {
		peak := f.peak.Load()
		if current <= peak || f.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	data, _ := os.ReadFile(req.DocumentPath)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.documents = append(f.documents, string(data))
	f.mu.Unlock()

	time.Sleep(f.delay)

	return f.result, f.err
}

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	lg, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = lg.Close() })

	return lg
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Paths: config.PathsConfig{
			UploadDir:   filepath.Join(t.TempDir(), "uploads"),
			StaticDir:   t.TempDir(),
			WorkDir:     t.TempDir(),
			BaseLogsDir: t.TempDir(),
		},
	}
	cfg.ApplyDefaults()

	return cfg
}

func newServer(t *testing.T, cfg *config.Config, runner server.Runner, mirror core.ObjectStore) *server.Server {
	t.Helper()

	srv, err := server.New(cfg, runner, mirror, createTestLogger(t))
	require.NoError(t, err)

	return srv
}

func uploadRequest(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}

	if filename != "" {
		part, err := writer.CreateFormFile("document", filename)
		require.NoError(t, err)

		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return req
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(data)
}

func TestServer_Form(t *testing.T) {
	t.Parallel()

	srv := newServer(t, testConfig(t), &fakeRunner{}, nil)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)

	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="document"`)
	assert.Contains(t, body, `name="tts_language"`)
	assert.Contains(t, body, `name="translate_checkbox"`)
	assert.Contains(t, body, `<option value="ro" selected>Romanian</option>`)
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	srv := newServer(t, testConfig(t), &fakeRunner{}, nil)

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestServer_Convert(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	runner := &fakeRunner{result: pipeline.Result{
		ArtifactName: "tts_0123abcd.mp3",
		Language:     "en",
		Segments:     2,
		Duration:     90 * time.Second,
	}}
	srv := newServer(t, cfg, runner, nil)

	req := uploadRequest(t, map[string]string{"tts_language": "en"}, "My Book (draft).TXT", "Hello there")

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)

	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `src="/static/tts_0123abcd.mp3"`)
	assert.Contains(t, body, "2 segment(s)")

	require.Len(t, runner.requests, 1)

	got := runner.requests[0]
	assert.Equal(t, "txt", got.Extension)
	assert.Equal(t, "en", got.Language)
	assert.False(t, got.Translate)
	assert.True(t, got.RemoveDocument)
	assert.Equal(t, cfg.Paths.UploadDir, filepath.Dir(got.DocumentPath))
	assert.True(t, strings.HasSuffix(got.DocumentPath, "_My_Book__draft_.TXT"), got.DocumentPath)
	assert.Equal(t, "Hello there", runner.documents[0])

	entries, err := os.ReadDir(cfg.Paths.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload is removed after the run")
}

func TestServer_ConvertWithTranslation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pipeline.Result{ArtifactName: "tts_1.mp3", Language: "ro", Segments: 1}}
	srv := newServer(t, testConfig(t), runner, nil)

	req := uploadRequest(t, map[string]string{"tts_language": "en", "translate_checkbox": "on"}, "book.pdf", "%PDF-1.4")

	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)

	body := readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "checked")

	require.Len(t, runner.requests, 1)
	assert.True(t, runner.requests[0].Translate)
	assert.Equal(t, "pdf", runner.requests[0].Extension)
}

func TestServer_ConvertRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fields   map[string]string
		filename string
		message  string
	}{
		{"missing document", nil, "", "No file was found"},
		{"unsupported extension", nil, "book.docx", "This file type is not allowed"},
		{"no extension", nil, "README", "This file type is not allowed"},
		{"unknown language", map[string]string{"tts_language": "xx"}, "book.txt", "not supported"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			runner := &fakeRunner{}
			srv := newServer(t, cfg, runner, nil)

			resp, err := srv.App().Test(uploadRequest(t, testCase.fields, testCase.filename, "text"), -1)
			require.NoError(t, err)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), testCase.message)
			assert.Empty(t, runner.requests)

			entries, err := os.ReadDir(cfg.Paths.UploadDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestServer_ConvertFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: no text", core.ErrEmptyDocument), http.StatusUnprocessableEntity, "The document is empty"},
		{fmt.Errorf("%w: encrypted", core.ErrExtraction), http.StatusUnprocessableEntity, "could not be read"},
		{fmt.Errorf("%w: no key", core.ErrConfiguration), http.StatusServiceUnavailable, "not configured"},
		{fmt.Errorf("%w: segment 2/3", core.ErrSynthesis), http.StatusBadGateway, "Speech generation failed."},
		{fmt.Errorf("%w: exit status 1", core.ErrConcatProcess), http.StatusInternalServerError, "Audio merging failed."},
	}

	for _, testCase := range tests {
		t.Run(testCase.err.Error(), func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, testConfig(t), &fakeRunner{err: testCase.err}, nil)

			resp, err := srv.App().Test(uploadRequest(t, nil, "book.txt", "text"), -1)
			require.NoError(t, err)

			body := readBody(t, resp)
			assert.Equal(t, testCase.status, resp.StatusCode)
			assert.Contains(t, body, testCase.message)
			assert.NotContains(t, body, "<audio")
		})
	}
}

func TestServer_OneConversionAtATime(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: pipeline.Result{ArtifactName: "tts_1.mp3"}, delay: 50 * time.Millisecond}
	srv := newServer(t, testConfig(t), runner, nil)

	// Builds the route tree before the concurrent requests.
	warmup, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	_ = warmup.Body.Close()

	var wg sync.WaitGroup

	for i := range 3 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			resp, err := srv.App().Test(uploadRequest(t, nil, fmt.Sprintf("book%d.txt", i), "text"), -1)
			if assert.NoError(t, err) {
				_ = resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, runner.requests, 3)
	assert.Equal(t, int32(1), runner.peak.Load())
}

func TestServer_Artifacts(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.StaticDir, "tts_local.mp3"), []byte("local"), 0o600))

	mirror, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, mirror.Upload(context.Background(), "tts_mirrored.mp3", []byte("mirrored")))

	srv := newServer(t, cfg, &fakeRunner{}, mirror)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/static/tts_local.mp3", http.StatusOK, "local"},
		{"/static/tts_mirrored.mp3", http.StatusOK, "mirrored"},
		{"/static/tts_missing.mp3", http.StatusNotFound, ""},
		{"/static/notes.txt", http.StatusNotFound, ""},
		{"/static/..%2Fsecret.mp3", http.StatusNotFound, ""},
	}

	for _, testCase := range tests {
		resp, testErr := srv.App().Test(httptest.NewRequest(http.MethodGet, testCase.path, nil), -1)
		require.NoError(t, testErr)

		body := readBody(t, resp)
		assert.Equal(t, testCase.status, resp.StatusCode, testCase.path)

		if testCase.status == http.StatusOK {
			assert.Equal(t, testCase.body, body)
			assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
		}
	}
}
