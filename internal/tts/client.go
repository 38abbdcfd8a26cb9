// Package tts converts text segments into MP3 speech fragments through the
// Google Translate speech endpoint and schedules those calls for a whole
// document.
package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/doc2speech/internal/core"
	"github.com/book-expert/doc2speech/internal/tts/audio"
)

// API endpoints and query parameters.
const (
	apiTranslateTTS = "/translate_tts"
	paramEncoding   = "ie"
	paramQuery      = "q"
	paramLanguage   = "tl"
	paramClient     = "client"
	paramTotal      = "total"
	paramIndex      = "idx"
	paramTextLen    = "textlen"
	valueEncoding   = "UTF-8"
	valueClient     = "tw-ob"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
	headerReferer     = "Referer"
	contentTypeAudio  = "audio/"
	userAgent         = "Mozilla/5.0 (X11; Linux x86_64) doc2speech"
	maxErrorBodyBytes = 512
)

// MaxPartChars is the longest text the speech endpoint accepts in one request.
const MaxPartChars = 100

// Error messages.
const (
	errTextCannotBeEmpty     = "text cannot be empty"
	errLanguageCannotBeEmpty = "language cannot be empty"
	errFmtUnexpectedType     = "unexpected content type: expected audio/*, got %q"
	errFmtNonOKStatus        = "speech service returned non-OK status: %s, body: %s"
	errFmtSendRequest        = "failed to send request to speech service at %s: %w"
	errFmtPart               = "%w: part %d/%d: %w"
)

// Client errors. Every error returned by Synthesize also wraps core.ErrSynthesis.
var (
	ErrReceivedEmptyAudio = errors.New("received empty audio data")
	ErrServiceStatus      = errors.New("speech service error")
)

// HTTPClient represents a client for the Google Translate speech endpoint.
type HTTPClient struct {
	httpClient   *http.Client
	baseURL      string
	maxPartChars int
}

var _ core.Synthesizer = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the speech endpoint at baseURL
// (e.g. "https://translate.google.com"). timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		maxPartChars: MaxPartChars,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize returns MP3 speech for text in language. The endpoint only
// accepts short inputs, so text is split into parts of at most MaxPartChars
// runes at whitespace or punctuation and the audio of each part is appended
// in order. Any failed part fails the whole call.
func (c *HTTPClient) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesis, errTextCannotBeEmpty)
	}

	if language == "" {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesis, errLanguageCannotBeEmpty)
	}

	parts := Tokenize(text, c.maxPartChars)

	var speech bytes.Buffer

	for index, part := range parts {
		data, err := c.fetchPart(ctx, part, language, index, len(parts))
		if err != nil {
			return nil, fmt.Errorf(errFmtPart, core.ErrSynthesis, index+1, len(parts), err)
		}

		speech.Write(data)
	}

	return speech.Bytes(), nil
}

func (c *HTTPClient) fetchPart(ctx context.Context, part, language string, index, total int) ([]byte, error) {
	query := url.Values{}
	query.Set(paramEncoding, valueEncoding)
	query.Set(paramQuery, part)
	query.Set(paramLanguage, language)
	query.Set(paramClient, valueClient)
	query.Set(paramTotal, strconv.Itoa(total))
	query.Set(paramIndex, strconv.Itoa(index))
	query.Set(paramTextLen, strconv.Itoa(utf8.RuneCountInString(part)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiTranslateTTS+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerUserAgent, userAgent)
	req.Header.Set(headerReferer, c.baseURL+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, fmt.Errorf("%w: "+errFmtNonOKStatus, ErrServiceStatus, resp.Status, strings.TrimSpace(string(body)))
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeAudio) {
		return nil, fmt.Errorf("%w: "+errFmtUnexpectedType, ErrServiceStatus, contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	validateErr := audio.ValidateFragment(data)
	if validateErr != nil {
		return nil, validateErr
	}

	// Parts are appended into one fragment, so each loses its own tags here.
	frames, err := audio.StripTags(data)
	if err != nil {
		return nil, fmt.Errorf("failed to strip tags: %w", err)
	}

	if len(frames) == 0 {
		return nil, ErrReceivedEmptyAudio
	}

	return frames, nil
}

// Tokenize splits text into trimmed, non-empty parts of at most maxChars
// runes. A part ends after the last sentence punctuation or before the last
// whitespace inside the window, whichever comes later; a window without
// either is cut hard.
func Tokenize(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = MaxPartChars
	}

	runes := []rune(strings.TrimSpace(text))
	parts := make([]string, 0, len(runes)/maxChars+1)

	for len(runes) > 0 {
		cut := len(runes)
		if cut > maxChars {
			cut = breakPoint(runes[:maxChars+1])
		}

		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}

		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}

	return parts
}

// breakPoint returns the exclusive end of the first part within window,
// which holds one rune more than a part may contain.
func breakPoint(window []rune) int {
	limit := len(window) - 1

	for i := limit; i > 0; i-- {
		r := window[i]

		if unicode.IsSpace(r) {
			return i
		}

		if i < limit && isBreakPunct(r) {
			return i + 1
		}
	}

	return limit
}

func isBreakPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '…':
		return true
	default:
		return false
	}
}
