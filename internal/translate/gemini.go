// Package translate provides the document translation client backed by the
// Gemini generateContent REST API.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API paths and headers.
const (
	apiGenerateContent = "/v1beta/models/%s:generateContent"
	headerContentType  = "Content-Type"
	headerAPIKey       = "x-goog-api-key"
	contentTypeJSON    = "application/json"
	roleUser           = "user"
	statusUnavailable  = "UNAVAILABLE"
	maxErrorBodyBytes  = 4096
)

// Error messages.
const (
	errFmtServiceError   = "generative service error (%s): %s [%s]"
	errFmtServiceNonOK   = "generative service returned non-OK status: %s, body: %s"
	errFmtSendRequest    = "failed to send request to generative service at %s: %w"
	errFmtDecodeResponse = "failed to decode generative service response: %w"
	errFmtMarshalRequest = "failed to marshal generative request: %w"
	errFmtCreateRequest  = "failed to create generative request: %w"
	errFmtPromptBlocked  = "prompt was blocked: %s"
	errFmtClassified     = "%w: %w"
)

// Client errors.
var (
	ErrServiceUnavailable = errors.New("generative service unavailable")
	ErrServiceRejected    = errors.New("generative service rejected the request")
	ErrEmptyResponse      = errors.New("generative service returned an empty response")
)

// GeminiClient sends single-turn prompts to the generateContent endpoint.
type GeminiClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiClient creates a client for the given model. timeout bounds each
// individual request.
func NewGeminiClient(baseURL, model, apiKey string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
	}
}

// Generate sends prompt as one user turn and returns the concatenated text of
// the first candidate. Overload conditions (HTTP 503 or status UNAVAILABLE)
// wrap ErrServiceUnavailable; every other service failure wraps
// ErrServiceRejected.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: roleUser, Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf(errFmtMarshalRequest, err)
	}

	endpoint := c.baseURL + fmt.Sprintf(apiGenerateContent, url.PathEscape(c.model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf(errFmtCreateRequest, err)
	}

	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAPIKey, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseErrorResponse(resp)
	}

	var decoded generateResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&decoded)
	if decodeErr != nil {
		return "", fmt.Errorf(errFmtDecodeResponse, decodeErr)
	}

	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: "+errFmtPromptBlocked, ErrServiceRejected, decoded.PromptFeedback.BlockReason)
	}

	text := responseText(decoded)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}

	return text, nil
}

func responseText(resp generateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		builder.WriteString(p.Text)
	}

	return builder.String()
}

// parseErrorResponse classifies a non-OK response. It falls back to the raw
// body when the service did not send its structured error document.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var decoded errorResponse

	var serviceErr error
	if json.Unmarshal(raw, &decoded) == nil && decoded.Error.Message != "" {
		serviceErr = fmt.Errorf(errFmtServiceError, resp.Status, decoded.Error.Message, decoded.Error.Status)
	} else {
		serviceErr = fmt.Errorf(errFmtServiceNonOK, resp.Status, strings.TrimSpace(string(raw)))
	}

	if resp.StatusCode == http.StatusServiceUnavailable || decoded.Error.Status == statusUnavailable {
		return fmt.Errorf(errFmtClassified, ErrServiceUnavailable, serviceErr)
	}

	return fmt.Errorf(errFmtClassified, ErrServiceRejected, serviceErr)
}
