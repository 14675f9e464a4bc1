package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL         = "http://localhost:11434"
	defaultConnectTimeout  = 30 * time.Second
	defaultResponseTimeout = 300 * time.Second
	defaultIdleTimeout     = 60 * time.Second

	// maxErrorBody bounds how much of a failed response is kept.
	maxErrorBody = 64 << 10
)

// Timeouts separates connection setup from response completion. Generation
// latency dwarfs connection setup, so the two are bounded independently.
type Timeouts struct {
	// Connect bounds TCP dial and TLS handshake.
	Connect time.Duration
	// Response bounds the whole exchange, including generation.
	Response time.Duration
	// Idle bounds how long pooled connections are kept.
	Idle time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = defaultConnectTimeout
	}
	if t.Response <= 0 {
		t.Response = defaultResponseTimeout
	}
	if t.Idle <= 0 {
		t.Idle = defaultIdleTimeout
	}
	return t
}

// NewHTTPClient builds an http.Client applying the timeout policy.
func NewHTTPClient(t Timeouts) *http.Client {
	t = t.withDefaults()
	return &http.Client{
		Timeout: t.Response,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   t.Connect,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       t.Idle,
			TLSHandshakeTimeout:   t.Connect,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// OllamaConfig configures an OllamaClient.
type OllamaConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:11434.
	BaseURL string
	// Model is used when a request does not name one.
	Model    string
	Timeouts Timeouts
}

// OllamaClient calls the /api/generate endpoint with streaming disabled.
type OllamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllamaClient creates a client for an Ollama-compatible backend.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	return &OllamaClient{
		endpoint: generateEndpoint(cfg.BaseURL),
		model:    cfg.Model,
		http:     NewHTTPClient(cfg.Timeouts),
	}
}

type generatePayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate posts the prompt and returns the backend's response field.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm client is nil")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload, err := json.Marshal(generatePayload{Model: model, Prompt: req.Prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &BackendError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		var netErr net.Error
		if ctx.Err() != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return decoded.Response, nil
}

func generateEndpoint(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/api/generate") {
		return trimmed
	}
	return trimmed + "/api/generate"
}
