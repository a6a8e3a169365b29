package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultSystemPrompt is sent when a GenerateRequest carries none.
const DefaultSystemPrompt = "You are a helpful, privacy-aware AI assistant operating under the " +
	"Nexus Sovereign Standard.  Always respect GDPR constraints."

// OllamaClient talks to the Ollama HTTP API. It never retries; each call is
// bounded by the client timeout and the caller's context.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	embedModel   string
	httpClient   *http.Client
}

type OllamaOption func(*OllamaClient)

func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *OllamaClient) {
		o.httpClient = c
	}
}

func WithEmbedModel(model string) OllamaOption {
	return func(o *OllamaClient) {
		o.embedModel = model
	}
}

func NewOllamaClient(baseURL, defaultModel string, timeout time.Duration, opts ...OllamaOption) *OllamaClient {
	c := &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		embedModel:   "nomic-embed-text",
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generatePayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embedPayload struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	system := req.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	var out generateResponse
	err := c.post(ctx, "generate", "/api/generate", generatePayload{
		Model:  model,
		Prompt: req.Prompt,
		System: system,
		Stream: false,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Response, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embedResponse
	if err := c.post(ctx, "embed", "/api/embeddings", embedPayload{Model: c.embedModel, Prompt: text}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, &CapabilityError{Category: ErrorBadResponse, Op: "embed", Err: errors.New("empty embedding")}
	}
	return out.Embedding, nil
}

// Health reports whether the server answers GET /api/tags.
func (c *OllamaClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return &CapabilityError{Category: ErrorTransport, Op: "health", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify("health", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &CapabilityError{Category: ErrorTransport, Op: "health", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

func (c *OllamaClient) post(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &CapabilityError{Category: ErrorTransport, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &CapabilityError{Category: ErrorTransport, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &CapabilityError{
			Category: ErrorTransport,
			Op:       op,
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return &CapabilityError{Category: ErrorTimeout, Op: op, Err: err}
		}
		return &CapabilityError{Category: ErrorBadResponse, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func classify(op string, err error) error {
	if isTimeout(err) {
		return &CapabilityError{Category: ErrorTimeout, Op: op, Err: err}
	}
	return &CapabilityError{Category: ErrorTransport, Op: op, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
