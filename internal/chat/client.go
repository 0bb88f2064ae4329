// Package chat answers a single question through a local Ollama server.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when the model produced only whitespace.
var ErrEmptyResponse = errors.New("Empty response from Ollama")

// StatusError is a non-200 reply from the model server.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Ollama API error: %d %s", e.Status, e.Body)
}

// ConnectError wraps a transport failure.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return "Failed to connect to AI service: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaClient calls the /api/generate endpoint without streaming.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	logger     *slog.Logger
}

// NewOllamaClient creates a client. A zero timeout means 60s.
func NewOllamaClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *OllamaClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		// Generation can take longer than the shared client's header timeout.
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		logger:     logger.With("component", "chat.ollama"),
	}
}

// Generate sends prompt and returns the trimmed completion.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	o.logger.Debug("generating", "model", o.model)
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", &ConnectError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ConnectError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		o.logger.Error("model server returned an error", "status", resp.StatusCode)
		return "", &StatusError{Status: resp.StatusCode, Body: string(raw)}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &ConnectError{Err: err}
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
