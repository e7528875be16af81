package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/matsen/firstrecord/internal/apperr"
)

const (
	// DefaultOllamaURL is the default Ollama API endpoint.
	DefaultOllamaURL = "http://localhost:11434"

	// apiPathGenerate is the Ollama completion endpoint.
	apiPathGenerate = "/api/generate"
)

// OllamaClient generates completions with a local Ollama server.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates an Ollama client for baseURL (default if empty).
func NewOllamaClient(baseURL string, hc *http.Client) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: DefaultGenerateTimeout}
	}
	return &OllamaClient{baseURL: strings.TrimRight(baseURL, "/"), client: hc}
}

// ollamaGenerateRequest is the request body for the Ollama generate API.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

// ollamaGenerateResponse is the non-streaming response from the generate API.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements Generator.
func (o *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: model, Prompt: prompt, Format: "json"})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+apiPathGenerate, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ollama is not running: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: ollama returned status %d: %s",
			apperr.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decoding ollama response: %v", ErrBadResponse, err)
	}
	return result.Response, nil
}
