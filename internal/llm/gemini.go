package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
)

const (
	// DefaultGeminiURL is the Gemini API endpoint.
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultGenerateTimeout bounds one generation call.
	DefaultGenerateTimeout = 2 * time.Minute
)

// GeminiClient calls the Gemini generateContent API.
type GeminiClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithGeminiURL sets the API base URL.
func WithGeminiURL(url string) GeminiOption {
	return func(g *GeminiClient) {
		g.baseURL = strings.TrimRight(url, "/")
	}
}

// WithGeminiHTTPClient sets the HTTP client.
func WithGeminiHTTPClient(hc *http.Client) GeminiOption {
	return func(g *GeminiClient) {
		g.client = hc
	}
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		baseURL: DefaultGeminiURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultGenerateTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature      float64 `json:"temperature"`
		ResponseMimeType string  `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

// Generate implements Generator.
func (g *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	if g.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	reqBody.GenerationConfig.Temperature = 0.1
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: gemini rate limit (status 429)", apperr.ErrQuotaExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: gemini returned status %d: %s",
			apperr.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decoding gemini response: %v", ErrBadResponse, err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", ErrBadResponse)
	}

	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty gemini candidate (finish reason %s)", ErrBadResponse, result.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
