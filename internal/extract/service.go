package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
)

const (
	// DefaultServiceURL is the default extraction service endpoint.
	DefaultServiceURL = "http://localhost:8000"

	// DefaultTimeout allows for OCR of long scanned documents.
	DefaultTimeout = 5 * time.Minute

	// apiPathExtract is the extraction endpoint.
	apiPathExtract = "/extract"
)

// ServiceClient calls the external extraction service.
type ServiceClient struct {
	baseURL string
	client  *http.Client
}

// ServiceOption configures a ServiceClient.
type ServiceOption func(*ServiceClient)

// WithServiceURL sets the service base URL.
func WithServiceURL(url string) ServiceOption {
	return func(s *ServiceClient) {
		if url != "" {
			s.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ServiceOption {
	return func(s *ServiceClient) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// NewServiceClient creates an extraction service client.
func NewServiceClient(opts ...ServiceOption) *ServiceClient {
	s := &ServiceClient{
		baseURL: DefaultServiceURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Extractor.
func (s *ServiceClient) Name() string {
	return "service"
}

// Extract uploads the file at path with opts and decodes the result.
func (s *ServiceClient) Extract(ctx context.Context, path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperr.ErrInternal, filepath.Base(path), err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperr.ErrInternal, filepath.Base(path), err)
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshaling options: %w", err)
	}
	if err := mw.WriteField("options", string(optsJSON)); err != nil {
		return nil, fmt.Errorf("writing options: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+apiPathExtract, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: extraction service: %v", apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: extraction service returned status %d: %s",
			apperr.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding extraction response: %v", apperr.ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, ErrNoText
	}
	result.Method = s.Name()
	return &result, nil
}
