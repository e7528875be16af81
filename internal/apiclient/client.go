// Package apiclient provides the rate-limited HTTP client shared by the
// literature source adapters.
package apiclient

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default number of requests per second.
	DefaultRateLimit = 5.0

	// MaxBodyBytes bounds how much of a response body is read.
	MaxBodyBytes = 16 * 1024 * 1024

	userAgent = "firstrecord/1.0 (+https://github.com/matsen/firstrecord)"
)

// Client is a rate-limited HTTP client for one upstream service.
type Client struct {
	service    string
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	headers    map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit sets the sustained requests per second. Values <= 0 disable
// limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers[key] = value
		}
	}
}

// New creates a client for service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service:    service,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Service returns the upstream service name used in errors.
func (c *Client) Service() string {
	return c.service
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func (c *Client) checkHTTPErrors(resp *http.Response) error {
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: %s status %d", ErrAuthError, c.service, resp.StatusCode)
	case resp.StatusCode == 404:
		return fmt.Errorf("%w: %s status %d", ErrNotFound, c.service, resp.StatusCode)
	case resp.StatusCode == 429:
		return fmt.Errorf("%w: %s status %d", ErrRateLimited, c.service, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}
	return nil
}

// Get issues a rate-limited GET for path with the given query parameters and
// returns the response body. A 204 response yields a nil body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrNetworkError, err)
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetworkError, c.service, stripURL(err))
	}
	defer resp.Body.Close()

	if err := c.checkHTTPErrors(resp); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrNetworkError, c.service, stripURL(err))
	}
	return body, nil
}

// GetJSON issues a GET and decodes a JSON body into v. An empty body leaves v
// untouched.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: parsing %s response: %v", ErrInvalidResponse, c.service, err)
	}
	return nil
}

// GetXML issues a GET and decodes an XML body into v.
func (c *Client) GetXML(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := xml.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: parsing %s response: %v", ErrInvalidResponse, c.service, err)
	}
	return nil
}

// stripURL drops the request URL from transport errors. Several upstreams
// take credentials as query parameters.
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
