package intake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
)

// FetchTimeout bounds a single remote download.
const FetchTimeout = 2 * time.Minute

// Fetcher downloads remote PDFs (typically an item's pdfUrl) and runs them
// through the same validation as uploads.
type Fetcher struct {
	intake     *Intake
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFetcher creates a Fetcher that stores into in. perSecond <= 0 disables
// rate limiting.
func NewFetcher(in *Intake, hc *http.Client, perSecond float64) *Fetcher {
	if hc == nil {
		hc = &http.Client{Timeout: FetchTimeout}
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Fetcher{intake: in, httpClient: hc, limiter: rate.NewLimiter(limit, 1)}
}

// Fetch downloads rawURL and accepts it as a PDF. name overrides the file
// name taken from the URL path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, name string) (*document.Asset, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid url %q", apperr.ErrValidation, rawURL)
	}
	if name == "" {
		name = path.Base(u.Path)
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s: %v", apperr.ErrUpstreamUnavailable, u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching %s: status %d", apperr.ErrUpstreamUnavailable, u.Host, resp.StatusCode)
	}

	return f.intake.Accept(ctx, Upload{
		FileName:  name,
		Size:      resp.ContentLength,
		Body:      io.LimitReader(resp.Body, f.intake.maxBytes+1),
		SourceURL: rawURL,
	})
}
