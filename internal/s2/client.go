// Package s2 adapts the Semantic Scholar paper search API to the literature
// source contract.
package s2

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
)

const (
	// BaseURL is the Semantic Scholar Graph API base URL.
	BaseURL = "https://api.semanticscholar.org/graph/v1"

	// RateLimit is 1 request per second for keyed access.
	RateLimit = 1.0

	// SearchFields are the fields requested for search hits.
	SearchFields = "title,abstract,authors,year,venue,url,externalIds,isOpenAccess,openAccessPdf"

	// maxPageSize is the API's per-request ceiling.
	maxPageSize = 100

	snippetLen = 300
)

// Client searches Semantic Scholar.
type Client struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewClient creates a Semantic Scholar adapter. The API key is optional.
func NewClient(apiKey string, logger *slog.Logger, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{
		apiclient.WithRateLimit(RateLimit),
		apiclient.WithHeader("x-api-key", apiKey),
	}
	return &Client{
		api:    apiclient.New("Semantic Scholar", BaseURL, append(base, opts...)...),
		logger: logger,
	}
}

// ID implements literature.Source.
func (c *Client) ID() literature.SourceID {
	return literature.SourceS2
}

// yearParam renders the API's year range syntax ("1800-1900", "1800-", "-1900").
func yearParam(from, to *int) string {
	if from == nil && to == nil {
		return ""
	}
	var b strings.Builder
	if from != nil {
		b.WriteString(strconv.Itoa(*from))
	}
	b.WriteString("-")
	if to != nil {
		b.WriteString(strconv.Itoa(*to))
	}
	return b.String()
}

// Search implements literature.Source.
func (c *Client) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	limit := opts.MaxResults
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{
		"query":  {name},
		"limit":  {strconv.Itoa(limit)},
		"fields": {SearchFields},
	}
	if y := yearParam(opts.YearFrom, opts.YearTo); y != "" {
		params.Set("year", y)
	}

	var resp SearchResponse
	if err := c.api.GetJSON(ctx, "/paper/search", params, &resp); err != nil {
		if apiclient.IsSoftFailure(err) {
			logger.FromContext(ctx, c.logger).Warn("source_search_degraded",
				slog.String("source", string(literature.SourceS2)),
				slog.String("name", name),
				slog.String("error", err.Error()))
			return []literature.Item{}, nil
		}
		return nil, fmt.Errorf("semantic scholar search: %w", err)
	}

	items := make([]literature.Item, 0, len(resp.Data))
	for _, p := range resp.Data {
		item := MapPaper(p, name)
		if !opts.InRange(item.Year) {
			continue
		}
		items = append(items, item)
	}
	return literature.Cap(items, opts.MaxResults), nil
}

// MapPaper converts a Semantic Scholar paper to a literature item.
func MapPaper(p Paper, matchedName string) literature.Item {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}

	item := literature.Item{
		ID:          string(literature.SourceS2) + ":" + p.PaperID,
		Source:      literature.SourceS2,
		Title:       strings.TrimSpace(p.Title),
		Authors:     authors,
		Year:        literature.Year(p.Year),
		Venue:       p.Venue,
		URL:         p.URL,
		Snippet:     truncate(p.Abstract, snippetLen),
		MatchedName: matchedName,
	}
	if item.URL == "" && p.PaperID != "" {
		item.URL = "https://www.semanticscholar.org/paper/" + p.PaperID
	}
	if p.OpenAccessPDF != nil {
		item.PDFURL = p.OpenAccessPDF.URL
	}
	return item
}

// truncate shortens s to at most n runes, adding "..." when cut.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
