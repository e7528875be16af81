// Package bhl adapts the Biodiversity Heritage Library API v3 to the
// literature source contract. BHL is the archive with scanned full text, so
// most hits carry a PDF link.
package bhl

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
)

const (
	// BaseURL is the BHL API v3 endpoint.
	BaseURL = "https://www.biodiversitylibrary.org/api3"

	// SiteURL is the public BHL site used for record and PDF links.
	SiteURL = "https://www.biodiversitylibrary.org"

	// RateLimit keeps well under BHL's fair-use guidance.
	RateLimit = 2.0
)

var yearPattern = regexp.MustCompile(`\b(1[5-9]\d\d|20\d\d)\b`)

// Author is a BHL creator.
type Author struct {
	Name string `json:"Name"`
}

// Publication is one PublicationSearch hit. BHLType is "Part" (an article),
// "Item" (a scanned volume), or "Title".
type Publication struct {
	BHLType         string   `json:"BHLType"`
	PartID          string   `json:"PartID"`
	ItemID          string   `json:"ItemID"`
	TitleID         string   `json:"TitleID"`
	Title           string   `json:"Title"`
	ContainerTitle  string   `json:"ContainerTitle"`
	Genre           string   `json:"Genre"`
	Authors         []Author `json:"Authors"`
	Date            string   `json:"Date"`
	PublicationDate string   `json:"PublicationDate"`
	Volume          string   `json:"Volume"`
	PartURL         string   `json:"PartUrl"`
	ItemURL         string   `json:"ItemUrl"`
	TitleURL        string   `json:"TitleUrl"`
}

// SearchResponse is the API envelope.
type SearchResponse struct {
	Status       string        `json:"Status"`
	ErrorMessage string        `json:"ErrorMessage"`
	Result       []Publication `json:"Result"`
}

// Client searches BHL.
type Client struct {
	api    *apiclient.Client
	apiKey string
	logger *slog.Logger
}

// NewClient creates a BHL adapter. BHL requires an API key.
func NewClient(apiKey string, logger *slog.Logger, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{apiclient.WithRateLimit(RateLimit)}
	return &Client{
		api:    apiclient.New("BHL", BaseURL, append(base, opts...)...),
		apiKey: apiKey,
		logger: logger,
	}
}

// ID implements literature.Source.
func (c *Client) ID() literature.SourceID {
	return literature.SourceBHL
}

// Search implements literature.Source.
func (c *Client) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("bhl: %w", literature.ErrMissingCredentials)
	}

	params := url.Values{
		"op":         {"PublicationSearch"},
		"searchterm": {name},
		"searchtype": {"F"},
		"page":       {"1"},
		"apikey":     {c.apiKey},
		"format":     {"json"},
	}

	var resp SearchResponse
	err := c.api.GetJSON(ctx, "", params, &resp)
	if err == nil && !strings.EqualFold(resp.Status, "ok") && resp.Status != "" {
		err = fmt.Errorf("%w: %s", apiclient.ErrInvalidResponse, resp.ErrorMessage)
	}
	if err != nil {
		if apiclient.IsSoftFailure(err) {
			logger.FromContext(ctx, c.logger).Warn("source_search_degraded",
				slog.String("source", string(literature.SourceBHL)),
				slog.String("name", name),
				slog.String("error", err.Error()))
			return []literature.Item{}, nil
		}
		return nil, fmt.Errorf("bhl search: %w", err)
	}

	items := make([]literature.Item, 0, len(resp.Result))
	for _, p := range resp.Result {
		item, ok := MapPublication(p, name)
		if !ok || !opts.InRange(item.Year) {
			continue
		}
		items = append(items, item)
	}
	return literature.Cap(items, opts.MaxResults), nil
}

// MapPublication converts a BHL hit to a literature item. Hits without a
// title or identifier are dropped.
func MapPublication(p Publication, matchedName string) (literature.Item, bool) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return literature.Item{}, false
	}

	var id, link, pdf string
	switch {
	case p.PartID != "":
		id = "part-" + p.PartID
		link = firstNonEmpty(p.PartURL, SiteURL+"/part/"+p.PartID)
		pdf = SiteURL + "/partpdf/" + p.PartID
	case p.ItemID != "":
		id = "item-" + p.ItemID
		link = firstNonEmpty(p.ItemURL, SiteURL+"/item/"+p.ItemID)
		pdf = SiteURL + "/itempdf/" + p.ItemID
	case p.TitleID != "":
		id = "title-" + p.TitleID
		link = firstNonEmpty(p.TitleURL, SiteURL+"/bibliography/"+p.TitleID)
	default:
		return literature.Item{}, false
	}

	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		if n := strings.TrimSpace(a.Name); n != "" {
			authors = append(authors, n)
		}
	}

	return literature.Item{
		ID:          string(literature.SourceBHL) + ":" + id,
		Source:      literature.SourceBHL,
		Title:       title,
		Authors:     authors,
		Year:        ParseYear(firstNonEmpty(p.Date, p.PublicationDate)),
		Venue:       p.ContainerTitle,
		URL:         link,
		PDFURL:      pdf,
		MatchedName: matchedName,
	}, true
}

// ParseYear extracts the first plausible four-digit year from a BHL date
// string such as "1803", "1850-1852", or "[1899?]".
func ParseYear(s string) *int {
	m := yearPattern.FindString(s)
	if m == "" {
		return nil
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &y
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
