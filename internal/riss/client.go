// Package riss scrapes the RISS (Research Information Sharing Service)
// search results page. RISS has no public JSON API.
package riss

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
)

const (
	// BaseURL is the RISS site root.
	BaseURL = "https://www.riss.kr"

	// SearchPath is the search results page.
	SearchPath = "/search/Search.do"

	// RateLimit keeps scraping polite.
	RateLimit = 1.0

	// collection of domestic academic journal articles
	colName = "re_a_kor"

	maxPageScale = 100
)

var yearRe = regexp.MustCompile(`\b(1[5-9]\d\d|20\d\d)\b`)

// Client scrapes RISS search results.
type Client struct {
	api    *apiclient.Client
	logger *slog.Logger
}

// NewClient creates a RISS adapter. No credentials are needed.
func NewClient(logger *slog.Logger, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{apiclient.WithRateLimit(RateLimit)}
	return &Client{
		api:    apiclient.New("RISS", BaseURL, append(base, opts...)...),
		logger: logger,
	}
}

// ID implements literature.Source.
func (c *Client) ID() literature.SourceID {
	return literature.SourceRISS
}

// Search implements literature.Source.
func (c *Client) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	scale := opts.MaxResults
	if scale <= 0 || scale > maxPageScale {
		scale = maxPageScale
	}
	params := url.Values{
		"query":       {name},
		"colName":     {colName},
		"pageScale":   {strconv.Itoa(scale)},
		"iStartCount": {"0"},
	}

	body, err := c.api.Get(ctx, SearchPath, params)
	if err != nil {
		if apiclient.IsSoftFailure(err) {
			c.degraded(ctx, name, err)
			return []literature.Item{}, nil
		}
		return nil, fmt.Errorf("riss search: %w", err)
	}

	items, err := ParseResults(body, name)
	if err != nil {
		c.degraded(ctx, name, err)
		return []literature.Item{}, nil
	}

	out := items[:0]
	for _, it := range items {
		if opts.InRange(it.Year) {
			out = append(out, it)
		}
	}
	return literature.Cap(out, opts.MaxResults), nil
}

func (c *Client) degraded(ctx context.Context, name string, err error) {
	logger.FromContext(ctx, c.logger).Warn("source_search_degraded",
		slog.String("source", string(literature.SourceRISS)),
		slog.String("name", name),
		slog.String("error", err.Error()))
}

// ParseResults extracts result entries from a RISS search page.
func ParseResults(page []byte, matchedName string) ([]literature.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing RISS page: %v", apiclient.ErrInvalidResponse, err)
	}

	var items []literature.Item
	doc.Find(".srchResultListW > ul > li").Each(func(_ int, s *goquery.Selection) {
		link := s.Find(".title a").First()
		title := collapse(link.Text())
		if title == "" {
			return
		}

		href, _ := link.Attr("href")
		abs := absoluteURL(href)
		controlNo := controlNumber(href)
		id := controlNo
		if id == "" {
			id = strings.ToLower(strings.Join(strings.Fields(title), "-"))
		}

		var (
			authors []string
			venue   string
			year    *int
		)
		s.Find(".etc span").Each(func(_ int, span *goquery.Selection) {
			text := collapse(span.Text())
			switch {
			case text == "":
			case span.HasClass("writer"):
				for _, a := range strings.Split(text, ";") {
					if a = strings.TrimSpace(a); a != "" {
						authors = append(authors, a)
					}
				}
			case span.HasClass("assigned"):
				venue = text
			case year == nil && yearRe.MatchString(text):
				y, _ := strconv.Atoi(yearRe.FindString(text))
				year = &y
			}
		})

		items = append(items, literature.Item{
			ID:          string(literature.SourceRISS) + ":" + id,
			Source:      literature.SourceRISS,
			Title:       title,
			Authors:     authors,
			Year:        year,
			Venue:       venue,
			URL:         abs,
			Snippet:     collapse(s.Find(".preAbstract").Text()),
			MatchedName: matchedName,
		})
	})
	if items == nil {
		items = []literature.Item{}
	}
	return items, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, _ := url.Parse(BaseURL)
	return base.ResolveReference(u).String()
}

func controlNumber(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("control_no")
}
