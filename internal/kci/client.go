// Package kci adapts the Korea Citation Index Open API article search to the
// literature source contract.
package kci

import (
	"context"
	"encoding/xml"
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
	// BaseURL is the KCI Open API endpoint.
	BaseURL = "https://open.kci.go.kr/po/openapi/openApiSearch.kci"

	// RateLimit is a conservative request rate for the public API.
	RateLimit = 2.0

	maxDisplayCount = 100
	snippetLen      = 300
)

// MetaData is the KCI response envelope.
type MetaData struct {
	XMLName xml.Name `xml:"MetaData"`
	Output  Output   `xml:"outputData"`
}

// Output holds the result summary and the records.
type Output struct {
	Total   int      `xml:"result>total"`
	Records []Record `xml:"record"`
}

// Record is one article.
type Record struct {
	Journal JournalInfo `xml:"journalInfo"`
	Article ArticleInfo `xml:"articleInfo"`
}

// JournalInfo describes the containing journal issue.
type JournalInfo struct {
	Name    string `xml:"journal-name"`
	PubYear string `xml:"pub-year"`
}

// ArticleInfo describes the article itself.
type ArticleInfo struct {
	ID          string     `xml:"article-id,attr"`
	Titles      []LangText `xml:"title-group>article-title"`
	Authors     []string   `xml:"author-group>author"`
	Abstracts   []LangText `xml:"abstract-group>abstract"`
	URL         string     `xml:"url"`
	FulltextURL string     `xml:"fulltext-url"`
}

// LangText is a text node tagged with its language.
type LangText struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

// pick returns the text in lang, else the first non-empty entry.
func pick(texts []LangText, lang string) string {
	for _, t := range texts {
		if t.Lang == lang && strings.TrimSpace(t.Text) != "" {
			return strings.TrimSpace(t.Text)
		}
	}
	for _, t := range texts {
		if s := strings.TrimSpace(t.Text); s != "" {
			return s
		}
	}
	return ""
}

// Client searches KCI.
type Client struct {
	api    *apiclient.Client
	apiKey string
	logger *slog.Logger
}

// NewClient creates a KCI adapter. KCI requires an API key.
func NewClient(apiKey string, logger *slog.Logger, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{apiclient.WithRateLimit(RateLimit)}
	return &Client{
		api:    apiclient.New("KCI", BaseURL, append(base, opts...)...),
		apiKey: apiKey,
		logger: logger,
	}
}

// ID implements literature.Source.
func (c *Client) ID() literature.SourceID {
	return literature.SourceKCI
}

// Search implements literature.Source.
func (c *Client) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("kci: %w", literature.ErrMissingCredentials)
	}

	count := opts.MaxResults
	if count <= 0 || count > maxDisplayCount {
		count = maxDisplayCount
	}
	params := url.Values{
		"apiCode":      {"articleSearch"},
		"key":          {c.apiKey},
		"keyword":      {name},
		"displayCount": {strconv.Itoa(count)},
		"page":         {"1"},
	}
	if opts.YearFrom != nil {
		params.Set("dateFrom", strconv.Itoa(*opts.YearFrom)+"01")
	}
	if opts.YearTo != nil {
		params.Set("dateTo", strconv.Itoa(*opts.YearTo)+"12")
	}

	var resp MetaData
	if err := c.api.GetXML(ctx, "", params, &resp); err != nil {
		if apiclient.IsSoftFailure(err) {
			logger.FromContext(ctx, c.logger).Warn("source_search_degraded",
				slog.String("source", string(literature.SourceKCI)),
				slog.String("name", name),
				slog.String("error", err.Error()))
			return []literature.Item{}, nil
		}
		return nil, fmt.Errorf("kci search: %w", err)
	}

	items := make([]literature.Item, 0, len(resp.Output.Records))
	for _, r := range resp.Output.Records {
		item, ok := MapRecord(r, name)
		if !ok || !opts.InRange(item.Year) {
			continue
		}
		items = append(items, item)
	}
	return literature.Cap(items, opts.MaxResults), nil
}

// MapRecord converts a KCI record to a literature item.
func MapRecord(r Record, matchedName string) (literature.Item, bool) {
	title := pick(r.Article.Titles, "original")
	if title == "" {
		return literature.Item{}, false
	}

	var year *int
	if y, err := strconv.Atoi(strings.TrimSpace(r.Journal.PubYear)); err == nil {
		year = &y
	}

	authors := make([]string, 0, len(r.Article.Authors))
	for _, a := range r.Article.Authors {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	link := strings.TrimSpace(r.Article.URL)
	if link == "" && r.Article.ID != "" {
		link = "https://www.kci.go.kr/kciportal/ci/sereArticleSearch/ciSereArtiView.kci?sereArticleSearchBean.artiId=" + r.Article.ID
	}

	id := r.Article.ID
	if id == "" {
		id = strings.ToLower(strings.Join(strings.Fields(title), "-"))
	}

	abstract := []rune(pick(r.Article.Abstracts, "original"))
	snippet := string(abstract)
	if len(abstract) > snippetLen {
		snippet = string(abstract[:snippetLen]) + "..."
	}

	return literature.Item{
		ID:          string(literature.SourceKCI) + ":" + id,
		Source:      literature.SourceKCI,
		Title:       title,
		Authors:     authors,
		Year:        year,
		Venue:       strings.TrimSpace(r.Journal.Name),
		URL:         link,
		PDFURL:      strings.TrimSpace(r.Article.FulltextURL),
		Snippet:     snippet,
		MatchedName: matchedName,
	}, true
}
