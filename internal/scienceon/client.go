// Package scienceon adapts the KISTI ScienceON open API. One client serves
// three sources: articles, patents, and research reports.
package scienceon

import (
	"context"
	"encoding/json"
	"encoding/xml"
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
	// BaseURL is the ScienceON API gateway.
	BaseURL = "https://apigateway.kisti.re.kr/openapicall.do"

	// RateLimit is shared by all three targets.
	RateLimit = 2.0

	maxRowCount = 100
	snippetLen  = 300
)

// Target selects the ScienceON collection.
type Target string

const (
	TargetArticle Target = "ARTI"
	TargetPatent  Target = "PATENT"
	TargetReport  Target = "REPORT"
)

var yearRe = regexp.MustCompile(`(1[5-9]\d\d|20\d\d)`)

// Response is the ScienceON XML envelope.
type Response struct {
	XMLName    xml.Name `xml:"response"`
	StatusCode string   `xml:"header>statusCode"`
	Message    string   `xml:"header>statusMessage"`
	Total      int      `xml:"resultSummary>totalCount"`
	Records    []Record `xml:"recordList>record"`
}

// Record is a list of metaCode-tagged fields.
type Record struct {
	Fields []Field `xml:"item"`
}

// Field is one metadata value.
type Field struct {
	Code  string `xml:"metaCode,attr"`
	Value string `xml:",chardata"`
}

// Get returns the first non-empty value for any of codes.
func (r Record) Get(codes ...string) string {
	for _, code := range codes {
		for _, f := range r.Fields {
			if strings.EqualFold(f.Code, code) {
				if v := strings.TrimSpace(f.Value); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// Client queries ScienceON.
type Client struct {
	api      *apiclient.Client
	clientID string
	token    string
	logger   *slog.Logger
}

// NewClient creates a ScienceON adapter. Both the client id and the access
// token are required.
func NewClient(clientID, token string, logger *slog.Logger, opts ...apiclient.Option) *Client {
	base := []apiclient.Option{apiclient.WithRateLimit(RateLimit)}
	return &Client{
		api:      apiclient.New("ScienceON", BaseURL, append(base, opts...)...),
		clientID: clientID,
		token:    token,
		logger:   logger,
	}
}

// ID implements literature.Source for the article collection.
func (c *Client) ID() literature.SourceID {
	return literature.SourceScienceON
}

// Search implements literature.Source.
func (c *Client) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	return c.search(ctx, TargetArticle, literature.SourceScienceON, name, opts)
}

// SearchPatents implements literature.PatentSearcher.
func (c *Client) SearchPatents(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	return c.search(ctx, TargetPatent, literature.SourceScienceONPatent, name, opts)
}

// SearchReports implements literature.ReportSearcher.
func (c *Client) SearchReports(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	return c.search(ctx, TargetReport, literature.SourceScienceONReport, name, opts)
}

func (c *Client) search(ctx context.Context, target Target, source literature.SourceID, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	if c.clientID == "" || c.token == "" {
		return nil, fmt.Errorf("scienceon: %w", literature.ErrMissingCredentials)
	}

	query, err := json.Marshal(map[string]string{"BI": name})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}
	rows := opts.MaxResults
	if rows <= 0 || rows > maxRowCount {
		rows = maxRowCount
	}
	params := url.Values{
		"client_id":   {c.clientID},
		"token":       {c.token},
		"version":     {"1.0"},
		"action":      {"search"},
		"target":      {string(target)},
		"searchQuery": {string(query)},
		"curPage":     {"1"},
		"rowCount":    {strconv.Itoa(rows)},
	}

	var resp Response
	err = c.api.GetXML(ctx, "", params, &resp)
	if err == nil && resp.StatusCode != "" && resp.StatusCode != "200" {
		err = fmt.Errorf("%w: ScienceON status %s: %s", apiclient.ErrInvalidResponse, resp.StatusCode, resp.Message)
	}
	if err != nil {
		if apiclient.IsSoftFailure(err) {
			logger.FromContext(ctx, c.logger).Warn("source_search_degraded",
				slog.String("source", string(source)),
				slog.String("name", name),
				slog.String("error", err.Error()))
			return []literature.Item{}, nil
		}
		return nil, fmt.Errorf("scienceon %s search: %w", target, err)
	}

	items := make([]literature.Item, 0, len(resp.Records))
	for _, r := range resp.Records {
		item, ok := MapRecord(r, source, name)
		if !ok || !opts.InRange(item.Year) {
			continue
		}
		items = append(items, item)
	}
	return literature.Cap(items, opts.MaxResults), nil
}

// MapRecord converts a ScienceON record of any target to a literature item.
func MapRecord(r Record, source literature.SourceID, matchedName string) (literature.Item, bool) {
	title := r.Get("Title")
	if title == "" {
		return literature.Item{}, false
	}

	id := r.Get("CN", "ApplNum", "PublNum")
	if id == "" {
		id = strings.ToLower(strings.Join(strings.Fields(title), "-"))
	}

	var year *int
	if m := yearRe.FindString(r.Get("Pubyear", "ApplDate", "PublDate")); m != "" {
		y, _ := strconv.Atoi(m)
		year = &y
	}

	var authors []string
	for _, a := range strings.Split(r.Get("Author", "Applicants", "Inventors"), ";") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	abstract := []rune(r.Get("Abstract"))
	snippet := string(abstract)
	if len(abstract) > snippetLen {
		snippet = string(abstract[:snippetLen]) + "..."
	}

	return literature.Item{
		ID:          string(source) + ":" + id,
		Source:      source,
		Title:       title,
		Authors:     authors,
		Year:        year,
		Venue:       r.Get("JournalName", "Publisher", "PublOrgan"),
		URL:         r.Get("ContentURL", "MobileURL"),
		PDFURL:      r.Get("FulltextURL"),
		Snippet:     snippet,
		MatchedName: matchedName,
	}, true
}
