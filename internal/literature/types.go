// Package literature defines the query, item, and result types shared by the
// source adapters and the aggregator.
package literature

import (
	"strconv"
	"strings"
)

// SourceID identifies one searchable upstream.
type SourceID string

const (
	SourceBHL             SourceID = "bhl"
	SourceS2              SourceID = "s2"
	SourceKCI             SourceID = "kci"
	SourceRISS            SourceID = "riss"
	SourceScienceON       SourceID = "scienceon"
	SourceScienceONPatent SourceID = "scienceon_patent"
	SourceScienceONReport SourceID = "scienceon_report"
)

// AllSources lists every known source in default priority order.
var AllSources = []SourceID{
	SourceBHL,
	SourceS2,
	SourceScienceON,
	SourceScienceONPatent,
	SourceScienceONReport,
	SourceKCI,
	SourceRISS,
}

// IsKnown reports whether id names a known source.
func (id SourceID) IsKnown() bool {
	for _, s := range AllSources {
		if s == id {
			return true
		}
	}
	return false
}

// Strategy selects which sources are relevant and how results are ranked.
type Strategy string

const (
	StrategyHistorical Strategy = "historical"
	StrategyKorea      Strategy = "korea"
	StrategyBoth       Strategy = "both"
)

// Scope is the strategy class a source belongs to.
type Scope string

const (
	ScopeHistorical Scope = "historical"
	ScopeKorea      Scope = "korea"
)

// DefaultScopes assigns each source to a strategy scope.
var DefaultScopes = map[SourceID]Scope{
	SourceBHL:             ScopeHistorical,
	SourceS2:              ScopeHistorical,
	SourceKCI:             ScopeKorea,
	SourceRISS:            ScopeKorea,
	SourceScienceON:       ScopeKorea,
	SourceScienceONPatent: ScopeKorea,
	SourceScienceONReport: ScopeKorea,
}

// Includes reports whether a source with the given scope is queried under s.
func (s Strategy) Includes(scope Scope) bool {
	switch s {
	case StrategyHistorical:
		return scope == ScopeHistorical
	case StrategyKorea:
		return scope == ScopeKorea
	default:
		return true
	}
}

const (
	// MaxResultsLimit is the upper bound on Query.MaxResults.
	MaxResultsLimit = 100
)

// Query is a literature collection request for one species.
type Query struct {
	PrimaryName    string     `json:"primaryName" validate:"required"`
	SynonymNames   []string   `json:"synonymNames,omitempty" validate:"dive,required"`
	YearFrom       *int       `json:"yearFrom,omitempty" validate:"omitempty,gte=1000,lte=9999"`
	YearTo         *int       `json:"yearTo,omitempty" validate:"omitempty,gte=1000,lte=9999"`
	Strategy       Strategy   `json:"strategy" validate:"required,oneof=historical korea both"`
	MaxResults     int        `json:"maxResults" validate:"gte=1,lte=100"`
	// EnabledSources restricts the search. Omitted means all sources.
	EnabledSources []SourceID `json:"enabledSources"`
}

// Names returns the primary name followed by the synonyms, dropping blanks
// and exact repeats, capped at limit names (limit <= 0 means no cap).
func (q Query) Names(limit int) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, 1+len(q.SynonymNames))
	for _, n := range append([]string{q.PrimaryName}, q.SynonymNames...) {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
		if limit > 0 && len(names) == limit {
			break
		}
	}
	return names
}

// SearchOptions bounds a single adapter search.
type SearchOptions struct {
	MaxResults int
	YearFrom   *int
	YearTo     *int
}

// InRange reports whether year satisfies the options' year bounds. Unknown
// years are always in range.
func (o SearchOptions) InRange(year *int) bool {
	if year == nil {
		return true
	}
	if o.YearFrom != nil && *year < *o.YearFrom {
		return false
	}
	if o.YearTo != nil && *year > *o.YearTo {
		return false
	}
	return true
}

// Item is one search hit from one source.
type Item struct {
	ID             string   `json:"id"`
	Source         SourceID `json:"source"`
	Title          string   `json:"title"`
	Authors        []string `json:"authors"`
	Year           *int     `json:"year"`
	Venue          string   `json:"venue,omitempty"`
	URL            string   `json:"url"`
	PDFURL         string   `json:"pdfUrl,omitempty"`
	Snippet        string   `json:"snippet,omitempty"`
	MatchedName    string   `json:"matchedName"`
	RelevanceScore *float64 `json:"relevanceScore,omitempty"`
}

// DedupKey returns the normalized identity used to collapse the same work
// reported by different sources: lower-cased, whitespace-collapsed title plus
// year when known.
func (it Item) DedupKey() string {
	title := strings.Join(strings.Fields(strings.ToLower(it.Title)), " ")
	if it.Year == nil {
		return title
	}
	return title + "|" + strconv.Itoa(*it.Year)
}

// CollectionResult is the aggregated outcome of a Query.
type CollectionResult struct {
	CollectionID    string              `json:"collectionId"`
	Query           Query               `json:"query"`
	Items           []Item              `json:"items"`
	PerSourceErrors map[SourceID]string `json:"perSourceErrors"`
	TotalFound      int                 `json:"totalFound"`
}

// Year returns a pointer to y, or nil when y is zero.
func Year(y int) *int {
	if y == 0 {
		return nil
	}
	return &y
}
