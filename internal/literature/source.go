package literature

import (
	"context"
	"errors"
	"fmt"

	"github.com/matsen/firstrecord/internal/apperr"
)

// ErrMissingCredentials is returned by adapters whose configuration lacks a
// required API key or token. It is the only error an adapter raises for
// reasons other than transport failure.
var ErrMissingCredentials = fmt.Errorf("%w: missing source credentials", apperr.ErrUpstreamUnavailable)

// Source is the uniform adapter contract.
//
// Implementations must:
//   - return an empty slice (not an error) for "no results" and upstream
//     4xx/5xx responses
//   - return at most opts.MaxResults items
//   - set Source and MatchedName on every item
type Source interface {
	ID() SourceID
	Search(ctx context.Context, name string, opts SearchOptions) ([]Item, error)
}

// PatentSearcher is implemented by adapters that also index patents.
type PatentSearcher interface {
	SearchPatents(ctx context.Context, name string, opts SearchOptions) ([]Item, error)
}

// ReportSearcher is implemented by adapters that also index research reports.
type ReportSearcher interface {
	SearchReports(ctx context.Context, name string, opts SearchOptions) ([]Item, error)
}

type searchFunc func(ctx context.Context, name string, opts SearchOptions) ([]Item, error)

type funcSource struct {
	id     SourceID
	search searchFunc
}

func (s funcSource) ID() SourceID { return s.id }

func (s funcSource) Search(ctx context.Context, name string, opts SearchOptions) ([]Item, error) {
	return s.search(ctx, name, opts)
}

// PatentSource exposes p's patent search as a Source with the given id.
func PatentSource(id SourceID, p PatentSearcher) Source {
	return funcSource{id: id, search: p.SearchPatents}
}

// ReportSource exposes r's report search as a Source with the given id.
func ReportSource(id SourceID, r ReportSearcher) Source {
	return funcSource{id: id, search: r.SearchReports}
}

// Cap truncates items to max, leaving them untouched when max <= 0.
func Cap(items []Item, max int) []Item {
	if max > 0 && len(items) > max {
		return items[:max]
	}
	return items
}

// IsMissingCredentials reports whether err came from an unconfigured adapter.
func IsMissingCredentials(err error) bool {
	return errors.Is(err, ErrMissingCredentials)
}
