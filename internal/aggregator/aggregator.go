// Package aggregator fans a literature query out to every relevant source,
// then merges, deduplicates, ranks, and truncates the results.
package aggregator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
	"github.com/matsen/firstrecord/internal/metrics"
)

// DefaultMaxNames bounds the synonym fan-out per query.
const DefaultMaxNames = 50

// DefaultKoreaKeywords promote items that mention Korean waters or places.
var DefaultKoreaKeywords = []string{
	"korea", "korean", "jeju", "busan", "ulleung", "dokdo", "east sea", "yellow sea",
	"한국", "제주", "부산", "울릉", "독도", "동해", "남해", "서해",
}

// Config is the ranking and fan-out policy.
type Config struct {
	// MaxNames caps primary name plus synonyms.
	MaxNames int
	// SourcePriority orders sources for the dedup tie-break. Sources not
	// listed rank after listed ones, by id.
	SourcePriority []literature.SourceID
	// KoreaKeywords are matched case-insensitively against title, venue,
	// and snippet.
	KoreaKeywords []string
	// Scopes assigns sources to strategy scopes. Missing entries use
	// literature.DefaultScopes.
	Scopes map[literature.SourceID]literature.Scope
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		MaxNames:       DefaultMaxNames,
		SourcePriority: append([]literature.SourceID(nil), literature.AllSources...),
		KoreaKeywords:  append([]string(nil), DefaultKoreaKeywords...),
	}
}

// Aggregator runs collections over a fixed set of sources.
type Aggregator struct {
	sources map[literature.SourceID]literature.Source
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Aggregator over sources. Sources disabled by configuration
// should simply not be passed in.
func New(sources []literature.Source, cfg Config, logger *slog.Logger) *Aggregator {
	if cfg.MaxNames <= 0 {
		cfg.MaxNames = DefaultMaxNames
	}
	if cfg.SourcePriority == nil {
		cfg.SourcePriority = literature.AllSources
	}
	m := make(map[literature.SourceID]literature.Source, len(sources))
	for _, s := range sources {
		m[s.ID()] = s
	}
	return &Aggregator{sources: m, cfg: cfg, logger: logger, now: time.Now}
}

// Sources returns the registered source ids in priority order.
func (a *Aggregator) Sources() []literature.SourceID {
	ids := make([]literature.SourceID, 0, len(a.sources))
	for id := range a.sources {
		ids = append(ids, id)
	}
	a.sortByPriority(ids)
	return ids
}

func (a *Aggregator) rank(id literature.SourceID) int {
	for i, p := range a.cfg.SourcePriority {
		if p == id {
			return i
		}
	}
	return len(a.cfg.SourcePriority)
}

func (a *Aggregator) sortByPriority(ids []literature.SourceID) {
	sort.SliceStable(ids, func(i, j int) bool {
		ri, rj := a.rank(ids[i]), a.rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
}

func (a *Aggregator) scope(id literature.SourceID) literature.Scope {
	if s, ok := a.cfg.Scopes[id]; ok {
		return s
	}
	return literature.DefaultScopes[id]
}

// relevant returns the sources to query for q, in priority order. A nil
// EnabledSources means every registered source; an empty one means none.
func (a *Aggregator) relevant(q literature.Query) []literature.SourceID {
	var requested map[literature.SourceID]bool
	if q.EnabledSources != nil {
		requested = make(map[literature.SourceID]bool, len(q.EnabledSources))
		for _, id := range q.EnabledSources {
			requested[id] = true
		}
	}

	var ids []literature.SourceID
	for id := range a.sources {
		if requested != nil && !requested[id] {
			continue
		}
		if !q.Strategy.Includes(a.scope(id)) {
			continue
		}
		ids = append(ids, id)
	}
	a.sortByPriority(ids)
	return ids
}

type slot struct {
	items []literature.Item
	err   error
}

// Collect runs q against every relevant source. Per-source failures are
// recorded in the result and never fail the collection; only an invalid
// query returns an error.
func (a *Aggregator) Collect(ctx context.Context, q literature.Query) (*literature.CollectionResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := a.now()
	collectionID := uuid.NewString()
	ctx = logger.WithCollectionID(ctx, collectionID)
	log := logger.FromContext(ctx, a.logger)

	ids := a.relevant(q)
	names := q.Names(a.cfg.MaxNames)
	opts := literature.SearchOptions{MaxResults: q.MaxResults, YearFrom: q.YearFrom, YearTo: q.YearTo}

	result := &literature.CollectionResult{
		CollectionID:    collectionID,
		Query:           q,
		Items:           []literature.Item{},
		PerSourceErrors: make(map[literature.SourceID]string),
	}
	if len(ids) == 0 {
		log.Info("collect_no_sources", slog.String("strategy", string(q.Strategy)))
		return result, nil
	}

	// slots[i*len(names)+j] holds source i's results for name j, so the merge
	// order depends only on priority and name order.
	slots := make([]slot, len(ids)*len(names))
	var g errgroup.Group
	for i, id := range ids {
		src := a.sources[id]
		for j, name := range names {
			idx := i*len(names) + j
			g.Go(func() error {
				items, err := src.Search(ctx, name, opts)
				slots[idx] = slot{items: items, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	var merged []literature.Item
	for i, id := range ids {
		failed := false
		for j := range names {
			s := slots[i*len(names)+j]
			if s.err != nil {
				if _, seen := result.PerSourceErrors[id]; !seen {
					result.PerSourceErrors[id] = s.err.Error()
				}
				failed = true
				log.Warn("source_search_failed",
					slog.String("source", string(id)),
					slog.String("name", names[j]),
					slog.String("error", s.err.Error()))
				continue
			}
			merged = append(merged, s.items...)
		}
		status := "ok"
		if failed {
			status = "error"
		}
		metrics.RecordSourceRequest(string(id), status)
	}

	items := dedup(merged, opts)
	items = a.order(items, q.Strategy)
	result.TotalFound = len(items)
	result.Items = literature.Cap(items, q.MaxResults)

	metrics.CollectDuration.Observe(a.now().Sub(start).Seconds())
	log.Info("collect_completed",
		slog.Int("sources", len(ids)),
		slog.Int("names", len(names)),
		slog.Int("total_found", result.TotalFound),
		slog.Int("returned", len(result.Items)),
		slog.Int("source_errors", len(result.PerSourceErrors)))
	return result, nil
}

// dedup keeps the first item per normalized key and drops items outside the
// year range.
func dedup(items []literature.Item, opts literature.SearchOptions) []literature.Item {
	seen := make(map[string]bool, len(items))
	out := make([]literature.Item, 0, len(items))
	for _, it := range items {
		if !opts.InRange(it.Year) {
			continue
		}
		key := it.DedupKey()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// order ranks items for strategy. Historical is earliest first; korea and
// both promote keyword matches to a front block. Undated items sort last
// within each block.
func (a *Aggregator) order(items []literature.Item, strategy literature.Strategy) []literature.Item {
	if strategy == literature.StrategyHistorical {
		sortByYear(items)
		return items
	}

	var front, rest []literature.Item
	for _, it := range items {
		if a.mentionsKorea(it) {
			front = append(front, it)
		} else {
			rest = append(rest, it)
		}
	}
	sortByYear(front)
	sortByYear(rest)
	return append(front, rest...)
}

func (a *Aggregator) mentionsKorea(it literature.Item) bool {
	text := strings.ToLower(it.Title + " " + it.Venue + " " + it.Snippet)
	for _, kw := range a.cfg.KoreaKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func sortByYear(items []literature.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		yi, yj := items[i].Year, items[j].Year
		switch {
		case yi == nil:
			return false
		case yj == nil:
			return true
		default:
			return *yi < *yj
		}
	})
}
