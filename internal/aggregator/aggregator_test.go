package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
)

type fakeSource struct {
	id     literature.SourceID
	byName map[string][]literature.Item
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeSource) ID() literature.SourceID { return f.id }

func (f *fakeSource) Search(ctx context.Context, name string, opts literature.SearchOptions) ([]literature.Item, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []literature.Item
	for _, it := range f.byName[name] {
		it.Source = f.id
		it.MatchedName = name
		out = append(out, it)
	}
	return literature.Cap(out, opts.MaxResults), nil
}

func item(id, title string, year int) literature.Item {
	return literature.Item{ID: id, Title: title, Year: literature.Year(year)}
}

func fistulariaQuery() literature.Query {
	return literature.Query{
		PrimaryName:  "Fistularia petimba",
		SynonymNames: []string{"Fistularia serrata"},
		Strategy:     literature.StrategyHistorical,
		MaxResults:   5,
	}
}

func TestCollect_OverlappingHistoricalSources(t *testing.T) {
	bhl := &fakeSource{id: literature.SourceBHL, byName: map[string][]literature.Item{
		"Fistularia petimba": {item("bhl:part-1", "Description de Fistularia petimba", 1803)},
		"Fistularia serrata": {item("bhl:part-2", "Fistularia serrata Cuvier", 1850)},
	}}
	s2 := &fakeSource{id: literature.SourceS2, delay: 5 * time.Millisecond, byName: map[string][]literature.Item{
		"Fistularia petimba": {item("s2:a", "Fistularia serrata  cuvier", 1850)},
		"Fistularia serrata": {item("s2:b", "DESCRIPTION DE FISTULARIA PETIMBA", 1803)},
	}}

	agg := New([]literature.Source{s2, bhl}, DefaultConfig(), logger.Discard())
	res, err := agg.Collect(context.Background(), fistulariaQuery())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(res.Items) != 2 {
		t.Fatalf("len(Items) = %d, want 2: %+v", len(res.Items), res.Items)
	}
	if *res.Items[0].Year != 1803 || *res.Items[1].Year != 1850 {
		t.Errorf("order = %d, %d; want 1803 then 1850", *res.Items[0].Year, *res.Items[1].Year)
	}
	for _, it := range res.Items {
		if it.Source != literature.SourceBHL {
			t.Errorf("item %q survived from %s, want bhl by priority", it.ID, it.Source)
		}
	}
	if res.TotalFound != 2 || len(res.PerSourceErrors) != 0 {
		t.Errorf("TotalFound = %d, errors = %v", res.TotalFound, res.PerSourceErrors)
	}
	if res.CollectionID == "" {
		t.Error("CollectionID should be set")
	}
}

func TestCollect_Deterministic(t *testing.T) {
	build := func() *Aggregator {
		a := &fakeSource{id: literature.SourceBHL, delay: 3 * time.Millisecond, byName: map[string][]literature.Item{
			"Fistularia petimba": {item("bhl:1", "Same work", 1900)},
		}}
		b := &fakeSource{id: literature.SourceS2, byName: map[string][]literature.Item{
			"Fistularia petimba": {item("s2:1", "same   WORK", 1900)},
		}}
		return New([]literature.Source{a, b}, DefaultConfig(), logger.Discard())
	}
	for i := 0; i < 5; i++ {
		res, err := build().Collect(context.Background(), fistulariaQuery())
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Items) != 1 || res.Items[0].ID != "bhl:1" {
			t.Fatalf("run %d: items = %+v, want bhl:1 only", i, res.Items)
		}
	}
}

func TestCollect_FanOutIsolation(t *testing.T) {
	good := &fakeSource{id: literature.SourceBHL, byName: map[string][]literature.Item{
		"Fistularia petimba": {item("bhl:1", "A", 1803)},
	}}
	bad := &fakeSource{id: literature.SourceS2, err: errors.New("connection refused")}

	res, err := New([]literature.Source{good, bad}, DefaultConfig(), logger.Discard()).
		Collect(context.Background(), fistulariaQuery())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 1 {
		t.Errorf("len(Items) = %d, want 1", len(res.Items))
	}
	if len(res.PerSourceErrors) != 1 || res.PerSourceErrors[literature.SourceS2] == "" {
		t.Errorf("PerSourceErrors = %v, want one s2 entry", res.PerSourceErrors)
	}
	if bad.calls.Load() != 2 {
		t.Errorf("failing source called %d times, want once per name", bad.calls.Load())
	}
}

func TestCollect_MissingCredentialsIsolated(t *testing.T) {
	noKey := &fakeSource{id: literature.SourceKCI, err: fmt.Errorf("kci: %w", literature.ErrMissingCredentials)}
	riss := &fakeSource{id: literature.SourceRISS, byName: map[string][]literature.Item{
		"Fistularia petimba": {item("riss:1", "제주도 홍대치", 2004)},
	}}
	q := fistulariaQuery()
	q.Strategy = literature.StrategyKorea

	res, err := New([]literature.Source{noKey, riss}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 1 || res.PerSourceErrors[literature.SourceKCI] == "" {
		t.Errorf("items = %v, errors = %v", res.Items, res.PerSourceErrors)
	}
}

func TestCollect_MaxResultsAndTotalFound(t *testing.T) {
	var many []literature.Item
	for i := 0; i < 12; i++ {
		many = append(many, item(fmt.Sprintf("bhl:%d", i), fmt.Sprintf("Work %d", i), 1800+i))
	}
	src := &fakeSource{id: literature.SourceBHL, byName: map[string][]literature.Item{
		"Fistularia petimba": many[:6],
		"Fistularia serrata": many[6:],
	}}

	q := fistulariaQuery()
	q.MaxResults = 4
	res, err := New([]literature.Source{src}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) > q.MaxResults {
		t.Errorf("len(Items) = %d exceeds maxResults %d", len(res.Items), q.MaxResults)
	}
	if res.TotalFound != 8 {
		t.Errorf("TotalFound = %d, want 8 (each name capped at 4 by the source)", res.TotalFound)
	}
	if *res.Items[0].Year != 1800 {
		t.Errorf("first year = %d, want 1800", *res.Items[0].Year)
	}
}

func TestCollect_ZeroRelevantSources(t *testing.T) {
	kci := &fakeSource{id: literature.SourceKCI}
	res, err := New([]literature.Source{kci}, DefaultConfig(), logger.Discard()).
		Collect(context.Background(), fistulariaQuery())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(res.Items) != 0 || res.TotalFound != 0 || len(res.PerSourceErrors) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if kci.calls.Load() != 0 {
		t.Error("korea-scope source should not be queried for a historical strategy")
	}
}

func TestCollect_EnabledSourcesFilter(t *testing.T) {
	bhl := &fakeSource{id: literature.SourceBHL}
	s2 := &fakeSource{id: literature.SourceS2}
	q := fistulariaQuery()
	q.EnabledSources = []literature.SourceID{literature.SourceS2}

	if _, err := New([]literature.Source{bhl, s2}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if bhl.calls.Load() != 0 || s2.calls.Load() != 2 {
		t.Errorf("calls bhl=%d s2=%d, want 0 and 2", bhl.calls.Load(), s2.calls.Load())
	}
}

func TestCollect_EmptyEnabledSources(t *testing.T) {
	bhl := &fakeSource{id: literature.SourceBHL}
	q := fistulariaQuery()
	q.EnabledSources = []literature.SourceID{}

	res, err := New([]literature.Source{bhl}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if bhl.calls.Load() != 0 {
		t.Errorf("bhl calls = %d, want 0", bhl.calls.Load())
	}
	if len(res.Items) != 0 || res.TotalFound != 0 || len(res.PerSourceErrors) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestCollect_YearRangeKeepsUndated(t *testing.T) {
	src := &fakeSource{id: literature.SourceBHL, byName: map[string][]literature.Item{
		"Fistularia petimba": {
			item("bhl:1", "Too early", 1700),
			item("bhl:2", "In range", 1850),
			item("bhl:3", "Undated", 0),
		},
	}}
	q := fistulariaQuery()
	q.YearFrom = literature.Year(1800)

	res, err := New([]literature.Source{src}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 2 || res.Items[0].ID != "bhl:2" || res.Items[1].ID != "bhl:3" {
		t.Errorf("items = %+v, want in-range then undated", res.Items)
	}
}

func TestCollect_KoreaPromotion(t *testing.T) {
	src := &fakeSource{id: literature.SourceScienceON, byName: map[string][]literature.Item{
		"Fistularia petimba": {
			item("a", "Cornetfish of the Pacific", 1950),
			{ID: "b", Title: "Occurrence off Jeju Island", Year: literature.Year(2004)},
			{ID: "c", Title: "Fishes of the region", Venue: "Korean Journal of Ichthyology", Year: literature.Year(1990)},
			item("d", "Old survey", 1900),
		},
	}}
	q := fistulariaQuery()
	q.Strategy = literature.StrategyBoth
	q.MaxResults = 10

	res, err := New([]literature.Source{src}, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"c", "b", "d", "a"}
	if len(res.Items) != len(want) {
		t.Fatalf("len(Items) = %d, want %d", len(res.Items), len(want))
	}
	for i, id := range want {
		if res.Items[i].ID != id {
			t.Errorf("Items[%d] = %s, want %s", i, res.Items[i].ID, id)
		}
	}
}

func TestCollect_InvalidQuery(t *testing.T) {
	q := fistulariaQuery()
	q.MaxResults = 0
	_, err := New(nil, DefaultConfig(), logger.Discard()).Collect(context.Background(), q)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestSourcesPriorityOrder(t *testing.T) {
	agg := New([]literature.Source{
		&fakeSource{id: literature.SourceRISS},
		&fakeSource{id: literature.SourceBHL},
		&fakeSource{id: literature.SourceScienceON},
	}, DefaultConfig(), logger.Discard())

	got := agg.Sources()
	want := []literature.SourceID{literature.SourceBHL, literature.SourceScienceON, literature.SourceRISS}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sources() = %v, want %v", got, want)
		}
	}
}
