package literature

import (
	"errors"
	"testing"

	"github.com/matsen/firstrecord/internal/apperr"
)

func TestItemDedupKey(t *testing.T) {
	a := Item{Title: "  On the  Fistularia of\tJapan ", Year: Year(1803)}
	b := Item{Title: "on the fistularia of japan", Year: Year(1803)}
	c := Item{Title: "on the fistularia of japan", Year: Year(1850)}
	d := Item{Title: "On the Fistularia of Japan"}

	if a.DedupKey() != b.DedupKey() {
		t.Errorf("keys differ: %q vs %q", a.DedupKey(), b.DedupKey())
	}
	if a.DedupKey() == c.DedupKey() {
		t.Error("different years should produce different keys")
	}
	if d.DedupKey() != "on the fistularia of japan" {
		t.Errorf("undated key = %q", d.DedupKey())
	}
}

func TestQueryNames(t *testing.T) {
	q := Query{
		PrimaryName:  "Fistularia petimba",
		SynonymNames: []string{"Fistularia serrata", " ", "Fistularia petimba", "Fistularia villosa"},
	}

	got := q.Names(0)
	want := []string{"Fistularia petimba", "Fistularia serrata", "Fistularia villosa"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if capped := q.Names(2); len(capped) != 2 || capped[0] != "Fistularia petimba" {
		t.Errorf("Names(2) = %v", capped)
	}
}

func TestQueryValidate(t *testing.T) {
	base := func() Query {
		return Query{PrimaryName: "Fistularia petimba", Strategy: StrategyHistorical, MaxResults: 10}
	}

	tests := []struct {
		name    string
		mutate  func(q *Query)
		wantErr bool
	}{
		{"valid", func(q *Query) {}, false},
		{"missing name", func(q *Query) { q.PrimaryName = "" }, true},
		{"zero max results", func(q *Query) { q.MaxResults = 0 }, true},
		{"too many results", func(q *Query) { q.MaxResults = 101 }, true},
		{"bad strategy", func(q *Query) { q.Strategy = "recent" }, true},
		{"inverted years", func(q *Query) { q.YearFrom, q.YearTo = Year(1900), Year(1800) }, true},
		{"equal years", func(q *Query) { q.YearFrom, q.YearTo = Year(1900), Year(1900) }, false},
		{"unknown source", func(q *Query) { q.EnabledSources = []SourceID{"scopus"} }, true},
		{"blank synonym", func(q *Query) { q.SynonymNames = []string{""} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := base()
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("error %v does not wrap ErrValidation", err)
			}
		})
	}
}

func TestSearchOptionsInRange(t *testing.T) {
	opts := SearchOptions{YearFrom: Year(1800), YearTo: Year(1900)}
	if !opts.InRange(nil) {
		t.Error("unknown year should be in range")
	}
	if !opts.InRange(Year(1803)) {
		t.Error("1803 should be in range")
	}
	if opts.InRange(Year(1950)) {
		t.Error("1950 should be out of range")
	}
}

func TestStrategyIncludes(t *testing.T) {
	if !StrategyHistorical.Includes(ScopeHistorical) || StrategyHistorical.Includes(ScopeKorea) {
		t.Error("historical strategy scope mismatch")
	}
	if !StrategyKorea.Includes(ScopeKorea) || StrategyKorea.Includes(ScopeHistorical) {
		t.Error("korea strategy scope mismatch")
	}
	if !StrategyBoth.Includes(ScopeKorea) || !StrategyBoth.Includes(ScopeHistorical) {
		t.Error("both strategy should include every scope")
	}
}
