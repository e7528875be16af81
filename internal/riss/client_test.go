package riss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/logger"
)

const resultsPage = `<html><body>
<div class="srchResultListW">
  <ul>
    <li>
      <div class="cont">
        <p class="title"><a href="/link?id=A100&amp;control_no=abc123">한국산 홍대치과 어류 1종의 첫 기록</a></p>
        <p class="etc">
          <span class="writer">김진구; 이충렬</span>
          <span class="assigned">한국어류학회</span>
          <span>2004</span>
          <span>한국어류학회지 Vol.16 No.2</span>
        </p>
        <p class="preAbstract">  제주도에서   채집된 표본 </p>
      </div>
    </li>
    <li>
      <div class="cont">
        <p class="title"><a href="/link?id=A200&amp;control_no=def456">Occurrence of cornetfish in Korean waters</a></p>
        <p class="etc"><span class="writer">Park</span><span>2019</span></p>
      </div>
    </li>
    <li><div class="cont"><p class="title"><a href="/x"></a></p></div></li>
  </ul>
</div>
</body></html>`

func TestParseResults(t *testing.T) {
	items, err := ParseResults([]byte(resultsPage), "Fistularia petimba")
	if err != nil {
		t.Fatalf("ParseResults() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	first := items[0]
	if first.ID != "riss:abc123" {
		t.Errorf("ID = %q", first.ID)
	}
	if first.URL != "https://www.riss.kr/link?id=A100&control_no=abc123" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Year == nil || *first.Year != 2004 {
		t.Errorf("Year = %v, want 2004", first.Year)
	}
	if len(first.Authors) != 2 || first.Authors[1] != "이충렬" {
		t.Errorf("Authors = %v", first.Authors)
	}
	if first.Venue != "한국어류학회" {
		t.Errorf("Venue = %q", first.Venue)
	}
	if first.Snippet != "제주도에서 채집된 표본" {
		t.Errorf("Snippet = %q", first.Snippet)
	}
	if first.Source != literature.SourceRISS || first.MatchedName != "Fistularia petimba" {
		t.Errorf("source/matchedName missing: %+v", first)
	}
}

func TestSearch_YearFilterAndCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != SearchPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	c := NewClient(logger.Discard(), apiclient.WithBaseURL(srv.URL), apiclient.WithRateLimit(0))
	items, err := c.Search(context.Background(), "Fistularia petimba", literature.SearchOptions{
		MaxResults: 5,
		YearTo:     literature.Year(2010),
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "riss:abc123" {
		t.Errorf("items = %+v, want only the 2004 record", items)
	}
}

func TestSearch_ServerErrorIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(logger.Discard(), apiclient.WithBaseURL(srv.URL), apiclient.WithRateLimit(0))
	items, err := c.Search(context.Background(), "Fistularia", literature.SearchOptions{MaxResults: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len(items) = %d, want 0", len(items))
	}
}
