package intake

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matsen/firstrecord/internal/apperr"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/partpdf/123":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write(pdfBytes(64))
		case "/html":
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	in := newIntake(t)
	f := NewFetcher(in, srv.Client(), 0)

	asset, err := f.Fetch(context.Background(), srv.URL+"/partpdf/123", "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if asset.SanitizedFileName != "123" || asset.SourceURL != srv.URL+"/partpdf/123" {
		t.Errorf("asset = %+v", asset)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/html", "page.pdf"); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("html fetch error = %v, want ErrInvalidSignature", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing", ""); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("404 fetch error = %v, want upstream", err)
	}
	if _, err := f.Fetch(context.Background(), "file:///etc/passwd", ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("file url error = %v, want validation", err)
	}
}
