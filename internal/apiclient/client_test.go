package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/matsen/firstrecord/internal/apperr"
)

func TestClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Fistularia" {
			t.Errorf("q = %q, want Fistularia", got)
		}
		if got := r.Header.Get("x-api-key"); got != "secret" {
			t.Errorf("x-api-key = %q, want secret", got)
		}
		w.Write([]byte(`{"total": 3}`))
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithHeader("x-api-key", "secret"), WithRateLimit(0))

	var out struct {
		Total int `json:"total"`
	}
	if err := c.GetJSON(context.Background(), "/search", url.Values{"q": {"Fistularia"}}, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Total != 3 {
		t.Errorf("Total = %d, want 3", out.Total)
	}
}

func TestClientStatusErrors(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusUnauthorized, IsAuthError},
		{http.StatusForbidden, IsAuthError},
		{http.StatusNotFound, IsNotFound},
		{http.StatusTooManyRequests, IsRateLimited},
		{http.StatusInternalServerError, IsStatusError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := New("test", srv.URL, WithRateLimit(0))
			_, err := c.Get(context.Background(), "/", nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tt.check(err) {
				t.Errorf("unexpected classification for %v", err)
			}
			if !IsSoftFailure(err) {
				t.Errorf("status error %v should be a soft failure", err)
			}
			if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
				t.Errorf("status error %v should wrap ErrUpstreamUnavailable", err)
			}
		})
	}
}

func TestClientInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithRateLimit(0))
	var out map[string]any
	err := c.GetJSON(context.Background(), "/", nil, &out)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("error = %v, want ErrInvalidResponse", err)
	}
	if !IsSoftFailure(err) {
		t.Error("invalid body should be a soft failure")
	}
}

func TestClientNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("test", srv.URL, WithRateLimit(0))
	_, err := c.Get(context.Background(), "/", nil)
	if !errors.Is(err, ErrNetworkError) {
		t.Fatalf("error = %v, want ErrNetworkError", err)
	}
	if IsSoftFailure(err) {
		t.Error("network errors must propagate, not be softened")
	}
}

func TestClientNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New("test", srv.URL, WithRateLimit(0))
	var out []string
	if err := c.GetJSON(context.Background(), "/", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
}

func TestClientNetworkErrorOmitsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New("test", srv.URL, WithRateLimit(0))
	_, err := c.Get(context.Background(), "/search", url.Values{"apikey": {"SECRET-KEY"}, "q": {"Fistularia"}})
	if !errors.Is(err, ErrNetworkError) {
		t.Fatalf("error = %v, want ErrNetworkError", err)
	}
	if strings.Contains(err.Error(), "SECRET-KEY") || strings.Contains(err.Error(), srv.URL) {
		t.Errorf("error leaks request URL: %v", err)
	}
}
