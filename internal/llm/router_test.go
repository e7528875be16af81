package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/matsen/firstrecord/internal/apperr"
)

const judgmentJSON = `{"hasKoreaRecord": true, "confidence": 0.8, "relevantQuotes": ["제주도 서귀포"]}`

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Error("api key header missing")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": judgmentJSON}}},
			}},
		})
	}))
	defer srv.Close()

	g := NewGeminiClient("key", WithGeminiURL(srv.URL))
	out, err := g.Generate(context.Background(), "gemini-2.5-flash", "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != judgmentJSON {
		t.Errorf("Generate() = %q", out)
	}
}

func TestGeminiClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewGeminiClient("", WithGeminiURL(srv.URL)).Generate(context.Background(), "m", "p"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("missing key error = %v", err)
	}
	if _, err := NewGeminiClient("key", WithGeminiURL(srv.URL)).Generate(context.Background(), "m", "p"); !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Errorf("429 error = %v, want quota exceeded", err)
	}
}

func TestOllamaClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "qwen2.5:7b" || req.Stream || req.Format != "json" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: judgmentJSON, Done: true})
	}))
	defer srv.Close()

	out, err := NewOllamaClient(srv.URL, nil).Generate(context.Background(), "qwen2.5:7b", "prompt")
	if err != nil || out != judgmentJSON {
		t.Errorf("Generate() = %q, %v", out, err)
	}
}

func TestClaudeCLI_Generate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture")
	}
	script := filepath.Join(t.TempDir(), "claude")
	content := "#!/bin/sh\necho '" + judgmentJSON + "'\n"
	if err := os.WriteFile(script, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}

	out, err := ClaudeCLI{Command: script}.Generate(context.Background(), "haiku", "prompt")
	if err != nil || out != judgmentJSON {
		t.Errorf("Generate() = %q, %v", out, err)
	}

	if _, err := (ClaudeCLI{Command: filepath.Join(t.TempDir(), "missing")}).Generate(context.Background(), "haiku", "p"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Errorf("missing binary error = %v", err)
	}
}

type fixedGenerator struct {
	out       string
	lastModel string
}

func (f *fixedGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	f.lastModel = model
	return f.out, nil
}

func TestRouter_Judge(t *testing.T) {
	gen := &fixedGenerator{out: judgmentJSON}
	r := NewRouter().Register(ProviderGemini, gen)

	j, err := r.Judge(context.Background(), Request{Provider: ProviderGemini, Prompt: "p"})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if gen.lastModel != "gemini-2.5-flash" || j.Model != "gemini-2.5-flash" || j.Provider != "gemini" {
		t.Errorf("default model not applied: gen=%q judgment=%+v", gen.lastModel, j)
	}
	if j.HasKoreaRecord == nil || !*j.HasKoreaRecord {
		t.Errorf("HasKoreaRecord = %v", j.HasKoreaRecord)
	}

	if _, err := r.Judge(context.Background(), Request{Provider: ProviderOllama}); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unregistered provider error = %v", err)
	}
	if _, err := r.Judge(context.Background(), Request{Provider: ProviderGemini, Model: "gpt-4"}); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("unknown model error = %v", err)
	}
}
