// Package extract turns stored PDFs into text. The primary path is an
// external extraction service with OCR; a local text-layer reader serves as
// fallback.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/logger"
)

// ErrNoText is returned when a document yields no extractable text.
var ErrNoText = fmt.Errorf("%w: no extractable text", apperr.ErrUpstreamUnavailable)

// Options are passed to the extraction service.
type Options struct {
	EnableOCR      bool     `json:"enableOCR"`
	OCRLanguages   []string `json:"ocrLanguages"`
	ExtractTables  bool     `json:"extractTables"`
	ExtractFigures bool     `json:"extractFigures"`
}

// DefaultOptions enables OCR for Korean and English with tables and figures.
func DefaultOptions() Options {
	return Options{
		EnableOCR:      true,
		OCRLanguages:   []string{"kor", "eng"},
		ExtractTables:  true,
		ExtractFigures: true,
	}
}

// Result is the raw output of an extraction.
type Result struct {
	Text           string         `json:"text"`
	Tables         []any          `json:"tables"`
	Figures        []any          `json:"figures"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ProcessingTime float64        `json:"processingTime"`
	OCRUsed        bool           `json:"ocrUsed"`
	Method         string         `json:"-"`
}

// Extraction summarizes r for the analysis record.
func (r *Result) Extraction() *document.Extraction {
	return &document.Extraction{
		Text:        r.Text,
		TextLength:  utf8.RuneCountInString(r.Text),
		TableCount:  len(r.Tables),
		FigureCount: len(r.Figures),
		OCRUsed:     r.OCRUsed,
		Method:      r.Method,
	}
}

// Extractor extracts text from the PDF at path.
type Extractor interface {
	Extract(ctx context.Context, path string, opts Options) (*Result, error)
	Name() string
}

// Chain tries each extractor in order and returns the first success.
type Chain struct {
	extractors []Extractor
	logger     *slog.Logger
}

// NewChain creates a Chain. Nil extractors are skipped.
func NewChain(logger *slog.Logger, extractors ...Extractor) *Chain {
	c := &Chain{logger: logger}
	for _, e := range extractors {
		if e != nil {
			c.extractors = append(c.extractors, e)
		}
	}
	return c
}

// Name implements Extractor.
func (c *Chain) Name() string {
	return "chain"
}

// Extract implements Extractor. If every extractor fails the errors are
// joined.
func (c *Chain) Extract(ctx context.Context, path string, opts Options) (*Result, error) {
	if len(c.extractors) == 0 {
		return nil, fmt.Errorf("%w: no extractor configured", apperr.ErrInternal)
	}
	log := logger.FromContext(ctx, c.logger)

	var errs []error
	for i, e := range c.extractors {
		res, err := e.Extract(ctx, path, opts)
		if err == nil {
			if res.Method == "" {
				res.Method = e.Name()
			}
			return res, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		if i < len(c.extractors)-1 {
			log.Warn("extraction_fallback",
				slog.String("extractor", e.Name()),
				slog.String("next", c.extractors[i+1].Name()),
				slog.String("error", err.Error()))
		}
	}
	return nil, errors.Join(errs...)
}
