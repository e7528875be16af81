package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LocalExtractor reads the PDF text layer in-process. It cannot OCR scanned
// pages and reports no tables or figures.
type LocalExtractor struct {
	// MaxPages bounds how many pages are read; 0 reads all.
	MaxPages int
}

// Name implements Extractor.
func (l LocalExtractor) Name() string {
	return "local"
}

// Extract implements Extractor. opts is ignored.
func (l LocalExtractor) Extract(ctx context.Context, path string, _ Options) (*Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if l.MaxPages > 0 && pages > l.MaxPages {
		pages = l.MaxPages
	}

	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = normalizeText(text); text != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(text)
		}
	}

	if sb.Len() == 0 {
		return nil, ErrNoText
	}
	return &Result{
		Text:    sb.String(),
		Tables:  []any{},
		Figures: []any{},
		Method:  l.Name(),
	}, nil
}

// normalizeText trims each line and drops blank runs.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
