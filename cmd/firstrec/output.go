package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/matsen/firstrecord/internal/analysis"
	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/quota"
)

// Constants for output formatting.
const (
	ItemTitleMaxLen  = 70 // Used in collect result listings
	AuthorsShown     = 3  // Authors listed before "et al."
	QuoteMaxLen      = 100
	SnippetMaxLen    = 120
	timeLayoutHuman  = "2006-01-02 15:04 MST"
	unknownYearLabel = "n.d."
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitWithErr reports err with its kind and exits with the matching code.
func exitWithErr(err error) {
	msg := apperr.PublicMessage(err)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg, Kind: apperr.KindOf(err)})
	}
	os.Exit(exitCodeFor(err))
}

// emit prints v as JSON, or calls human when --human is set.
func emit(v any, human func()) {
	if humanOutput {
		human()
		return
	}
	if err := outputJSON(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(ExitError)
	}
}

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatAuthorsShort formats authors as "A, B, C et al."
func formatAuthorsShort(authors []string, limit int) string {
	if len(authors) == 0 {
		return "Unknown"
	}
	if len(authors) <= limit {
		return strings.Join(authors, ", ")
	}
	return strings.Join(authors[:limit], ", ") + " et al."
}

func formatYear(y *int) string {
	if y == nil {
		return unknownYearLabel
	}
	return strconv.Itoa(*y)
}

// formatItemHuman renders one literature item.
func formatItemHuman(it literature.Item, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. [%s] %s\n", n, it.Source, truncateString(it.Title, ItemTitleMaxLen))
	fmt.Fprintf(&b, "   %s (%s)", formatAuthorsShort(it.Authors, AuthorsShown), formatYear(it.Year))
	if it.Venue != "" {
		fmt.Fprintf(&b, " %s", it.Venue)
	}
	b.WriteString("\n")
	if it.Snippet != "" {
		fmt.Fprintf(&b, "   %s\n", truncateString(it.Snippet, SnippetMaxLen))
	}
	if it.PDFURL != "" {
		fmt.Fprintf(&b, "   PDF: %s\n", it.PDFURL)
	} else if it.URL != "" {
		fmt.Fprintf(&b, "   %s\n", it.URL)
	}
	return b.String()
}

func printCollectionHuman(res *literature.CollectionResult) {
	outputHuman("Collection %s: %d shown of %d found\n\n", res.CollectionID, len(res.Items), res.TotalFound)
	for i, it := range res.Items {
		fmt.Print(formatItemHuman(it, i+1))
		fmt.Println()
	}
	for src, msg := range res.PerSourceErrors {
		outputHuman("warning: %s failed: %s\n", src, msg)
	}
}

func formatQuotaHuman(st quota.Status) string {
	flag := ""
	switch {
	case st.IsExceeded:
		flag = " EXCEEDED"
	case st.IsWarning:
		flag = " warning"
	}
	return fmt.Sprintf("%s %s: %d/%d used, %d remaining, resets %s%s\n",
		st.Key.Provider, st.Key.Class, st.Used, st.Limit, st.Remaining,
		st.ResetsAt.Format(timeLayoutHuman), flag)
}

func printRecordHuman(rec *document.Record) {
	outputHuman("%s: %s\n", rec.PDFID, rec.Status)
	if rec.ErrorMessage != "" {
		outputHuman("  error: %s\n", rec.ErrorMessage)
	}
	if e := rec.Extraction; e != nil {
		outputHuman("  extraction: %d chars via %s (ocr=%t, tables=%d, figures=%d)\n",
			e.TextLength, e.Method, e.OCRUsed, e.TableCount, e.FigureCount)
	}
	if j := rec.Judgment; j != nil {
		verdict := "undetermined"
		if j.HasKoreaRecord != nil {
			verdict = strconv.FormatBool(*j.HasKoreaRecord)
		}
		outputHuman("  korea record: %s (confidence %.2f, %s/%s)\n", verdict, j.Confidence, j.Provider, j.Model)
		if j.Locality != "" {
			outputHuman("  locality: %s\n", j.Locality)
		}
		if j.CollectionDate != "" {
			outputHuman("  collected: %s\n", j.CollectionDate)
		}
		for _, q := range j.RelevantQuotes {
			outputHuman("  > %s\n", truncateString(q, QuoteMaxLen))
		}
	}
}

func printBatchHuman(s *analysis.BatchSummary) {
	outputHuman("%d documents: %d completed, %d failed, %d quota exceeded, %d skipped\n",
		s.Total, s.Completed, s.Failed, s.QuotaExceeded, s.Skipped)
	for _, it := range s.Items {
		line := fmt.Sprintf("  %s: %s", it.PDFID, it.Outcome)
		if it.Provider != "" {
			line += fmt.Sprintf(" (%s/%s)", it.Provider, it.Model)
		}
		if it.Error != "" {
			line += ": " + it.Error
		}
		outputHuman("%s\n", line)
	}
}

// parseYearRange parses "1800:1900", "1800:" or ":1900" into bounds.
func parseYearRange(s string) (from, to *int, err error) {
	if s == "" {
		return nil, nil, nil
	}
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		y, err := strconv.Atoi(s)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid year %q", s)
		}
		return &y, &y, nil
	}
	parse := func(v string) (*int, error) {
		if v == "" {
			return nil, nil
		}
		y, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", v)
		}
		return &y, nil
	}
	if from, err = parse(lo); err != nil {
		return nil, nil, err
	}
	if to, err = parse(hi); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
