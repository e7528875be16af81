package llm

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{"short", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii cut", "abcdef", 3, "abc..."},
		{"multibyte boundary", "제주도", 4, "제..."},
		{"too small for one rune", "제주", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateUTF8(tt.text, tt.maxLen); got != tt.want {
				t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	long := strings.Repeat("홍대치 ", 20000)
	p := BuildPrompt("Fistularia petimba", []string{"Fistularia serrata"}, long)

	if !strings.Contains(p, "Fistularia petimba (synonyms: Fistularia serrata)") {
		t.Error("prompt should name species and synonyms")
	}
	if !strings.Contains(p, `"hasKoreaRecord"`) {
		t.Error("prompt should describe the response schema")
	}
	if !utf8.ValidString(p) {
		t.Error("prompt is not valid UTF-8")
	}
	if len(p) > MaxPromptTextBytes+2000 {
		t.Errorf("prompt length %d not bounded", len(p))
	}
}

func TestParseJudgment(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantKorea *bool
		wantConf  float64
		wantLoc   string
		wantQuote int
	}{
		{
			name:      "plain",
			response:  `{"hasKoreaRecord": true, "confidence": 0.9, "locality": "Jeju Island", "collectionDate": "2003", "relevantQuotes": ["collected off Jeju"], "reasoning": "explicit"}`,
			wantKorea: boolPtr(true),
			wantConf:  0.9,
			wantLoc:   "Jeju Island",
			wantQuote: 1,
		},
		{
			name:      "code fence",
			response:  "```json\n{\"hasKoreaRecord\": false, \"confidence\": 0.4}\n```",
			wantKorea: boolPtr(false),
			wantConf:  0.4,
		},
		{
			name:     "null decision and clamped confidence",
			response: `{"hasKoreaRecord": null, "confidence": 1.7, "locality": null}`,
			wantConf: 1,
		},
		{
			name:      "prose around json",
			response:  "Here is my answer:\n{\"hasKoreaRecord\": true, \"confidence\": -0.2}\nThanks.",
			wantKorea: boolPtr(true),
			wantConf:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := ParseJudgment(tt.response)
			if err != nil {
				t.Fatalf("ParseJudgment() error = %v", err)
			}
			if (j.HasKoreaRecord == nil) != (tt.wantKorea == nil) ||
				(j.HasKoreaRecord != nil && *j.HasKoreaRecord != *tt.wantKorea) {
				t.Errorf("HasKoreaRecord = %v, want %v", j.HasKoreaRecord, tt.wantKorea)
			}
			if j.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", j.Confidence, tt.wantConf)
			}
			if j.Locality != tt.wantLoc {
				t.Errorf("Locality = %q, want %q", j.Locality, tt.wantLoc)
			}
			if j.RelevantQuotes == nil || len(j.RelevantQuotes) != tt.wantQuote {
				t.Errorf("RelevantQuotes = %v, want %d quotes", j.RelevantQuotes, tt.wantQuote)
			}
		})
	}
}

func TestParseJudgment_Invalid(t *testing.T) {
	if _, err := ParseJudgment("I cannot help with that."); !errors.Is(err, ErrBadResponse) {
		t.Errorf("error = %v, want ErrBadResponse", err)
	}
}

func boolPtr(b bool) *bool { return &b }
