package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/matsen/firstrecord/internal/document"
)

// MaxPromptTextBytes bounds the document text embedded in a prompt.
const MaxPromptTextBytes = 30000

// truncateUTF8 truncates text to at most maxLen bytes on a rune boundary,
// appending "..." when it cuts.
func truncateUTF8(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}

	validLen := maxLen
	for validLen > 0 && !utf8.RuneStart(text[validLen]) {
		validLen--
	}
	if validLen == 0 {
		return ""
	}
	return text[:validLen] + "..."
}

// BuildPrompt asks the model whether text documents species in Korea.
func BuildPrompt(species string, synonyms []string, text string) string {
	names := species
	if len(synonyms) > 0 {
		names = fmt.Sprintf("%s (synonyms: %s)", species, strings.Join(synonyms, ", "))
	}

	return fmt.Sprintf(`You are a marine taxonomist reviewing a publication for evidence that a species has been recorded in Korean waters.

Species: %s

Decide whether the document reports a specimen or observation of this species from Korea (including Jeju, Ulleungdo, Dokdo, the East Sea, the Yellow Sea and the Korea Strait). Mentions of the species elsewhere do not count.

Respond with a JSON object with exactly these keys:
{
  "hasKoreaRecord": true | false | null,
  "confidence": number between 0 and 1,
  "locality": "collection locality in Korea, or empty",
  "collectionDate": "date or year of collection, or empty",
  "relevantQuotes": ["short verbatim quotes supporting the decision"],
  "reasoning": "one or two sentences"
}
Use null for hasKoreaRecord when the text is insufficient to decide.

Document text:
---
%s
---

Return ONLY the JSON object, no other text.`, names, truncateUTF8(text, MaxPromptTextBytes))
}

type rawJudgment struct {
	HasKoreaRecord *bool    `json:"hasKoreaRecord"`
	Confidence     float64  `json:"confidence"`
	Locality       *string  `json:"locality"`
	CollectionDate *string  `json:"collectionDate"`
	RelevantQuotes []string `json:"relevantQuotes"`
	Reasoning      string   `json:"reasoning"`
}

// ParseJudgment decodes a model response into a Judgment. Markdown code
// fences and surrounding prose are tolerated; confidence is clamped to [0,1].
func ParseJudgment(response string) (*document.Judgment, error) {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		text = extractFromCodeBlock(text)
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var raw rawJudgment
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing judgment: %v", ErrBadResponse, err)
	}

	j := &document.Judgment{
		HasKoreaRecord: raw.HasKoreaRecord,
		Confidence:     clamp01(raw.Confidence),
		RelevantQuotes: raw.RelevantQuotes,
		Reasoning:      strings.TrimSpace(raw.Reasoning),
	}
	if raw.Locality != nil {
		j.Locality = strings.TrimSpace(*raw.Locality)
	}
	if raw.CollectionDate != nil {
		j.CollectionDate = strings.TrimSpace(*raw.CollectionDate)
	}
	if j.RelevantQuotes == nil {
		j.RelevantQuotes = []string{}
	}
	return j, nil
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// extractFromCodeBlock extracts content from a markdown code block.
func extractFromCodeBlock(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}

	end := len(lines)
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		end = len(lines) - 1
	}
	return strings.Join(lines[1:end], "\n")
}
