// Package llm wraps the language-model providers used to judge documents.
package llm

import (
	"fmt"
	"slices"

	"github.com/matsen/firstrecord/internal/apperr"
)

// ProviderID names an LLM provider.
type ProviderID string

const (
	ProviderGemini ProviderID = "gemini"
	ProviderOllama ProviderID = "ollama"
	ProviderClaude ProviderID = "claude"
)

// DefaultGeminiDailyLimit is the free-tier request cap per day.
const DefaultGeminiDailyLimit = 250

var (
	ErrUnknownProvider = fmt.Errorf("%w: unknown llm provider", apperr.ErrValidation)
	ErrUnknownModel    = fmt.Errorf("%w: model not offered by provider", apperr.ErrValidation)
	ErrMissingAPIKey   = fmt.Errorf("%w: provider requires an api key", apperr.ErrValidation)
	ErrBadResponse     = fmt.Errorf("%w: unusable llm response", apperr.ErrUpstreamUnavailable)
)

// Provider is one row of the static provider table.
type Provider struct {
	ID             ProviderID
	DisplayName    string
	Models         []string
	DefaultModel   string
	RequiresAPIKey bool
	// FreeTierModels are metered against the daily quota.
	FreeTierModels []string
	DailyLimit     int
	// OpenModels accepts any model name, for local runtimes.
	OpenModels bool
	Local      bool
}

// Providers is the provider table.
var Providers = []Provider{
	{
		ID:             ProviderGemini,
		DisplayName:    "Google Gemini",
		Models:         []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"},
		DefaultModel:   "gemini-2.5-flash",
		RequiresAPIKey: true,
		FreeTierModels: []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"},
		DailyLimit:     DefaultGeminiDailyLimit,
	},
	{
		ID:           ProviderOllama,
		DisplayName:  "Ollama",
		Models:       []string{"qwen2.5:7b", "llama3.1:8b"},
		DefaultModel: "qwen2.5:7b",
		OpenModels:   true,
		Local:        true,
	},
	{
		ID:           ProviderClaude,
		DisplayName:  "Claude CLI",
		Models:       []string{"haiku", "sonnet", "opus"},
		DefaultModel: "haiku",
		Local:        true,
	},
}

// Lookup returns the provider with id.
func Lookup(id ProviderID) (Provider, error) {
	for _, p := range Providers {
		if p.ID == id {
			return p, nil
		}
	}
	return Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
}

// Metered reports whether any model of p draws on a free-tier quota.
func (p Provider) Metered() bool {
	return len(p.FreeTierModels) > 0
}

// IsBillable reports whether a call to model counts against p's quota.
func (p Provider) IsBillable(model string) bool {
	return slices.Contains(p.FreeTierModels, p.Model(model))
}

// Model resolves an empty model name to the default.
func (p Provider) Model(model string) string {
	if model == "" {
		return p.DefaultModel
	}
	return model
}

// CheckModel validates model for p.
func (p Provider) CheckModel(model string) error {
	model = p.Model(model)
	if p.OpenModels || slices.Contains(p.Models, model) {
		return nil
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownModel, p.ID, model)
}

// ValidateProviders checks a provider table for consistency.
func ValidateProviders(ps []Provider) error {
	seen := make(map[ProviderID]bool, len(ps))
	for _, p := range ps {
		if p.ID == "" {
			return fmt.Errorf("provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider %q", p.ID)
		}
		seen[p.ID] = true
		if !slices.Contains(p.Models, p.DefaultModel) {
			return fmt.Errorf("provider %q: default model %q not in model list", p.ID, p.DefaultModel)
		}
		for _, m := range p.FreeTierModels {
			if !slices.Contains(p.Models, m) {
				return fmt.Errorf("provider %q: free-tier model %q not in model list", p.ID, m)
			}
		}
		if p.Metered() && p.DailyLimit <= 0 {
			return fmt.Errorf("provider %q: metered provider needs a positive daily limit", p.ID)
		}
		if p.Local && p.Metered() {
			return fmt.Errorf("provider %q: local providers cannot be metered", p.ID)
		}
	}
	return nil
}
