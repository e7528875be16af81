// Package config loads firstrecord settings from YAML with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/matsen/firstrecord/internal/aggregator"
	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/intake"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/llm"
	"github.com/matsen/firstrecord/internal/quota"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config is the full application configuration.
type Config struct {
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"log_level"`
	StorageRoot    string `yaml:"storage_root"`
	DatabasePath   string `yaml:"database_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	Server      ServerConfig                         `yaml:"server"`
	Sources     map[literature.SourceID]SourceConfig `yaml:"sources"`
	Aggregation AggregationConfig                    `yaml:"aggregation"`
	Quota       map[llm.ProviderID]QuotaConfig       `yaml:"quota"`
	Extraction  ExtractionConfig                     `yaml:"extraction"`
	LLM         LLMConfig                            `yaml:"llm"`
	Taxon       TaxonConfig                          `yaml:"taxon"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig configures one literature source. The three ScienceON
// sources share the scienceon entry's credentials.
type SourceConfig struct {
	Enabled   *bool   `yaml:"enabled,omitempty"`
	BaseURL   string  `yaml:"base_url,omitempty"`
	APIKey    string  `yaml:"api_key,omitempty"`
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	ClientID  string  `yaml:"client_id,omitempty"`
	Token     string  `yaml:"token,omitempty"`
}

// IsEnabled reports whether the source is on. Sources are on by default.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// AggregationConfig is the fan-out and ranking policy.
type AggregationConfig struct {
	MaxNames       int                   `yaml:"max_names"`
	SourcePriority []literature.SourceID `yaml:"source_priority"`
	KoreaKeywords  []string              `yaml:"korea_keywords"`
}

// QuotaConfig sets one provider's free-tier limits.
type QuotaConfig struct {
	DailyLimit   int           `yaml:"daily_limit"`
	WarningRatio float64       `yaml:"warning_ratio"`
	ResetOffset  time.Duration `yaml:"reset_offset"`
}

// ExtractionConfig configures the extraction service and fallback.
type ExtractionConfig struct {
	ServiceURL     string        `yaml:"service_url"`
	EnableOCR      bool          `yaml:"enable_ocr"`
	OCRLanguages   []string      `yaml:"ocr_languages"`
	ExtractTables  bool          `yaml:"extract_tables"`
	ExtractFigures bool          `yaml:"extract_figures"`
	LocalFallback  bool          `yaml:"local_fallback"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig selects the default provider and holds provider settings.
type LLMConfig struct {
	Provider      llm.ProviderID `yaml:"provider"`
	Model         string         `yaml:"model"`
	GeminiAPIKey  string         `yaml:"gemini_api_key,omitempty"`
	GeminiBaseURL string         `yaml:"gemini_base_url,omitempty"`
	OllamaURL     string         `yaml:"ollama_url,omitempty"`
	ClaudeCommand string         `yaml:"claude_command,omitempty"`
}

// TaxonConfig configures the synonym resolver.
type TaxonConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	CacheSize int    `yaml:"cache_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment:    EnvDevelopment,
		LogLevel:       "info",
		StorageRoot:    "data/pdfs",
		DatabasePath:   "data/firstrecord.db",
		MaxUploadBytes: intake.DefaultMaxBytes,
		Server:         ServerConfig{Addr: ":8080"},
		Sources:        map[literature.SourceID]SourceConfig{},
		Aggregation: AggregationConfig{
			MaxNames:       aggregator.DefaultMaxNames,
			SourcePriority: append([]literature.SourceID(nil), literature.AllSources...),
			KoreaKeywords:  append([]string(nil), aggregator.DefaultKoreaKeywords...),
		},
		Quota: map[llm.ProviderID]QuotaConfig{
			llm.ProviderGemini: {
				DailyLimit:   llm.DefaultGeminiDailyLimit,
				WarningRatio: quota.DefaultWarningRatio,
			},
		},
		Extraction: ExtractionConfig{
			ServiceURL:     "http://localhost:8000",
			EnableOCR:      true,
			OCRLanguages:   []string{"kor", "eng"},
			ExtractTables:  true,
			ExtractFigures: true,
			LocalFallback:  true,
			Timeout:        5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider: llm.ProviderGemini,
			Model:    "gemini-2.5-flash",
		},
		Taxon: TaxonConfig{CacheSize: 512},
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates the result. A missing file is an error only when required is
// true.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %v", apperr.ErrValidation, path, err)
			}
		case os.IsNotExist(err) && !required:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.fillDefaults()
	cfg.StorageRoot = ExpandPath(cfg.StorageRoot)
	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and a few operational settings from the
// environment.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setSource := func(id literature.SourceID, apply func(*SourceConfig)) {
		sc := c.Sources[id]
		apply(&sc)
		c.Sources[id] = sc
	}

	set(&c.Environment, "FIRSTRECORD_ENV")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")

	if c.Sources == nil {
		c.Sources = map[literature.SourceID]SourceConfig{}
	}
	for id, key := range map[literature.SourceID]string{
		literature.SourceBHL: "BHL_API_KEY",
		literature.SourceS2:  "S2_API_KEY",
		literature.SourceKCI: "KCI_API_KEY",
	} {
		if v := getenv(key); v != "" {
			setSource(id, func(sc *SourceConfig) { sc.APIKey = v })
		}
	}
	if v := getenv("SCIENCEON_CLIENT_ID"); v != "" {
		setSource(literature.SourceScienceON, func(sc *SourceConfig) { sc.ClientID = v })
	}
	if v := getenv("SCIENCEON_TOKEN"); v != "" {
		setSource(literature.SourceScienceON, func(sc *SourceConfig) { sc.Token = v })
	}
}

// fillDefaults completes partially specified map entries.
func (c *Config) fillDefaults() {
	if c.Quota == nil {
		c.Quota = map[llm.ProviderID]QuotaConfig{}
	}
	for id, q := range c.Quota {
		if q.DailyLimit == 0 {
			if p, err := llm.Lookup(id); err == nil {
				q.DailyLimit = p.DailyLimit
			}
		}
		if q.WarningRatio == 0 {
			q.WarningRatio = quota.DefaultWarningRatio
		}
		c.Quota[id] = q
	}
	for _, p := range llm.Providers {
		if _, ok := c.Quota[p.ID]; !ok && p.Metered() {
			c.Quota[p.ID] = QuotaConfig{DailyLimit: p.DailyLimit, WarningRatio: quota.DefaultWarningRatio}
		}
	}
	if c.Aggregation.MaxNames == 0 {
		c.Aggregation.MaxNames = aggregator.DefaultMaxNames
	}
	if c.Taxon.CacheSize == 0 {
		c.Taxon.CacheSize = 512
	}
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		add("environment: %q is not one of development, test, production", c.Environment)
	}
	if c.MaxUploadBytes <= 0 {
		add("max_upload_bytes: must be positive")
	}
	if c.StorageRoot == "" {
		add("storage_root: required")
	}
	if c.DatabasePath == "" {
		add("database_path: required")
	}
	if c.Server.Addr == "" {
		add("server.addr: required")
	}
	for id, sc := range c.Sources {
		if !id.IsKnown() {
			add("sources: unknown source %q", id)
		}
		if sc.RateLimit < 0 {
			add("sources.%s.rate_limit: must not be negative", id)
		}
	}
	if c.Aggregation.MaxNames <= 0 {
		add("aggregation.max_names: must be positive")
	}
	for _, id := range c.Aggregation.SourcePriority {
		if !id.IsKnown() {
			add("aggregation.source_priority: unknown source %q", id)
		}
	}

	if err := llm.ValidateProviders(llm.Providers); err != nil {
		add("llm provider table: %v", err)
	}
	if p, err := llm.Lookup(c.LLM.Provider); err != nil {
		add("llm.provider: %v", err)
	} else if err := p.CheckModel(c.LLM.Model); err != nil {
		add("llm.model: %v", err)
	}
	for id, q := range c.Quota {
		p, err := llm.Lookup(id)
		if err != nil {
			add("quota: %v", err)
			continue
		}
		if !p.Metered() {
			add("quota.%s: provider is not metered", id)
		}
		if q.DailyLimit <= 0 {
			add("quota.%s.daily_limit: must be positive", id)
		}
		if q.WarningRatio <= 0 || q.WarningRatio >= 1 {
			add("quota.%s.warning_ratio: must be in (0,1)", id)
		}
		if q.ResetOffset < 0 || q.ResetOffset >= 24*time.Hour {
			add("quota.%s.reset_offset: must be in [0h,24h)", id)
		}
	}
	if c.Extraction.Timeout < 0 {
		add("extraction.timeout: must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid configuration: %w", apperr.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether administrative overrides are disabled.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Source returns the configuration for id. ScienceON patent and report
// sources inherit the scienceon entry's credentials and base URL.
func (c *Config) Source(id literature.SourceID) SourceConfig {
	sc := c.Sources[id]
	if id == literature.SourceScienceONPatent || id == literature.SourceScienceONReport {
		base := c.Sources[literature.SourceScienceON]
		if sc.ClientID == "" {
			sc.ClientID = base.ClientID
		}
		if sc.Token == "" {
			sc.Token = base.Token
		}
		if sc.BaseURL == "" {
			sc.BaseURL = base.BaseURL
		}
		if sc.RateLimit == 0 {
			sc.RateLimit = base.RateLimit
		}
	}
	return sc
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
