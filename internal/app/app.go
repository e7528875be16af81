// Package app builds every firstrecord component from configuration and
// exposes the operations shared by the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matsen/firstrecord/internal/aggregator"
	"github.com/matsen/firstrecord/internal/analysis"
	"github.com/matsen/firstrecord/internal/apiclient"
	"github.com/matsen/firstrecord/internal/bhl"
	"github.com/matsen/firstrecord/internal/config"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/extract"
	"github.com/matsen/firstrecord/internal/intake"
	"github.com/matsen/firstrecord/internal/kci"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/llm"
	"github.com/matsen/firstrecord/internal/logger"
	"github.com/matsen/firstrecord/internal/quota"
	"github.com/matsen/firstrecord/internal/riss"
	"github.com/matsen/firstrecord/internal/s2"
	"github.com/matsen/firstrecord/internal/scienceon"
	"github.com/matsen/firstrecord/internal/store"
	"github.com/matsen/firstrecord/internal/taxon"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *store.DB
	Aggregator *aggregator.Aggregator
	Intake     *intake.Intake
	Fetcher    *intake.Fetcher
	Resolver   taxon.Resolver
	Quotas     *quota.Registry
	Router     *llm.Router
	Analysis   *analysis.Orchestrator
}

// New wires an App from cfg. Records left analyzing by a previous process
// are marked as errors.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	log = logger.OrDefault(log)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, Store: db}

	if err := a.wire(); err != nil {
		db.Close()
		return nil, err
	}

	n, err := db.RecoverInterrupted(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if n > 0 {
		log.Warn("recovered_interrupted_analyses", slog.Int("count", n))
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.Config

	a.Aggregator = aggregator.New(Sources(cfg, a.Logger), aggregator.Config{
		MaxNames:       cfg.Aggregation.MaxNames,
		SourcePriority: cfg.Aggregation.SourcePriority,
		KoreaKeywords:  cfg.Aggregation.KoreaKeywords,
	}, a.Logger)

	in, err := intake.New(cfg.StorageRoot, a.Logger, intake.WithMaxBytes(cfg.MaxUploadBytes))
	if err != nil {
		return err
	}
	a.Intake = in
	a.Fetcher = intake.NewFetcher(in, nil, 1)

	var taxonOpts []apiclient.Option
	if cfg.Taxon.BaseURL != "" {
		taxonOpts = append(taxonOpts, apiclient.WithBaseURL(cfg.Taxon.BaseURL))
	}
	resolver, err := taxon.NewCachedResolver(taxon.NewWormsClient(a.Logger, taxonOpts...), cfg.Taxon.CacheSize)
	if err != nil {
		return err
	}
	a.Resolver = resolver

	quotas, err := Quotas(cfg)
	if err != nil {
		return err
	}
	a.Quotas = quotas

	a.Router = Router(cfg)
	a.Analysis = analysis.New(a.Store, Extractor(cfg, a.Logger), a.Router, a.Quotas, a.Logger,
		analysis.WithExtractOptions(extract.Options{
			EnableOCR:      cfg.Extraction.EnableOCR,
			OCRLanguages:   cfg.Extraction.OCRLanguages,
			ExtractTables:  cfg.Extraction.ExtractTables,
			ExtractFigures: cfg.Extraction.ExtractFigures,
		}))
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// Sources builds the adapters enabled in cfg, in default priority order.
func Sources(cfg *config.Config, log *slog.Logger) []literature.Source {
	clientOpts := func(sc config.SourceConfig) []apiclient.Option {
		var opts []apiclient.Option
		if sc.BaseURL != "" {
			opts = append(opts, apiclient.WithBaseURL(sc.BaseURL))
		}
		if sc.RateLimit > 0 {
			opts = append(opts, apiclient.WithRateLimit(sc.RateLimit))
		}
		return opts
	}

	var sources []literature.Source
	for _, id := range literature.AllSources {
		sc := cfg.Source(id)
		if !sc.IsEnabled() {
			continue
		}
		switch id {
		case literature.SourceBHL:
			sources = append(sources, bhl.NewClient(sc.APIKey, log, clientOpts(sc)...))
		case literature.SourceS2:
			sources = append(sources, s2.NewClient(sc.APIKey, log, clientOpts(sc)...))
		case literature.SourceKCI:
			sources = append(sources, kci.NewClient(sc.APIKey, log, clientOpts(sc)...))
		case literature.SourceRISS:
			sources = append(sources, riss.NewClient(log, clientOpts(sc)...))
		case literature.SourceScienceON:
			sources = append(sources, scienceon.NewClient(sc.ClientID, sc.Token, log, clientOpts(sc)...))
		case literature.SourceScienceONPatent:
			c := scienceon.NewClient(sc.ClientID, sc.Token, log, clientOpts(sc)...)
			sources = append(sources, literature.PatentSource(id, c))
		case literature.SourceScienceONReport:
			c := scienceon.NewClient(sc.ClientID, sc.Token, log, clientOpts(sc)...)
			sources = append(sources, literature.ReportSource(id, c))
		}
	}
	return sources
}

// Quotas builds one free-tier tracker per configured metered provider.
// Administrative resets are disabled in production.
func Quotas(cfg *config.Config) (*quota.Registry, error) {
	reg := quota.NewRegistry()
	ids := make([]llm.ProviderID, 0, len(cfg.Quota))
	for id := range cfg.Quota {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		q := cfg.Quota[id]
		t, err := quota.NewTracker(quota.FreeTier(string(id)), quota.Config{
			Limit:        q.DailyLimit,
			WarningRatio: q.WarningRatio,
			ResetOffset:  q.ResetOffset,
		}, quota.WithAdminReset(!cfg.IsProduction()))
		if err != nil {
			return nil, fmt.Errorf("quota %s: %w", id, err)
		}
		reg.Add(t)
	}
	return reg, nil
}

// Router registers a generator for every provider that can run with cfg.
// Gemini needs an API key; local providers are always registered.
func Router(cfg *config.Config) *llm.Router {
	r := llm.NewRouter()
	if cfg.LLM.GeminiAPIKey != "" {
		var opts []llm.GeminiOption
		if cfg.LLM.GeminiBaseURL != "" {
			opts = append(opts, llm.WithGeminiURL(cfg.LLM.GeminiBaseURL))
		}
		r.Register(llm.ProviderGemini, llm.NewGeminiClient(cfg.LLM.GeminiAPIKey, opts...))
	}
	r.Register(llm.ProviderOllama, llm.NewOllamaClient(cfg.LLM.OllamaURL, nil))
	r.Register(llm.ProviderClaude, llm.ClaudeCLI{Command: cfg.LLM.ClaudeCommand})
	return r
}

// Extractor builds the extraction chain: the service first, then the local
// text extractor when enabled.
func Extractor(cfg *config.Config, log *slog.Logger) extract.Extractor {
	service := extract.NewServiceClient(
		extract.WithServiceURL(cfg.Extraction.ServiceURL),
		extract.WithTimeout(cfg.Extraction.Timeout),
	)
	if !cfg.Extraction.LocalFallback {
		return extract.NewChain(log, service)
	}
	return extract.NewChain(log, service, extract.LocalExtractor{})
}

// CollectRequest is a collection with optional synonym resolution.
type CollectRequest struct {
	literature.Query
	ResolveSynonyms bool `json:"resolveSynonyms,omitempty"`
}

// Collect optionally resolves synonyms, runs the aggregator, and stores the
// result. A failed resolution is logged and the query runs as given.
func (a *App) Collect(ctx context.Context, req CollectRequest) (*literature.CollectionResult, error) {
	q := req.Query
	if req.ResolveSynonyms && strings.TrimSpace(q.PrimaryName) != "" {
		q = a.withSynonyms(ctx, q)
	}

	res, err := a.Aggregator.Collect(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := a.Store.SaveCollection(ctx, res); err != nil {
		a.Logger.Warn("collection_not_saved",
			slog.String("collection_id", res.CollectionID),
			slog.String("error", err.Error()))
	}
	return res, nil
}

func (a *App) withSynonyms(ctx context.Context, q literature.Query) literature.Query {
	res, err := a.Resolver.Resolve(ctx, q.PrimaryName)
	if err == nil && !res.Success {
		err = errors.New(res.Error)
	}
	if err != nil {
		a.Logger.Warn("synonym_resolution_failed",
			slog.String("name", q.PrimaryName),
			slog.String("error", err.Error()))
		return q
	}

	names := append([]string(nil), q.SynonymNames...)
	extra := append([]string{res.AcceptedName}, res.Synonyms...)
	for _, n := range extra {
		if n != "" && n != q.PrimaryName && !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	q.SynonymNames = names
	return q
}

// Upload validates and stores an uploaded PDF and creates its pending
// analysis record.
func (a *App) Upload(ctx context.Context, u intake.Upload) (*document.Asset, error) {
	asset, err := a.Intake.Accept(ctx, u)
	if err != nil {
		return nil, err
	}
	return a.register(ctx, asset)
}

// Fetch downloads a remote PDF and registers it like an upload.
func (a *App) Fetch(ctx context.Context, rawURL, name string) (*document.Asset, error) {
	asset, err := a.Fetcher.Fetch(ctx, rawURL, name)
	if err != nil {
		return nil, err
	}
	return a.register(ctx, asset)
}

func (a *App) register(ctx context.Context, asset *document.Asset) (*document.Asset, error) {
	if err := a.Store.SaveAsset(ctx, asset); err != nil {
		if rmErr := os.Remove(asset.StoragePath); rmErr != nil {
			a.Logger.Error("orphaned_pdf", slog.String("pdf_id", asset.ID), slog.String("error", rmErr.Error()))
		}
		return nil, err
	}
	return asset, nil
}

// QuotaStatuses returns every tracker's status.
func (a *App) QuotaStatuses() []quota.Status {
	return a.Quotas.Statuses()
}

// ResetQuota resets provider's tracker. It fails in production.
func (a *App) ResetQuota(provider string) (quota.Status, error) {
	st, err := a.Quotas.Reset(provider)
	if err != nil {
		return quota.Status{}, err
	}
	a.Logger.Info("quota_reset", slog.String("provider", provider))
	return st, nil
}
