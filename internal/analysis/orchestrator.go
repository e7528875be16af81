// Package analysis runs the per-document extraction and judgment pipeline
// and owns its status transitions.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/extract"
	"github.com/matsen/firstrecord/internal/llm"
	"github.com/matsen/firstrecord/internal/logger"
	"github.com/matsen/firstrecord/internal/metrics"
	"github.com/matsen/firstrecord/internal/quota"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	GetAsset(ctx context.Context, id string) (*document.Asset, error)
	GetRecord(ctx context.Context, pdfID string) (*document.Record, error)
	ListByStatus(ctx context.Context, statuses ...document.Status) ([]string, error)
	BeginAnalysis(ctx context.Context, pdfID string) (*document.Record, error)
	SaveExtraction(ctx context.Context, pdfID string, ext *document.Extraction) error
	CompleteAnalysis(ctx context.Context, pdfID string, j *document.Judgment) error
	FailAnalysis(ctx context.Context, pdfID, message string) error
}

// Judge resolves providers and produces judgments. *llm.Router satisfies it.
type Judge interface {
	llm.Judge
	Resolve(id llm.ProviderID, model string) (llm.Provider, string, error)
}

// Request is one analysis trigger.
type Request struct {
	Provider     llm.ProviderID `json:"provider"`
	Model        string         `json:"model,omitempty"`
	Species      string         `json:"species"`
	Synonyms     []string       `json:"synonyms,omitempty"`
	ForceExtract bool           `json:"forceExtract,omitempty"`
}

// Orchestrator drives analyses. Billable judgments are serialized so the
// quota check and the usage increment form one unit.
type Orchestrator struct {
	store     Store
	extractor extract.Extractor
	judge     Judge
	quotas    *quota.Registry
	opts      extract.Options
	logger    *slog.Logger

	billing sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithExtractOptions sets the options passed to the extractor.
func WithExtractOptions(opts extract.Options) Option {
	return func(o *Orchestrator) {
		o.opts = opts
	}
}

// New creates an Orchestrator. quotas may be nil, in which case nothing is
// metered.
func New(store Store, extractor extract.Extractor, judge Judge, quotas *quota.Registry, log *slog.Logger, opts ...Option) *Orchestrator {
	if quotas == nil {
		quotas = quota.NewRegistry()
	}
	o := &Orchestrator{
		store:     store,
		extractor: extractor,
		judge:     judge,
		quotas:    quotas,
		opts:      extract.DefaultOptions(),
		logger:    logger.OrDefault(log),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// target is a resolved provider and model.
type target struct {
	provider llm.Provider
	model    string
}

func (t target) billable() bool {
	return t.provider.IsBillable(t.model)
}

func (o *Orchestrator) resolve(id llm.ProviderID, model string) (target, error) {
	p, m, err := o.judge.Resolve(id, model)
	if err != nil {
		return target{}, err
	}
	return target{provider: p, model: m}, nil
}

// tracker returns the free-tier tracker for t, or nil when t is not metered.
func (o *Orchestrator) tracker(t target) *quota.Tracker {
	if !t.billable() {
		return nil
	}
	tr, ok := o.quotas.Get(string(t.provider.ID))
	if !ok {
		return nil
	}
	return tr
}

func (o *Orchestrator) exceeded(t target) bool {
	tr := o.tracker(t)
	return tr != nil && tr.Status().IsExceeded
}

func quotaError(t target) error {
	return fmt.Errorf("%w: %s/%s free-tier limit reached", apperr.ErrQuotaExceeded, t.provider.ID, t.model)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Species) == "" {
		return fmt.Errorf("%w: species is required", apperr.ErrValidation)
	}
	return nil
}

// TriggerAnalysis moves pdfID to analyzing and runs extraction and judgment.
// A record already analyzing is rejected with document.ErrAlreadyAnalyzing.
// When the request targets a billable model whose quota is exceeded it fails
// with apperr.ErrQuotaExceeded and the record is left where it was. If the
// quota runs out after the record moved to analyzing, the record ends in error
// and apperr.ErrQuotaExceeded is still returned.
//
// Extraction and LLM failures are recorded on the returned record, not
// returned as errors. The work runs on a context detached from ctx's
// cancellation, so an abandoned caller still sees usage and state recorded.
func (o *Orchestrator) TriggerAnalysis(ctx context.Context, pdfID string, req Request) (*document.Record, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	t, err := o.resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	return o.trigger(ctx, pdfID, req, t)
}

func (o *Orchestrator) trigger(ctx context.Context, pdfID string, req Request, t target) (*document.Record, error) {
	ctx = logger.WithPDFID(ctx, pdfID)
	log := logger.FromContext(ctx, o.logger)

	asset, err := o.store.GetAsset(ctx, pdfID)
	if err != nil {
		return nil, err
	}
	if o.exceeded(t) {
		log.Warn("quota_exceeded", slog.String("provider", string(t.provider.ID)), slog.String("model", t.model))
		return nil, quotaError(t)
	}
	rec, err := o.store.BeginAnalysis(ctx, pdfID)
	if err != nil {
		return nil, err
	}
	log.Info("analysis_started",
		slog.String("provider", string(t.provider.ID)),
		slog.String("model", t.model),
		slog.Bool("billable", t.billable()))

	return o.run(context.WithoutCancel(ctx), asset, rec, req, t)
}

func (o *Orchestrator) run(ctx context.Context, asset *document.Asset, rec *document.Record, req Request, t target) (*document.Record, error) {
	log := logger.FromContext(ctx, o.logger)
	start := time.Now()

	ext := rec.Extraction
	if ext == nil || req.ForceExtract {
		res, err := o.extractor.Extract(ctx, asset.StoragePath, o.opts)
		if err != nil {
			return o.fail(ctx, asset.ID, fmt.Errorf("extraction failed: %w", err))
		}
		ext = res.Extraction()
		if err := o.store.SaveExtraction(ctx, asset.ID, ext); err != nil {
			return nil, o.abandon(ctx, asset.ID, err)
		}
		log.Info("extraction_completed",
			slog.String("method", ext.Method),
			slog.Int("text_length", ext.TextLength),
			slog.Bool("ocr_used", ext.OCRUsed))
	} else {
		log.Debug("extraction_reused", slog.String("method", ext.Method))
	}

	if strings.TrimSpace(ext.Text) == "" {
		return o.fail(ctx, asset.ID, extract.ErrNoText)
	}

	j, preempted, err := o.judgeDocument(ctx, ext.Text, req, t)
	if preempted {
		log.Warn("quota_exceeded", slog.String("provider", string(t.provider.ID)), slog.String("model", t.model))
		if _, ferr := o.fail(ctx, asset.ID, err); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	if err != nil {
		return o.fail(ctx, asset.ID, fmt.Errorf("judgment failed: %w", err))
	}

	if err := o.store.CompleteAnalysis(ctx, asset.ID, j); err != nil {
		return nil, o.abandon(ctx, asset.ID, err)
	}
	metrics.RecordAnalysis(string(document.StatusCompleted))
	log.Info("analysis_completed",
		slog.Duration("elapsed", time.Since(start)),
		slog.Any("has_korea_record", j.HasKoreaRecord),
		slog.Float64("confidence", j.Confidence))
	return o.store.GetRecord(ctx, asset.ID)
}

// judgeDocument invokes the LLM. For billable models the check, the call and
// the usage increment happen under one lock, and usage is recorded only for
// calls that succeeded.
// preempted is true when the quota check refused the call.
func (o *Orchestrator) judgeDocument(ctx context.Context, text string, req Request, t target) (j *document.Judgment, preempted bool, err error) {
	call := llm.Request{
		Provider: t.provider.ID,
		Model:    t.model,
		Prompt:   llm.BuildPrompt(req.Species, req.Synonyms, text),
	}

	tr := o.tracker(t)
	if tr == nil {
		j, err = o.judge.Judge(ctx, call)
		return j, false, err
	}

	o.billing.Lock()
	defer o.billing.Unlock()

	if tr.Status().IsExceeded {
		return nil, true, quotaError(t)
	}
	j, err = o.judge.Judge(ctx, call)
	if err != nil {
		return nil, false, err
	}
	st := tr.RecordUsage()
	if st.IsWarning {
		logger.FromContext(ctx, o.logger).Warn("quota_warning",
			slog.String("provider", st.Key.Provider),
			slog.Int("used", st.Used),
			slog.Int("limit", st.Limit))
	}
	return j, false, nil
}

// fail records cause on the document and returns the updated record.
func (o *Orchestrator) fail(ctx context.Context, pdfID string, cause error) (*document.Record, error) {
	logger.FromContext(ctx, o.logger).Error("analysis_failed", slog.String("error", cause.Error()))
	if err := o.store.FailAnalysis(ctx, pdfID, apperr.PublicMessage(cause)); err != nil {
		return nil, err
	}
	metrics.RecordAnalysis(string(document.StatusError))
	return o.store.GetRecord(ctx, pdfID)
}

// abandon handles a store write that failed mid-analysis. The record is moved
// to error when the store allows it so it can be re-triggered. cause is
// returned.
func (o *Orchestrator) abandon(ctx context.Context, pdfID string, cause error) error {
	log := logger.FromContext(ctx, o.logger)
	log.Error("analysis_failed", slog.String("error", cause.Error()))
	if err := o.store.FailAnalysis(ctx, pdfID, apperr.PublicMessage(cause)); err != nil {
		log.Error("analysis_state_stuck", slog.String("error", err.Error()))
		return cause
	}
	metrics.RecordAnalysis(string(document.StatusError))
	return cause
}
