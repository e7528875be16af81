package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/document"
	"github.com/matsen/firstrecord/internal/llm"
	"github.com/matsen/firstrecord/internal/logger"
)

// Batch item outcomes.
const (
	OutcomeCompleted     = "completed"
	OutcomeError         = "error"
	OutcomeQuotaExceeded = "quota_exceeded"
	OutcomeSkipped       = "skipped"
)

// BatchRequest analyzes every pending document. The optional fallback is
// used once a billable primary runs out of quota and must not be billable
// itself.
type BatchRequest struct {
	Request
	FallbackProvider llm.ProviderID `json:"fallbackProvider,omitempty"`
	FallbackModel    string         `json:"fallbackModel,omitempty"`
}

// BatchItem is the outcome for one document.
type BatchItem struct {
	PDFID    string `json:"pdfId"`
	Outcome  string `json:"outcome"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BatchSummary reports a batch in input order.
type BatchSummary struct {
	Total         int         `json:"total"`
	Completed     int         `json:"completed"`
	Failed        int         `json:"failed"`
	QuotaExceeded int         `json:"quotaExceeded"`
	Skipped       int         `json:"skipped"`
	Items         []BatchItem `json:"items"`
}

func (s *BatchSummary) add(item BatchItem) {
	s.Items = append(s.Items, item)
	switch item.Outcome {
	case OutcomeCompleted:
		s.Completed++
	case OutcomeError:
		s.Failed++
	case OutcomeQuotaExceeded:
		s.QuotaExceeded++
	default:
		s.Skipped++
	}
}

// AnalyzeAll analyzes pending documents one at a time through a single
// worker. A failed document does not stop the batch. Once the primary
// target's quota is exceeded, remaining documents go to the fallback if one
// is set, and are otherwise left pending with outcome quota_exceeded. When
// ctx is cancelled no new document is started and the rest are skipped.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, req BatchRequest) (*BatchSummary, error) {
	if err := validateRequest(req.Request); err != nil {
		return nil, err
	}
	primary, err := o.resolve(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}
	var fallback *target
	if req.FallbackProvider != "" {
		fb, err := o.resolve(req.FallbackProvider, req.FallbackModel)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		if fb.billable() {
			return nil, fmt.Errorf("%w: fallback %s/%s is metered", apperr.ErrValidation, fb.provider.ID, fb.model)
		}
		fallback = &fb
	}

	ids, err := o.store.ListByStatus(ctx, document.StatusPending)
	if err != nil {
		return nil, err
	}

	queue := make(chan string, len(ids))
	for _, id := range ids {
		queue <- id
	}
	close(queue)

	summary := &BatchSummary{Total: len(ids), Items: make([]BatchItem, 0, len(ids))}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for id := range queue {
			summary.add(o.batchItem(ctx, id, req.Request, primary, fallback))
		}
	}()
	<-done

	o.logger.Info("batch_completed",
		slog.Int("total", summary.Total),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed),
		slog.Int("quota_exceeded", summary.QuotaExceeded),
		slog.Int("skipped", summary.Skipped))
	return summary, nil
}

func (o *Orchestrator) batchItem(ctx context.Context, pdfID string, req Request, primary target, fallback *target) BatchItem {
	item := BatchItem{PDFID: pdfID}
	if ctx.Err() != nil {
		item.Outcome = OutcomeSkipped
		item.Error = "batch cancelled"
		return item
	}

	t := primary
	if o.exceeded(t) {
		if fallback == nil {
			item.Outcome = OutcomeQuotaExceeded
			item.Provider, item.Model = string(t.provider.ID), t.model
			return item
		}
		logger.FromContext(logger.WithPDFID(ctx, pdfID), o.logger).Info("batch_fallback",
			slog.String("provider", string(fallback.provider.ID)),
			slog.String("model", fallback.model))
		t = *fallback
	}
	item.Provider, item.Model = string(t.provider.ID), t.model

	rec, err := o.trigger(ctx, pdfID, req, t)
	switch {
	case errors.Is(err, apperr.ErrQuotaExceeded):
		item.Outcome = OutcomeQuotaExceeded
		item.Error = err.Error()
	case errors.Is(err, document.ErrAlreadyAnalyzing):
		item.Outcome = OutcomeSkipped
		item.Error = err.Error()
	case err != nil:
		item.Outcome = OutcomeError
		item.Error = apperr.PublicMessage(err)
	case rec.Status == document.StatusCompleted:
		item.Outcome = OutcomeCompleted
	default:
		item.Outcome = OutcomeError
		item.Error = rec.ErrorMessage
	}
	return item
}
