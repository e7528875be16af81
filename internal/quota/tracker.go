// Package quota tracks free-tier LLM usage against a daily limit.
//
// A Tracker holds no timer. Every read and write first applies any reset
// that is due, so status is always current and day boundaries are testable
// with an injected clock.
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/metrics"
)

const (
	// DefaultWarningRatio is the used/limit ratio at which status warns.
	DefaultWarningRatio = 0.8

	day = 24 * time.Hour
)

// ErrResetDisabled is returned by Reset when administrative resets are off.
var ErrResetDisabled = fmt.Errorf("%w: quota reset is disabled in production", apperr.ErrValidation)

// Key identifies the metered call class a tracker counts.
type Key struct {
	Provider string `json:"provider"`
	Class    string `json:"class"`
}

// FreeTier returns the key for a provider's free-tier class.
func FreeTier(provider string) Key {
	return Key{Provider: provider, Class: "free_tier"}
}

// Config holds the limits of one tracker.
type Config struct {
	Limit        int
	WarningRatio float64
	// ResetOffset shifts the daily boundary from 00:00 UTC.
	ResetOffset time.Duration
}

// Status is a snapshot of a tracker with derived fields.
type Status struct {
	Key          Key       `json:"key"`
	Used         int       `json:"used"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetsAt     time.Time `json:"resetsAt"`
	WarningRatio float64   `json:"warningThresholdRatio"`
	IsWarning    bool      `json:"isWarning"`
	IsExceeded   bool      `json:"isExceeded"`
}

// Tracker counts billable calls for one Key.
type Tracker struct {
	key          Key
	limit        int
	warningRatio float64
	offset       time.Duration
	now          func() time.Time
	allowReset   bool

	mu       sync.Mutex
	used     int
	resetsAt time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithAdminReset enables or disables Reset.
func WithAdminReset(enabled bool) Option {
	return func(t *Tracker) {
		t.allowReset = enabled
	}
}

// NewTracker creates a tracker whose first window ends at the next daily
// boundary after the current time.
func NewTracker(key Key, cfg Config, opts ...Option) (*Tracker, error) {
	if cfg.Limit <= 0 {
		return nil, errors.New("quota limit must be positive")
	}
	if cfg.WarningRatio == 0 {
		cfg.WarningRatio = DefaultWarningRatio
	}
	if cfg.WarningRatio <= 0 || cfg.WarningRatio >= 1 {
		return nil, fmt.Errorf("warning ratio must be in (0,1), got %v", cfg.WarningRatio)
	}
	if cfg.ResetOffset < 0 || cfg.ResetOffset >= day {
		return nil, fmt.Errorf("reset offset must be within one day, got %v", cfg.ResetOffset)
	}

	t := &Tracker{
		key:          key,
		limit:        cfg.Limit,
		warningRatio: cfg.WarningRatio,
		offset:       cfg.ResetOffset,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.resetsAt = NextBoundary(t.now(), t.offset)
	return t, nil
}

// NextBoundary returns the first daily boundary (00:00 UTC + offset)
// strictly after now.
func NextBoundary(now time.Time, offset time.Duration) time.Time {
	now = now.UTC()
	b := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(offset)
	for !b.After(now) {
		b = b.Add(day)
	}
	return b
}

// Key returns the call class this tracker counts.
func (t *Tracker) Key() Key {
	return t.key
}

// applyResetLocked zeroes usage for every boundary crossed since the last
// access. Callers hold t.mu.
func (t *Tracker) applyResetLocked() {
	now := t.now()
	if now.Before(t.resetsAt) {
		return
	}
	t.used = 0
	for !now.Before(t.resetsAt) {
		t.resetsAt = t.resetsAt.Add(day)
	}
	metrics.SetQuotaUsed(t.key.Provider, 0)
}

func (t *Tracker) statusLocked() Status {
	remaining := t.limit - t.used
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Key:          t.key,
		Used:         t.used,
		Limit:        t.limit,
		Remaining:    remaining,
		ResetsAt:     t.resetsAt,
		WarningRatio: t.warningRatio,
		IsWarning:    float64(t.used)/float64(t.limit) >= t.warningRatio,
		IsExceeded:   t.used >= t.limit,
	}
}

// RecordUsage counts one successful billable call. Call it exactly once per
// call, after the provider responded.
func (t *Tracker) RecordUsage() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyResetLocked()
	t.used++
	metrics.SetQuotaUsed(t.key.Provider, t.used)
	return t.statusLocked()
}

// Status returns the current state after applying any due reset.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyResetLocked()
	return t.statusLocked()
}

// Reset zeroes usage immediately without moving the window boundary.
func (t *Tracker) Reset() (Status, error) {
	if !t.allowReset {
		return Status{}, ErrResetDisabled
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyResetLocked()
	t.used = 0
	metrics.SetQuotaUsed(t.key.Provider, 0)
	return t.statusLocked(), nil
}
