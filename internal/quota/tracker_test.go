package quota

import (
	"errors"
	"testing"
	"time"

	"github.com/matsen/firstrecord/internal/apperr"
)

// fakeClock is a settable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T, limit int, clock *fakeClock, opts ...Option) *Tracker {
	t.Helper()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	tr, err := NewTracker(FreeTier("gemini"), Config{Limit: limit, WarningRatio: 0.8}, opts...)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	return tr
}

func TestNextBoundary(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		offset time.Duration
		want   time.Time
	}{
		{
			name: "mid day",
			now:  time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on boundary is not strictly after",
			now:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "offset later today",
			now:    time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC),
			offset: 8 * time.Hour,
			want:   time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			name: "non-UTC input",
			now:  time.Date(2026, 3, 10, 23, 30, 0, 0, time.FixedZone("KST", 9*3600)),
			want: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextBoundary(tt.now, tt.offset)
			if !got.Equal(tt.want) {
				t.Errorf("NextBoundary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_RecordUsageMonotonic(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 10, clock)

	prev := 0
	for i := 1; i <= 7; i++ {
		clock.Advance(time.Minute)
		st := tr.RecordUsage()
		if st.Used < prev {
			t.Fatalf("used decreased from %d to %d", prev, st.Used)
		}
		prev = st.Used
	}
	if got := tr.Status().Used; got != 7 {
		t.Errorf("Used = %d, want 7", got)
	}
}

func TestTracker_ExceededAtLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 5, clock)

	for i := 0; i < 5; i++ {
		tr.RecordUsage()
	}
	st := tr.Status()
	if !st.IsExceeded {
		t.Error("IsExceeded = false, want true")
	}
	if st.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", st.Remaining)
	}
	if !st.IsWarning {
		t.Error("IsWarning = false at limit")
	}
}

func TestTracker_Warning(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 10, clock)

	for i := 0; i < 7; i++ {
		tr.RecordUsage()
	}
	if tr.Status().IsWarning {
		t.Error("IsWarning = true at 70%")
	}
	tr.RecordUsage()
	if !tr.Status().IsWarning {
		t.Error("IsWarning = false at 80%")
	}
}

func TestTracker_LazyResetOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 3, clock)

	for i := 0; i < 3; i++ {
		tr.RecordUsage()
	}
	clock.Advance(2 * time.Hour)

	st := tr.Status()
	if st.Used != 0 {
		t.Errorf("Used = %d after boundary, want 0", st.Used)
	}
	if !st.ResetsAt.After(clock.Now()) {
		t.Errorf("ResetsAt %v not after now %v", st.ResetsAt, clock.Now())
	}
	want := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	if !st.ResetsAt.Equal(want) {
		t.Errorf("ResetsAt = %v, want %v", st.ResetsAt, want)
	}
}

func TestTracker_ResetSpansIdleDays(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 3, clock)
	tr.RecordUsage()

	clock.Advance(5*24*time.Hour + 3*time.Hour)
	st := tr.RecordUsage()
	if st.Used != 1 {
		t.Errorf("Used = %d, want 1 after reset and one call", st.Used)
	}
	want := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if !st.ResetsAt.Equal(want) {
		t.Errorf("ResetsAt = %v, want %v", st.ResetsAt, want)
	}
}

func TestTracker_ResetExactlyAtBoundary(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	tr := newTestTracker(t, 3, clock)
	tr.RecordUsage()

	clock.t = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	st := tr.Status()
	if st.Used != 0 {
		t.Errorf("Used = %d at boundary, want 0", st.Used)
	}
	if !st.ResetsAt.After(clock.Now()) {
		t.Errorf("ResetsAt %v should be strictly after %v", st.ResetsAt, clock.Now())
	}
}

func TestTracker_AdminReset(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}

	disabled := newTestTracker(t, 3, clock)
	disabled.RecordUsage()
	if _, err := disabled.Reset(); !errors.Is(err, ErrResetDisabled) {
		t.Fatalf("Reset() error = %v, want ErrResetDisabled", err)
	}
	if disabled.Status().Used != 1 {
		t.Error("disabled reset must not change usage")
	}

	enabled := newTestTracker(t, 3, clock, WithAdminReset(true))
	enabled.RecordUsage()
	enabled.RecordUsage()
	before := enabled.Status().ResetsAt
	st, err := enabled.Reset()
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if st.Used != 0 {
		t.Errorf("Used = %d after reset, want 0", st.Used)
	}
	if !st.ResetsAt.Equal(before) {
		t.Errorf("ResetsAt moved from %v to %v", before, st.ResetsAt)
	}
}

func TestNewTracker_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero limit", Config{Limit: 0}},
		{"ratio one", Config{Limit: 10, WarningRatio: 1}},
		{"negative ratio", Config{Limit: 10, WarningRatio: -0.5}},
		{"offset too large", Config{Limit: 10, ResetOffset: 25 * time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTracker(FreeTier("gemini"), tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry()
	r.Add(newTestTracker(t, 3, clock, WithAdminReset(true)))

	if _, ok := r.Get("gemini"); !ok {
		t.Fatal("gemini tracker missing")
	}
	if _, ok := r.Get("ollama"); ok {
		t.Error("ollama should not be metered")
	}
	if got := len(r.Statuses()); got != 1 {
		t.Errorf("len(Statuses()) = %d, want 1", got)
	}
	if _, err := r.Reset("ollama"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Reset(unknown) error = %v, want validation error", err)
	}
}
