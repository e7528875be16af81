package quota

import (
	"fmt"
	"sort"
	"sync"

	"github.com/matsen/firstrecord/internal/apperr"
)

// ErrUnknownTracker is returned when no tracker exists for a provider.
var ErrUnknownTracker = fmt.Errorf("%w: no quota tracker for provider", apperr.ErrValidation)

// Registry holds the process-wide trackers, one per metered provider.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Add registers t under its provider, replacing any earlier tracker.
func (r *Registry) Add(t *Tracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[t.Key().Provider] = t
}

// Get returns the tracker for provider.
func (r *Registry) Get(provider string) (*Tracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trackers[provider]
	return t, ok
}

// Statuses returns every tracker's status ordered by provider.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	providers := make([]string, 0, len(r.trackers))
	for p := range r.trackers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	sort.Strings(providers)
	out := make([]Status, 0, len(providers))
	for _, p := range providers {
		if t, ok := r.Get(p); ok {
			out = append(out, t.Status())
		}
	}
	return out
}

// Reset resets the tracker for provider.
func (r *Registry) Reset(provider string) (Status, error) {
	t, ok := r.Get(provider)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownTracker, provider)
	}
	return t.Reset()
}
