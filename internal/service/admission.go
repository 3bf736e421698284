package service

import (
	"context"
	"sync"
	"time"

	"github.com/peppermint/listing-service/internal/platform/clock"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Granted   bool
	Remaining int
}

// AdmissionControl gates listing creation per actor key. Implementations
// count a sliding window; a denied request never consumes a slot.
type AdmissionControl interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const (
	DefaultAdmissionLimit  = 3
	DefaultAdmissionWindow = 30 * time.Second
)

// memoryAdmission is a per-process sliding-window limiter. It backs tests and
// serves as the fallback policy when no shared store is configured; the
// redis adapter provides the cross-instance implementation.
type memoryAdmission struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemoryAdmission(limit int, window time.Duration, clk clock.Clock) AdmissionControl {
	if limit <= 0 {
		limit = DefaultAdmissionLimit
	}
	if window <= 0 {
		window = DefaultAdmissionWindow
	}
	return &memoryAdmission{
		limit:   limit,
		window:  window,
		clock:   clk,
		entries: make(map[string][]time.Time),
	}
}

func (a *memoryAdmission) Allow(_ context.Context, key string) (Decision, error) {
	now := a.clock.Now()
	cutoff := now.Add(-a.window)

	a.mu.Lock()
	defer a.mu.Unlock()

	// The window is closed-open: an event exactly at the cutoff has aged out.
	kept := a.entries[key][:0]
	for _, t := range a.entries[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= a.limit {
		a.entries[key] = kept
		return Decision{Granted: false, Remaining: 0}, nil
	}

	kept = append(kept, now)
	a.entries[key] = kept
	return Decision{Granted: true, Remaining: a.limit - len(kept)}, nil
}
