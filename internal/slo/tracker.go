// Package slo implements the SLO Tracker (spec §4.7): per-SLO error-budget
// accounting over resetting windows.
package slo

import (
	"fmt"
	"sync"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

// entry pairs an SLO's accounting state with its window start time.
type entry struct {
	slo         domain.SLO
	windowStart time.Time
}

// Tracker maintains per-SLO windows behind a single mutex, matching the
// process-wide single-writer discipline spec §5 asks of shared core state.
// Subscribed to the Event Bus by callers that translate domain events (e.g.
// deployment outcomes) into Record calls.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New constructs an empty Tracker. now defaults to time.Now if nil — tests
// can override it to control window rollover deterministically.
func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{entries: map[string]*entry{}, now: now}
}

// Register adds an SLO definition to track, seeded with zero counters.
func (t *Tracker) Register(target domain.SLO) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[target.Name] = &entry{slo: target, windowStart: t.now()}
}

// Record applies a single observation to sloName's window, resetting the
// window first if it has elapsed. This is a fixed window, not sliding — spec
// §4.7 marks that an intentional simplicity tradeoff; a sliding-window
// implementation could offer the same Tracker methods as an extension.
func (t *Tracker) Record(sloName string, ok bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, found := t.entries[sloName]
	if !found {
		return fmt.Errorf("%w: unknown slo %q", domain.ErrValidation, sloName)
	}

	now := t.now()
	if now.Sub(e.windowStart) > time.Duration(e.slo.WindowSeconds)*time.Second {
		e.slo = e.slo.Reset()
		e.windowStart = now
	}
	e.slo = e.slo.Observe(ok)
	return nil
}

// Snapshot returns the current SLO accounting state for sloName.
func (t *Tracker) Snapshot(sloName string) (domain.SLO, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, found := t.entries[sloName]
	if !found {
		return domain.SLO{}, fmt.Errorf("%w: unknown slo %q", domain.ErrValidation, sloName)
	}
	return e.slo, nil
}

// Violated reports whether sloName's current window has exceeded its error
// budget.
func (t *Tracker) Violated(sloName string) (bool, error) {
	s, err := t.Snapshot(sloName)
	if err != nil {
		return false, err
	}
	return s.Violated(), nil
}

// BudgetConsumed reports the fraction of sloName's error budget spent so far.
func (t *Tracker) BudgetConsumed(sloName string) (float64, error) {
	s, err := t.Snapshot(sloName)
	if err != nil {
		return 0, err
	}
	return s.BudgetConsumed(), nil
}
