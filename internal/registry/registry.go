// Package registry implements the Agent Registry (spec §4.11): the map of
// known nodes to their last heartbeat, last drift report, and derived
// health. It also satisfies internal/drift's History interface, so the
// same registry backs both fleet health and severity classification.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

// Health is a node's derived reachability state.
type Health string

const (
	HealthHealthy     Health = "HEALTHY"
	HealthUnreachable Health = "UNREACHABLE"
)

// entry is one node's registry state. consecutiveDrift counts unbroken
// recent drift observations; a congruent check resets it to 0 (a heartbeat
// leaves it unchanged).
type entry struct {
	lastHeartbeat   time.Time
	lastDrift       *domain.DriftReport
	production      bool
	consecutiveDrift int
}

// Registry tracks known nodes behind a single mutex.
type Registry struct {
	mu                sync.Mutex
	entries           map[string]*entry
	heartbeatInterval time.Duration
	now               func() time.Time
}

// New constructs a Registry. heartbeatInterval feeds the UNREACHABLE
// threshold (3x, per spec §4.11); now defaults to time.Now.
func New(heartbeatInterval time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		entries:           map[string]*entry{},
		heartbeatInterval: heartbeatInterval,
		now:               now,
	}
}

// Heartbeat records a liveness signal from node, tagging it as production
// workload or not. Call this from the checkin/orchestrator transport on
// every received heartbeat.
func (r *Registry) Heartbeat(node domain.Node, production bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryFor(node)
	e.lastHeartbeat = r.now()
	e.production = production
}

// RecordDrift updates a node's drift history. congruent resets the
// consecutive-drift counter; otherwise it increments and stores the report.
func (r *Registry) RecordDrift(node domain.Node, report *domain.DriftReport, congruent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryFor(node)
	if congruent {
		e.consecutiveDrift = 0
		e.lastDrift = nil
		return
	}
	e.consecutiveDrift++
	e.lastDrift = report
}

func (r *Registry) entryFor(node domain.Node) *entry {
	e, ok := r.entries[node.ID()]
	if !ok {
		e = &entry{}
		r.entries[node.ID()] = e
		log.Printf("[registry] tracking new node %s", node.ID())
	}
	return e
}

// Health reports node's current derived health. A node never heard from is
// reported UNREACHABLE.
func (r *Registry) Health(node domain.Node) Health {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[node.ID()]
	if !ok {
		return HealthUnreachable
	}
	if r.now().Sub(e.lastHeartbeat) > 3*r.heartbeatInterval {
		return HealthUnreachable
	}
	return HealthHealthy
}

// IsProduction satisfies internal/drift.History.
func (r *Registry) IsProduction(node domain.Node) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[node.ID()]
	return ok && e.production
}

// ConsecutiveDriftCount satisfies internal/drift.History.
func (r *Registry) ConsecutiveDriftCount(node domain.Node) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[node.ID()]
	if !ok {
		return 0
	}
	return e.consecutiveDrift
}

// LastDrift returns the most recently recorded drift report for node, if
// any.
func (r *Registry) LastDrift(node domain.Node) (domain.DriftReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[node.ID()]
	if !ok || e.lastDrift == nil {
		return domain.DriftReport{}, false
	}
	return *e.lastDrift, true
}

// Nodes returns every node the registry tracks, whether first seen by a
// heartbeat or by a drift record. Order is not guaranteed.
func (r *Registry) Nodes() []domain.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes := make([]domain.Node, 0, len(r.entries))
	for id := range r.entries {
		n, err := domain.ParseNode(id)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}
