// Package rollback implements the Rollback use case (spec §4.9): fan out
// RemoteExecutorPort.Rollback across targets concurrently, tolerating
// per-node failure, and report a per-node outcome.
package rollback

import (
	"context"
	"sync"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// NodeOutcome is one target's rollback result.
type NodeOutcome struct {
	Node   domain.Node
	OK     bool
	Reason string
}

// Rollback implements the use case over a RemoteExecutorPort and EventBusPort.
type Rollback struct {
	remote ports.RemoteExecutorPort
	bus    ports.EventBusPort
}

// New constructs a Rollback use case.
func New(remote ports.RemoteExecutorPort, bus ports.EventBusPort) *Rollback {
	return &Rollback{remote: remote, bus: bus}
}

// Execute rolls targets back to generation (nil means "the prior
// generation", left to the RemoteExecutorPort to resolve). Every target
// gets an entry in the returned map regardless of failure elsewhere —
// one node's rollback failure never aborts another's.
func (r *Rollback) Execute(ctx context.Context, targets []domain.Node, generation *int) map[string]NodeOutcome {
	outcomes := make(map[string]NodeOutcome, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(targets))

	for _, n := range targets {
		n := n
		go func() {
			defer wg.Done()
			err := r.remote.Rollback(ctx, n, generation)

			gen := 0
			if generation != nil {
				gen = *generation
			}
			ev := domain.NewDeploymentRolledBackEvent(n.ID(), gen, err == nil, reasonOf(err))

			mu.Lock()
			if err != nil {
				outcomes[n.ID()] = NodeOutcome{Node: n, OK: false, Reason: err.Error()}
			} else {
				outcomes[n.ID()] = NodeOutcome{Node: n, OK: true}
			}
			mu.Unlock()

			r.bus.Publish(ctx, ev)
		}()
	}
	wg.Wait()
	return outcomes
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
