// Package eventbus implements Chimera's in-process typed pub/sub (spec §4.1).
// It is a coordination primitive, not durable messaging: subscriptions are
// process-wide, there is no partitioning and no replay.
package eventbus

import (
	"context"
	"log"
	"sync"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// Bus is a process-wide subscription table guarded by a single mutex —
// mutations (Subscribe) and reads (the handler snapshot taken by Publish)
// both go through it, matching the single-writer discipline spec §5 asks
// of shared core state.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]ports.EventHandler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[domain.EventType][]ports.EventHandler)}
}

// Subscribe registers handler for eventType. Publish starts the handlers
// for a given type in registration order, but runs them concurrently, so
// the order in which they execute and finish is not defined.
func (b *Bus) Subscribe(eventType domain.EventType, handler ports.EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers each event, in order, to every handler registered for its
// type. Handlers for a single event run concurrently; Publish returns only
// after all of them (across all events) have completed or failed. A handler
// that panics is recovered and logged, exactly like one that returns an
// error — neither aborts delivery to siblings or to subsequent events.
func (b *Bus) Publish(ctx context.Context, events ...domain.DomainEvent) {
	for _, ev := range events {
		b.mu.RLock()
		hs := append([]ports.EventHandler{}, b.handlers[ev.EventType()]...)
		b.mu.RUnlock()

		if len(hs) == 0 {
			continue
		}

		var wg sync.WaitGroup
		wg.Add(len(hs))
		for _, h := range hs {
			h := h
			go func() {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[eventbus] handler for %s panicked: %v", ev.EventType(), r)
					}
				}()
				if err := h(ctx, ev); err != nil {
					log.Printf("[eventbus] handler for %s failed: %v", ev.EventType(), err)
				}
			}()
		}
		wg.Wait()
	}
}

var _ ports.EventBusPort = (*Bus)(nil)
