package sqliterepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// DefaultMaxQueueSize bounds the outbox the same way the teacher's offline
// queue does, to keep an indefinitely-partitioned agent from growing an
// unbounded on-disk queue.
const DefaultMaxQueueSize = 10000

type queuedHealthReport struct {
	NodeID  string `json:"node_id"`
	Healthy bool   `json:"healthy"`
}

// OutboxOrchestrator decorates an OrchestratorPort so that ReportHealth calls
// made while the fleet-wide orchestrator is unreachable are buffered in
// SQLite instead of dropped, and flushed in order once the wrapped port
// starts succeeding again. Adapted from the teacher's
// agent/internal/transport/offline.go WAL-backed queue, reworked to replay
// through ports.OrchestratorPort instead of a gRPC DriftEvent wire type.
type OutboxOrchestrator struct {
	inner   ports.OrchestratorPort
	store   *Store
	maxSize int
}

// NewOutboxOrchestrator wraps inner with offline buffering backed by store.
func NewOutboxOrchestrator(inner ports.OrchestratorPort, store *Store) *OutboxOrchestrator {
	return &OutboxOrchestrator{inner: inner, store: store, maxSize: DefaultMaxQueueSize}
}

func (o *OutboxOrchestrator) ReportHealth(ctx context.Context, node domain.Node, healthy bool) error {
	if err := o.flush(ctx); err != nil {
		log.Printf("[outbox] flush before send failed: %v", err)
	}

	if err := o.inner.ReportHealth(ctx, node, healthy); err != nil {
		if qerr := o.enqueue(ctx, node.ID(), healthy); qerr != nil {
			return fmt.Errorf("report health failed (%v) and enqueue failed: %w", err, qerr)
		}
		return nil
	}
	return nil
}

func (o *OutboxOrchestrator) ReportDrift(ctx context.Context, report domain.DriftReport) error {
	return o.inner.ReportDrift(ctx, report)
}

func (o *OutboxOrchestrator) FetchHealingCommand(ctx context.Context, node domain.Node) (domain.RemediationAction, bool, error) {
	return o.inner.FetchHealingCommand(ctx, node)
}

func (o *OutboxOrchestrator) AcknowledgeHealing(ctx context.Context, node domain.Node, action domain.RemediationAction) error {
	return o.inner.AcknowledgeHealing(ctx, node, action)
}

func (o *OutboxOrchestrator) enqueue(ctx context.Context, nodeID string, healthy bool) error {
	if err := o.enforceLimit(ctx); err != nil {
		log.Printf("[outbox] enforce limit: %v", err)
	}

	payload, err := json.Marshal(queuedHealthReport{NodeID: nodeID, Healthy: healthy})
	if err != nil {
		return fmt.Errorf("marshal queued report: %w", err)
	}
	_, err = o.store.db.ExecContext(ctx,
		`INSERT INTO health_report_outbox (payload, created_at) VALUES (?, ?)`,
		payload, time.Now().UTC())
	return err
}

func (o *OutboxOrchestrator) enforceLimit(ctx context.Context) error {
	var count int
	row := o.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_report_outbox`)
	if err := row.Scan(&count); err != nil {
		return err
	}
	if count < o.maxSize {
		return nil
	}
	toDelete := o.maxSize / 10
	if toDelete < 1 {
		toDelete = 1
	}
	_, err := o.store.db.ExecContext(ctx, `
		DELETE FROM health_report_outbox WHERE id IN (
			SELECT id FROM health_report_outbox ORDER BY created_at ASC LIMIT ?
		)
	`, toDelete)
	return err
}

// flush replays every buffered report through inner, stopping at the first
// failure so ordering is preserved and the rest stay queued for next time.
func (o *OutboxOrchestrator) flush(ctx context.Context) error {
	for {
		id, payload, ok, err := o.peek(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var rep queuedHealthReport
		if err := json.Unmarshal(payload, &rep); err != nil {
			log.Printf("[outbox] dropping unreadable queued report id=%d: %v", id, err)
			if err := o.delete(ctx, id); err != nil {
				return err
			}
			continue
		}

		node, err := domain.ParseNode(rep.NodeID)
		if err != nil {
			log.Printf("[outbox] dropping queued report with unparseable node %q: %v", rep.NodeID, err)
			if err := o.delete(ctx, id); err != nil {
				return err
			}
			continue
		}

		if err := o.inner.ReportHealth(ctx, node, rep.Healthy); err != nil {
			return fmt.Errorf("flush stopped, orchestrator still unreachable: %w", err)
		}
		if err := o.delete(ctx, id); err != nil {
			return err
		}
	}
}

func (o *OutboxOrchestrator) peek(ctx context.Context) (int64, []byte, bool, error) {
	row := o.store.db.QueryRowContext(ctx, `
		SELECT id, payload FROM health_report_outbox ORDER BY created_at ASC LIMIT 1
	`)
	var id int64
	var payload []byte
	if err := row.Scan(&id, &payload); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, false, nil
		}
		return 0, nil, false, err
	}
	return id, payload, true, nil
}

func (o *OutboxOrchestrator) delete(ctx context.Context, id int64) error {
	_, err := o.store.db.ExecContext(ctx, `DELETE FROM health_report_outbox WHERE id = ?`, id)
	return err
}

// Count returns the number of reports currently buffered.
func (o *OutboxOrchestrator) Count(ctx context.Context) (int, error) {
	var count int
	row := o.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_report_outbox`)
	err := row.Scan(&count)
	return count, err
}
