// Package ports declares the eight capability interfaces the Chimera core
// consumes — the boundary to external collaborators (build tool, session
// host, remote-exec transport, cloud discovery, orchestrator RPC, incident
// tracker, alert sink) and the one in-process coordination primitive (the
// event bus). The core depends only on these interfaces; concrete
// implementations live under internal/adapters and are injected at
// composition-root construction time (cmd/chimera). No ambient registries.
package ports

import (
	"context"

	"github.com/chimerahq/chimera/internal/domain"
)

// BuildPort turns a declarative configuration path into a fingerprint and
// can materialize or describe the resulting closure. Implemented externally
// (out of core scope); the core only calls through this interface.
type BuildPort interface {
	// Build resolves path to a content-addressed Fingerprint.
	Build(ctx context.Context, path domain.ConfigPath) (domain.Fingerprint, error)
	// Instantiate materializes the closure for path on disk and returns its
	// derivation path.
	Instantiate(ctx context.Context, path domain.ConfigPath) (string, error)
	// Shell resolves the effective command to run inside path's environment.
	Shell(ctx context.Context, path domain.ConfigPath, cmd string) (string, error)
}

// SessionPort manages persistent, named command sessions on a node.
type SessionPort interface {
	Create(ctx context.Context, id domain.SessionId) (bool, error)
	List(ctx context.Context) ([]domain.SessionId, error)
	Kill(ctx context.Context, id domain.SessionId) (bool, error)
	Run(ctx context.Context, id domain.SessionId, cmd string) (bool, error)
	// Attach returns the command a caller should exec locally to attach to
	// the session (e.g. an ssh invocation); the core never execs it itself.
	Attach(ctx context.Context, id domain.SessionId) (string, error)
}

// RemoteExecutorPort copies closures to nodes and runs commands on them.
// Every method is per-node-or-better: callers fan out across nodes
// themselves and this port never partially fails a whole batch silently.
type RemoteExecutorPort interface {
	SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error
	Exec(ctx context.Context, node domain.Node, cmd string) error
	// CurrentFingerprint returns the node's actual fingerprint, or
	// (zero, false, nil) if the node could not be reached (an unreachable
	// node is not itself an error — it's surfaced via CongruenceReport).
	CurrentFingerprint(ctx context.Context, node domain.Node) (fp domain.Fingerprint, present bool, err error)
	// Rollback switches node to generation, or the previous generation when
	// generation is nil.
	Rollback(ctx context.Context, node domain.Node, generation *int) error
}

// CloudProviderPort discovers and manages nodes via a cloud provider API.
type CloudProviderPort interface {
	Discover(ctx context.Context, filters map[string]string) ([]domain.Node, error)
	Provision(ctx context.Context, name, instanceType, region string, opts map[string]string) (domain.Node, error)
	Decommission(ctx context.Context, node domain.Node) (bool, error)
	Metadata(ctx context.Context, node domain.Node) (map[string]string, error)
}

// EventBusPort is the in-process typed pub/sub coordination primitive (§4.1).
// publish blocks until every handler registered for each event's type has
// completed or failed; handler failures are logged and swallowed, never
// propagated to the publisher.
type EventBusPort interface {
	Publish(ctx context.Context, events ...domain.DomainEvent)
	Subscribe(eventType domain.EventType, handler EventHandler)
}

// EventHandler reacts to a single published DomainEvent. Handlers may
// suspend (call ports, sleep, etc.) but must not panic — panics are
// recovered and logged by the bus, not propagated.
type EventHandler func(ctx context.Context, event domain.DomainEvent) error

// OrchestratorPort exchanges health/drift/healing state with a fleet-wide
// orchestrator process.
type OrchestratorPort interface {
	ReportHealth(ctx context.Context, node domain.Node, healthy bool) error
	ReportDrift(ctx context.Context, report domain.DriftReport) error
	FetchHealingCommand(ctx context.Context, node domain.Node) (domain.RemediationAction, bool, error)
	AcknowledgeHealing(ctx context.Context, node domain.Node, action domain.RemediationAction) error
}

// ITSMPort integrates with an external incident tracker.
type ITSMPort interface {
	CreateIncident(ctx context.Context, title, desc string, severity domain.Severity, nodeID string) (ticketID string, err error)
	Update(ctx context.Context, ticketID, note string) error
	Resolve(ctx context.Context, ticketID, resolution string) error
	Get(ctx context.Context, ticketID string) (map[string]interface{}, error)
}

// NotificationPort dispatches human-facing alerts to a sink (Slack, email,
// pager, ...).
type NotificationPort interface {
	SendAlert(ctx context.Context, title, msg string, severity domain.Severity, nodeID string) error
	SendResolution(ctx context.Context, title, msg, nodeID string) error
}
