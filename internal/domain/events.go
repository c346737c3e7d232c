package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags a DomainEvent variant for Event Bus dispatch.
type EventType string

const (
	EventDeploymentStarted    EventType = "deployment.started"
	EventBuildCompleted       EventType = "deployment.build_completed"
	EventDeploymentCompleted  EventType = "deployment.completed"
	EventDeploymentFailed     EventType = "deployment.failed"
	EventDeploymentRolledBack EventType = "deployment.rolled_back"

	EventPlaybookSkipped   EventType = "playbook.skipped"
	EventPlaybookCompleted EventType = "playbook.completed"
	EventPlaybookFailed    EventType = "playbook.failed"
	EventPlaybookRolledBack EventType = "playbook.rolled_back"

	EventHealingSkipped EventType = "healing.skipped"
)

// DomainEvent is the tagged-union contract every published event satisfies.
// Concrete payload types are never mutated after construction.
type DomainEvent interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
}

// BaseEvent carries the fields common to every DomainEvent variant. Embed it
// in payload structs rather than duplicating ID/type/timestamp bookkeeping.
type BaseEvent struct {
	ID   string
	Type EventType
	At   time.Time
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{ID: uuid.NewString(), Type: t, At: time.Now().UTC()}
}

func (b BaseEvent) EventID() string        { return b.ID }
func (b BaseEvent) EventType() EventType    { return b.Type }
func (b BaseEvent) OccurredAt() time.Time  { return b.At }

// DeploymentStartedEvent fires when a Deployment transitions PENDING → BUILDING.
type DeploymentStartedEvent struct {
	BaseEvent
	SessionID  string
	ConfigPath string
}

// NewDeploymentStartedEvent constructs the event with a fresh id/timestamp.
func NewDeploymentStartedEvent(sessionID, configPath string) DeploymentStartedEvent {
	return DeploymentStartedEvent{BaseEvent: newBase(EventDeploymentStarted), SessionID: sessionID, ConfigPath: configPath}
}

// BuildCompletedEvent fires when a Deployment transitions BUILDING → BUILT.
type BuildCompletedEvent struct {
	BaseEvent
	SessionID   string
	Fingerprint string
}

func NewBuildCompletedEvent(sessionID, fingerprint string) BuildCompletedEvent {
	return BuildCompletedEvent{BaseEvent: newBase(EventBuildCompleted), SessionID: sessionID, Fingerprint: fingerprint}
}

// DeploymentCompletedEvent fires when a Deployment reaches COMPLETED.
type DeploymentCompletedEvent struct {
	BaseEvent
	SessionID string
	Succeeded []string // node ids
	Failed    []string // node ids
}

func NewDeploymentCompletedEvent(sessionID string, succeeded, failed []string) DeploymentCompletedEvent {
	return DeploymentCompletedEvent{BaseEvent: newBase(EventDeploymentCompleted), SessionID: sessionID, Succeeded: succeeded, Failed: failed}
}

// DeploymentFailedEvent fires when a Deployment reaches FAILED.
type DeploymentFailedEvent struct {
	BaseEvent
	SessionID string
	Reason    string
}

func NewDeploymentFailedEvent(sessionID, reason string) DeploymentFailedEvent {
	return DeploymentFailedEvent{BaseEvent: newBase(EventDeploymentFailed), SessionID: sessionID, Reason: reason}
}

// DeploymentRolledBackEvent fires per node when a rollback completes.
type DeploymentRolledBackEvent struct {
	BaseEvent
	NodeID     string
	Generation int
	OK         bool
	Reason     string
}

func NewDeploymentRolledBackEvent(nodeID string, generation int, ok bool, reason string) DeploymentRolledBackEvent {
	return DeploymentRolledBackEvent{BaseEvent: newBase(EventDeploymentRolledBack), NodeID: nodeID, Generation: generation, OK: ok, Reason: reason}
}

// PlaybookSkippedEvent fires when preconditions fail.
type PlaybookSkippedEvent struct {
	BaseEvent
	PlaybookID string
	Reason     string
}

func NewPlaybookSkippedEvent(playbookID, reason string) PlaybookSkippedEvent {
	return PlaybookSkippedEvent{BaseEvent: newBase(EventPlaybookSkipped), PlaybookID: playbookID, Reason: reason}
}

// PlaybookCompletedEvent fires when every step ran without entering rollback.
type PlaybookCompletedEvent struct {
	BaseEvent
	PlaybookID string
	Results    []StepResult
}

func NewPlaybookCompletedEvent(playbookID string, results []StepResult) PlaybookCompletedEvent {
	return PlaybookCompletedEvent{BaseEvent: newBase(EventPlaybookCompleted), PlaybookID: playbookID, Results: results}
}

// PlaybookFailedEvent fires when a step fails without continueOnFailure and
// rollback (if any) has been attempted.
type PlaybookFailedEvent struct {
	BaseEvent
	PlaybookID string
	Results    []StepResult
	FailedStep string
}

func NewPlaybookFailedEvent(playbookID, failedStep string, results []StepResult) PlaybookFailedEvent {
	return PlaybookFailedEvent{BaseEvent: newBase(EventPlaybookFailed), PlaybookID: playbookID, Results: results, FailedStep: failedStep}
}

// PlaybookRolledBackEvent fires once the rollback walk completes.
type PlaybookRolledBackEvent struct {
	BaseEvent
	PlaybookID   string
	RolledBackIDs []string
	Errors        map[string]string
}

func NewPlaybookRolledBackEvent(playbookID string, rolledBackIDs []string, errs map[string]string) PlaybookRolledBackEvent {
	return PlaybookRolledBackEvent{BaseEvent: newBase(EventPlaybookRolledBack), PlaybookID: playbookID, RolledBackIDs: rolledBackIDs, Errors: errs}
}

// HealingSkippedEvent fires when the Autonomous Loop can't proceed with
// remediation because authorization was denied.
type HealingSkippedEvent struct {
	BaseEvent
	Reason string
}

func NewHealingSkippedEvent(reason string) HealingSkippedEvent {
	return HealingSkippedEvent{BaseEvent: newBase(EventHealingSkipped), Reason: reason}
}
