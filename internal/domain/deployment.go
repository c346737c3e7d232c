package domain

import (
	"fmt"
	"time"
)

// DeploymentStatus is one of the states in the Deployment lifecycle (spec §3).
type DeploymentStatus string

const (
	StatusPending    DeploymentStatus = "PENDING"
	StatusBuilding   DeploymentStatus = "BUILDING"
	StatusBuilt      DeploymentStatus = "BUILT"
	StatusDeploying  DeploymentStatus = "DEPLOYING"
	StatusCompleted  DeploymentStatus = "COMPLETED"
	StatusFailed     DeploymentStatus = "FAILED"
	StatusRolledBack DeploymentStatus = "ROLLED_BACK"
)

// legalNextStates encodes the transition diagram from spec §3. Any target
// status not present in the set for the current status is illegal.
var legalNextStates = map[DeploymentStatus]map[DeploymentStatus]bool{
	StatusPending:   {StatusBuilding: true},
	StatusBuilding:  {StatusBuilt: true, StatusFailed: true},
	StatusBuilt:     {StatusDeploying: true, StatusFailed: true},
	StatusDeploying: {StatusCompleted: true, StatusFailed: true},
	StatusFailed:    {StatusRolledBack: true},
}

// IsTerminal reports whether a status admits no further transitions, other
// than FAILED → ROLLED_BACK which is itself terminal.
func (s DeploymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Deployment is the aggregate root tracking a single deploy/heal operation's
// lifecycle. Every transition method returns a new Deployment value with the
// relevant event appended to Events; it never mutates the receiver.
type Deployment struct {
	SessionID    SessionId
	ConfigPath   ConfigPath
	Status       DeploymentStatus
	Fingerprint  Fingerprint
	ErrorMessage string
	CreatedAt    time.Time
	Events       []DomainEvent
}

// NewDeployment constructs a Deployment in PENDING status with no events.
func NewDeployment(sessionID SessionId, configPath ConfigPath) Deployment {
	return Deployment{
		SessionID:  sessionID,
		ConfigPath: configPath,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// transition validates and applies a status change, returning a new
// Deployment with ev appended. It never mutates d.
func (d Deployment) transition(next DeploymentStatus, ev DomainEvent) (Deployment, error) {
	if d.Status.IsTerminal() {
		return d, fmt.Errorf("%w: deployment %s is terminal at %s", ErrInvalidStateTransition, d.SessionID, d.Status)
	}
	allowed := legalNextStates[d.Status]
	if !allowed[next] {
		return d, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, d.Status, next)
	}

	out := d
	out.Status = next
	out.Events = append(append([]DomainEvent{}, d.Events...), ev)
	return out, nil
}

// Start transitions PENDING → BUILDING, appending DeploymentStarted.
func (d Deployment) Start() (Deployment, error) {
	ev := NewDeploymentStartedEvent(d.SessionID.String(), d.ConfigPath.String())
	return d.transition(StatusBuilding, ev)
}

// BuildSucceeded transitions BUILDING → BUILT, appending BuildCompleted.
func (d Deployment) BuildSucceeded(fp Fingerprint) (Deployment, error) {
	ev := NewBuildCompletedEvent(d.SessionID.String(), fp.String())
	next, err := d.transition(StatusBuilt, ev)
	if err != nil {
		return d, err
	}
	next.Fingerprint = fp
	return next, nil
}

// BeginDeploying transitions BUILT → DEPLOYING without an event of its own —
// per spec §3 only the five named transitions carry events; this one is an
// internal bookkeeping step inside Deploy Fleet (§4.8 step 3).
func (d Deployment) BeginDeploying() (Deployment, error) {
	if d.Status.IsTerminal() {
		return d, fmt.Errorf("%w: deployment %s is terminal at %s", ErrInvalidStateTransition, d.SessionID, d.Status)
	}
	allowed := legalNextStates[d.Status]
	if !allowed[StatusDeploying] {
		return d, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, d.Status, StatusDeploying)
	}
	out := d
	out.Status = StatusDeploying
	return out, nil
}

// Complete transitions DEPLOYING → COMPLETED, appending DeploymentCompleted.
func (d Deployment) Complete(succeeded, failed []string) (Deployment, error) {
	ev := NewDeploymentCompletedEvent(d.SessionID.String(), succeeded, failed)
	return d.transition(StatusCompleted, ev)
}

// Fail transitions the current non-terminal status to FAILED, appending
// DeploymentFailed. Legal from BUILDING, BUILT, or DEPLOYING.
func (d Deployment) Fail(reason string) (Deployment, error) {
	ev := NewDeploymentFailedEvent(d.SessionID.String(), reason)
	next, err := d.transition(StatusFailed, ev)
	if err != nil {
		return d, err
	}
	next.ErrorMessage = reason
	return next, nil
}

// RollBack transitions FAILED → ROLLED_BACK, appending DeploymentRolledBack.
func (d Deployment) RollBack(nodeID string, generation int) (Deployment, error) {
	ev := NewDeploymentRolledBackEvent(nodeID, generation, true, "")
	return d.transition(StatusRolledBack, ev)
}

// DrainEvents returns the accumulated events and a copy of d with an empty
// event list, mirroring the "drained and published by the invoking use case"
// contract from spec §3.
func (d Deployment) DrainEvents() (Deployment, []DomainEvent) {
	events := d.Events
	d.Events = nil
	return d, events
}
