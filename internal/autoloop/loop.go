// Package autoloop implements the Autonomous Loop (spec §4.10): a periodic
// check -> plan -> authorize -> heal cycle that is cancellable at its sleep
// and at the check/execute boundary, mirroring the teacher daemon's
// driftscan-then-heal polling loop but built entirely on Chimera's ports and
// use cases rather than direct shell-outs.
package autoloop

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/drift"
	"github.com/chimerahq/chimera/internal/fleet"
	"github.com/chimerahq/chimera/internal/policy"
	"github.com/chimerahq/chimera/internal/ports"
	"github.com/chimerahq/chimera/internal/rollback"
)

// Params configures one Loop.Run invocation, per spec §4.10.
type Params struct {
	ConfigPath  domain.ConfigPath
	Targets     []domain.Node
	IntervalSeconds int
	SessionName string
	Once        bool
	Subject     domain.SubjectID

	// RestartCommand is what a RESTART_SERVICE healing action runs inside
	// each drifted node's session. RebuildCommand is what Deploy Fleet runs
	// after a REBUILD_CONFIG resync.
	RestartCommand string
	RebuildCommand string
}

// Loop drives spec §4.10's cycle against its injected collaborators. Every
// dependency is a port or an already-composed use case — the loop itself
// holds no adapter-specific knowledge.
type Loop struct {
	build   ports.BuildPort
	session ports.SessionPort
	drift   *drift.Service
	fleetUC *fleet.Fleet
	rollback *rollback.Rollback
	bus     ports.EventBusPort
	policyEngine *policy.Engine
}

// New constructs a Loop from its collaborators.
func New(build ports.BuildPort, session ports.SessionPort, driftSvc *drift.Service, fleetUC *fleet.Fleet, rb *rollback.Rollback, bus ports.EventBusPort, policyEngine *policy.Engine) *Loop {
	return &Loop{
		build:        build,
		session:      session,
		drift:        driftSvc,
		fleetUC:      fleetUC,
		rollback:     rb,
		bus:          bus,
		policyEngine: policyEngine,
	}
}

// Run executes the loop described in spec §4.10:
//
//	fingerprint := Build(configPath)
//	repeat:
//	    plan := DriftDetection.check(targets, fingerprint)
//	    if plan has drift: authorize, then dispatch by plan.action
//	    if once: break
//	    sleep(intervalSeconds) cancellably
//
// Run returns nil on a clean stop (ctx cancelled or Once finished a single
// pass) and a PortFailure-wrapped error if the initial build fails.
func (l *Loop) Run(ctx context.Context, p Params) error {
	fp, err := l.build.Build(ctx, p.ConfigPath)
	if err != nil {
		return fmt.Errorf("%w: initial build: %v", domain.ErrPortFailure, err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		plan := l.drift.Check(ctx, p.Targets, fp)
		l.heal(ctx, plan, p)

		if p.Once {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(p.IntervalSeconds) * time.Second):
		}
	}
}

// heal authorizes and dispatches remediation for one plan, per spec §4.10's
// switch on plan.action. A plan with no drift is a no-op.
func (l *Loop) heal(ctx context.Context, plan domain.HealingPlan, p Params) {
	if !plan.HasDrift() {
		return
	}
	if ctx.Err() != nil {
		// Cancelled between planning and execution: don't start new work.
		return
	}

	if plan.RequiresApproval {
		if l.policyEngine.Authorize(p.Subject, domain.PermHealRebuild) == domain.Deny {
			log.Printf("[autoloop] healing skipped: %s denied HEAL_REBUILD", p.Subject)
			l.bus.Publish(ctx, domain.NewHealingSkippedEvent("authorization_denied"))
			return
		}
	}

	driftedNodes := plan.DriftedNodes()

	switch plan.GlobalAction {
	case domain.ActionRestartService:
		l.restartAll(ctx, driftedNodes, p.RestartCommand)

	case domain.ActionRebuildConfig:
		if _, err := l.fleetUC.Execute(ctx, p.SessionName, p.ConfigPath, p.RebuildCommand, driftedNodes); err != nil {
			log.Printf("[autoloop] rebuild dispatch failed: %v", err)
		}

	case domain.ActionRollbackGeneration:
		l.rollback.Execute(ctx, driftedNodes, nil)

	default:
		log.Printf("[autoloop] no actionable remediation for plan (action=%q)", plan.GlobalAction)
	}
}

// restartAll runs cmd inside each drifted node's existing session,
// concurrently, tolerating per-node failure — the same fan-out discipline
// as Deploy Fleet and Rollback, just without a Deployment aggregate since a
// bare restart isn't itself a deployment lifecycle event.
func (l *Loop) restartAll(ctx context.Context, nodes []domain.Node, cmd string) {
	sessionID, err := domain.NewSessionId("chimera-heal")
	if err != nil {
		log.Printf("[autoloop] restart skipped: %v", err)
		return
	}

	done := make(chan struct{}, len(nodes))
	for _, n := range nodes {
		n := n
		go func() {
			defer func() { done <- struct{}{} }()
			if ok, err := l.session.Run(ctx, sessionID, fmt.Sprintf("%s # %s", cmd, n.ID())); err != nil || !ok {
				log.Printf("[autoloop] restart on %s failed: %v", n.ID(), err)
			}
		}()
	}
	for range nodes {
		<-done
	}
}
