// Package playbook implements the Playbook Engine (spec §4.4): sequenced
// step execution with per-step rollback and precondition validation.
package playbook

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/policy"
	"github.com/chimerahq/chimera/internal/ports"
)

// RunContext carries everything a single playbook run needs: the target
// node, the subject authorizing each step, and the collaborators (event
// bus, policy engine, action executor).
type RunContext struct {
	Node      domain.Node
	Subject   domain.SubjectID
	Facts     map[string]interface{}
	Bus       ports.EventBusPort
	Policy    *policy.Engine
	Executor  ActionExecutor
}

// Result is what Run returns: the per-step outcome vector plus whether the
// run ultimately completed, failed, or was skipped (a run whose completed
// steps were rolled back reports "failed").
type Result struct {
	Outcome string // "completed" | "failed" | "skipped"
	Steps   []domain.StepResult
}

// Engine runs validated Playbooks against a RunContext.
type Engine struct {
	preconditions *PreconditionRegistry
}

// New constructs a playbook Engine using reg to evaluate named preconditions.
func New(reg *PreconditionRegistry) *Engine {
	return &Engine{preconditions: reg}
}

// Run executes pb's steps in order per spec §4.4. pb must already be
// Validated (see domain.Playbook.Validate); Run returns an error if it isn't.
func (e *Engine) Run(ctx context.Context, pb domain.Playbook, rc RunContext) (Result, error) {
	if !pb.Validated {
		return Result{}, errors.New("playbook must be validated before execution")
	}

	pctx := PreconditionContext{Node: rc.Node, Facts: rc.Facts}
	for _, name := range pb.Preconditions {
		ok, err := e.preconditions.Eval(name, pctx)
		if err != nil || !ok {
			reason := name
			if err != nil {
				reason = err.Error()
			}
			rc.Bus.Publish(ctx, domain.NewPlaybookSkippedEvent(pb.ID, reason))
			return Result{Outcome: "skipped"}, nil
		}
	}

	var results []domain.StepResult
	for i, step := range pb.Steps {
		perm := PermissionFor(step.Action.Kind)
		if rc.Policy.Authorize(rc.Subject, perm) == domain.Deny {
			return Result{Outcome: "failed", Steps: results}, domain.ErrAuthorizationDenied
		}

		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		err := rc.Executor.Execute(stepCtx, rc.Node, step.Action)
		cancel()
		duration := time.Since(start).Seconds()

		if err == nil {
			results = append(results, domain.StepResult{StepID: step.ID, State: domain.StepOK, Duration: duration})
			continue
		}

		state := domain.StepFail
		if errors.Is(err, context.DeadlineExceeded) {
			state = domain.StepTimeout
		}
		results = append(results, domain.StepResult{StepID: step.ID, State: state, Duration: duration, Error: err.Error()})

		if step.ContinueOnFailure {
			continue
		}

		// ROLLBACK phase: walk the steps that completed successfully before
		// this one (the failed step itself never completed, so it's excluded)
		// in reverse, best-effort.
		rolledBack, rollbackErrs := e.rollback(ctx, pb.Steps[:i], rc)
		rc.Bus.Publish(ctx, domain.NewPlaybookRolledBackEvent(pb.ID, rolledBack, rollbackErrs))
		rc.Bus.Publish(ctx, domain.NewPlaybookFailedEvent(pb.ID, step.ID, results))
		return Result{Outcome: "failed", Steps: results}, nil
	}

	rc.Bus.Publish(ctx, domain.NewPlaybookCompletedEvent(pb.ID, results))
	return Result{Outcome: "completed", Steps: results}, nil
}

// rollback walks completed steps in reverse, executing each one's Rollback
// action (if defined) best-effort: failures are logged, never abort the walk.
func (e *Engine) rollback(ctx context.Context, completed []domain.Step, rc RunContext) ([]string, map[string]string) {
	var rolledBack []string
	errs := map[string]string{}

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Rollback == nil {
			continue
		}
		rollbackCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		err := rc.Executor.Execute(rollbackCtx, rc.Node, *step.Rollback)
		cancel()
		if err != nil {
			log.Printf("[playbook] rollback of step %s failed: %v", step.ID, err)
			errs[step.ID] = err.Error()
			continue
		}
		rolledBack = append(rolledBack, step.ID)
	}
	return rolledBack, errs
}
