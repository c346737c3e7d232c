package playbook

import (
	"context"
	"errors"
	"testing"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/policy"
	"github.com/chimerahq/chimera/internal/ports"
)

// fakeBus records every published event without dispatching to handlers —
// engine tests only need to assert what was published, not bus delivery
// semantics (covered by internal/eventbus's own tests).
type fakeBus struct {
	published []domain.DomainEvent
}

func (b *fakeBus) Publish(ctx context.Context, events ...domain.DomainEvent) {
	b.published = append(b.published, events...)
}
func (b *fakeBus) Subscribe(eventType domain.EventType, handler ports.EventHandler) {}

var _ ports.EventBusPort = (*fakeBus)(nil)

// scriptedExecutor runs a fixed per-step-id outcome script; calls are
// recorded in invocation order so rollback ordering can be asserted.
type scriptedExecutor struct {
	fail  map[string]bool
	calls *[]string
}

func (e scriptedExecutor) Execute(ctx context.Context, node domain.Node, action domain.Action) error {
	id := action.Cmd
	*e.calls = append(*e.calls, id)
	if e.fail[id] {
		return errors.New("step failed: " + id)
	}
	return nil
}

func mustPlaybook(t *testing.T, steps []domain.Step) domain.Playbook {
	t.Helper()
	pb := domain.Playbook{ID: "pb1", Name: "test playbook", Version: "1", Steps: steps}
	validated, err := pb.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return validated
}

func rollbackAction(id string) *domain.Action {
	return &domain.Action{Kind: domain.ActionExecShell, Cmd: "rollback-" + id}
}

// TestPlaybookRollbackOnStepFailure covers scenario S5 from spec §8: steps
// A, B succeed, C fails without continueOnFailure; rollback runs B then A,
// in that order, and a PlaybookFailed/PlaybookRolledBack pair is published.
func TestPlaybookRollbackOnStepFailure(t *testing.T) {
	var calls []string
	executor := scriptedExecutor{fail: map[string]bool{"C": true}, calls: &calls}

	pb := mustPlaybook(t, []domain.Step{
		{ID: "A", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "A"}, TimeoutSeconds: 5, Rollback: rollbackAction("A")},
		{ID: "B", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "B"}, TimeoutSeconds: 5, Rollback: rollbackAction("B")},
		{ID: "C", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "C"}, TimeoutSeconds: 5, Rollback: rollbackAction("C")},
	})

	bus := &fakeBus{}
	pol := policy.New()
	pol.Bind("op", domain.RoleAdmin)

	engine := New(NewPreconditionRegistry(nil))
	node, _ := domain.ParseNode("root@n1:22")

	result, err := engine.Run(context.Background(), pb, RunContext{
		Node: node, Subject: "op", Bus: bus, Policy: pol, Executor: executor,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != "failed" {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}

	wantStates := map[string]domain.StepState{"A": domain.StepOK, "B": domain.StepOK, "C": domain.StepFail}
	if len(result.Steps) != 3 {
		t.Fatalf("step results = %d, want 3", len(result.Steps))
	}
	for _, sr := range result.Steps {
		if sr.State != wantStates[sr.StepID] {
			t.Errorf("step %s state = %s, want %s", sr.StepID, sr.State, wantStates[sr.StepID])
		}
	}

	// Primary action calls: A, B, C (forward), then rollback calls for B, A
	// in that order — C's own rollback must NOT be invoked, since C never
	// completed successfully.
	wantCalls := []string{"A", "B", "C", "rollback-B", "rollback-A"}
	if len(calls) != len(wantCalls) {
		t.Fatalf("calls = %v, want %v", calls, wantCalls)
	}
	for i, want := range wantCalls {
		if calls[i] != want {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want)
		}
	}

	var sawRolledBack, sawFailed bool
	for _, ev := range bus.published {
		switch e := ev.(type) {
		case domain.PlaybookRolledBackEvent:
			sawRolledBack = true
			if len(e.RolledBackIDs) != 2 || e.RolledBackIDs[0] != "B" || e.RolledBackIDs[1] != "A" {
				t.Errorf("rolled back ids = %v, want [B A]", e.RolledBackIDs)
			}
		case domain.PlaybookFailedEvent:
			sawFailed = true
			if e.FailedStep != "C" {
				t.Errorf("failed step = %s, want C", e.FailedStep)
			}
		}
	}
	if !sawRolledBack {
		t.Error("expected a PlaybookRolledBackEvent")
	}
	if !sawFailed {
		t.Error("expected a PlaybookFailedEvent")
	}
}

func TestPlaybookContinueOnFailureSkipsRollback(t *testing.T) {
	var calls []string
	executor := scriptedExecutor{fail: map[string]bool{"B": true}, calls: &calls}

	pb := mustPlaybook(t, []domain.Step{
		{ID: "A", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "A"}, TimeoutSeconds: 5},
		{ID: "B", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "B"}, TimeoutSeconds: 5, ContinueOnFailure: true},
		{ID: "C", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "C"}, TimeoutSeconds: 5},
	})

	bus := &fakeBus{}
	pol := policy.New()
	pol.Bind("op", domain.RoleAdmin)
	engine := New(NewPreconditionRegistry(nil))
	node, _ := domain.ParseNode("root@n1:22")

	result, err := engine.Run(context.Background(), pb, RunContext{
		Node: node, Subject: "op", Bus: bus, Policy: pol, Executor: executor,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != "completed" {
		t.Fatalf("outcome = %s, want completed (continueOnFailure should let C still run)", result.Outcome)
	}
	if len(calls) != 3 {
		t.Fatalf("calls = %v, want A,B,C all invoked", calls)
	}
}

func TestPlaybookDeniedStepAbortsRun(t *testing.T) {
	var calls []string
	executor := scriptedExecutor{calls: &calls}

	pb := mustPlaybook(t, []domain.Step{
		{ID: "A", Action: domain.Action{Kind: domain.ActionKindRollback}, TimeoutSeconds: 5},
	})

	bus := &fakeBus{}
	pol := policy.New() // "nobody" has no bindings at all -> default deny
	engine := New(NewPreconditionRegistry(nil))
	node, _ := domain.ParseNode("root@n1:22")

	_, err := engine.Run(context.Background(), pb, RunContext{
		Node: node, Subject: "nobody", Bus: bus, Policy: pol, Executor: executor,
	})
	if !errors.Is(err, domain.ErrAuthorizationDenied) {
		t.Fatalf("err = %v, want ErrAuthorizationDenied", err)
	}
	if len(calls) != 0 {
		t.Errorf("denied step must never execute, got calls = %v", calls)
	}
}

func TestPlaybookPreconditionFailureSkips(t *testing.T) {
	pb := domain.Playbook{
		ID: "pb1", Name: "test", Version: "1",
		Preconditions: []string{"fact_true"},
		Steps: []domain.Step{
			{ID: "A", Action: domain.Action{Kind: domain.ActionExecShell, Cmd: "A"}, TimeoutSeconds: 5},
		},
	}
	validated, err := pb.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	var calls []string
	executor := scriptedExecutor{calls: &calls}
	bus := &fakeBus{}
	pol := policy.New()
	pol.Bind("op", domain.RoleAdmin)
	engine := New(NewPreconditionRegistry(nil))
	node, _ := domain.ParseNode("root@n1:22")

	result, err := engine.Run(context.Background(), validated, RunContext{
		Node: node, Subject: "op", Bus: bus, Policy: pol, Executor: executor,
		Facts: map[string]interface{}{"precondition_ok": false},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != "skipped" {
		t.Fatalf("outcome = %s, want skipped", result.Outcome)
	}
	if len(calls) != 0 {
		t.Errorf("skipped playbook must not execute any step, got %v", calls)
	}
}
