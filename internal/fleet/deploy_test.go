package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

type fakeBuild struct {
	fp  string
	err error
}

func (b fakeBuild) Build(ctx context.Context, path domain.ConfigPath) (domain.Fingerprint, error) {
	if b.err != nil {
		return domain.Fingerprint{}, b.err
	}
	return domain.NewFingerprint(b.fp)
}
func (b fakeBuild) Instantiate(ctx context.Context, path domain.ConfigPath) (string, error) {
	return "", nil
}
func (b fakeBuild) Shell(ctx context.Context, path domain.ConfigPath, cmd string) (string, error) {
	return cmd, nil
}

type fakeRemote struct {
	mu        sync.Mutex
	syncFail  map[string]bool
}

func (r *fakeRemote) SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.syncFail[node.ID()] {
		return errors.New("sync failed")
	}
	return nil
}
func (r *fakeRemote) Exec(ctx context.Context, node domain.Node, cmd string) error { return nil }
func (r *fakeRemote) CurrentFingerprint(ctx context.Context, node domain.Node) (domain.Fingerprint, bool, error) {
	return domain.Fingerprint{}, false, nil
}
func (r *fakeRemote) Rollback(ctx context.Context, node domain.Node, generation *int) error {
	return nil
}

type fakeSession struct {
	mu      sync.Mutex
	runFail map[string]bool
}

func (s *fakeSession) Create(ctx context.Context, id domain.SessionId) (bool, error) { return true, nil }
func (s *fakeSession) List(ctx context.Context) ([]domain.SessionId, error)          { return nil, nil }
func (s *fakeSession) Kill(ctx context.Context, id domain.SessionId) (bool, error)   { return true, nil }
func (s *fakeSession) Run(ctx context.Context, id domain.SessionId, cmd string) (bool, error) {
	return true, nil
}
func (s *fakeSession) Attach(ctx context.Context, id domain.SessionId) (string, error) {
	return "", nil
}

type fakeBus struct{ events []domain.DomainEvent }

func (b *fakeBus) Publish(ctx context.Context, events ...domain.DomainEvent) {
	b.events = append(b.events, events...)
}
func (b *fakeBus) Subscribe(eventType domain.EventType, handler ports.EventHandler) {}

func mustTargets(t *testing.T, targets ...string) []domain.Node {
	t.Helper()
	nodes := make([]domain.Node, len(targets))
	for i, s := range targets {
		n, err := domain.ParseNode(s)
		if err != nil {
			t.Fatalf("ParseNode(%q): %v", s, err)
		}
		nodes[i] = n
	}
	return nodes
}

func eventTypes(events []domain.DomainEvent) []domain.EventType {
	out := make([]domain.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

// TestDeployFleetHappyPath covers scenario S1: both nodes sync and exec
// successfully; deployment completes with [DeploymentStarted,
// BuildCompleted, DeploymentCompleted] and an OK outcome per node.
func TestDeployFleetHappyPath(t *testing.T) {
	targets := mustTargets(t, "root@n1:22", "root@n2:22")
	build := fakeBuild{fp: "fp-AAA"}
	remote := &fakeRemote{syncFail: map[string]bool{}}
	session := &fakeSession{}
	bus := &fakeBus{}

	f := New(build, remote, session, bus, DefaultTimeouts())
	cfgPath, _ := domain.NewConfigPath("/cfg")

	result, err := f.Execute(context.Background(), "deploy-1", cfgPath, "echo hi", targets)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Deployment.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", result.Deployment.Status)
	}
	for _, n := range targets {
		if !result.Outcomes[n.ID()].OK {
			t.Errorf("node %s outcome = %+v, want OK", n.ID(), result.Outcomes[n.ID()])
		}
	}

	want := []domain.EventType{domain.EventDeploymentStarted, domain.EventBuildCompleted, domain.EventDeploymentCompleted}
	got := eventTypes(bus.events)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// TestDeployFleetPartialSyncFailure covers scenario S2: sync fails on n2
// only; deployment still COMPLETES (>=1 success) with a FAIL outcome for n2.
func TestDeployFleetPartialSyncFailure(t *testing.T) {
	targets := mustTargets(t, "root@n1:22", "root@n2:22")
	build := fakeBuild{fp: "fp-AAA"}
	remote := &fakeRemote{syncFail: map[string]bool{"root@n2:22": true}}
	session := &fakeSession{}
	bus := &fakeBus{}

	f := New(build, remote, session, bus, DefaultTimeouts())
	cfgPath, _ := domain.NewConfigPath("/cfg")

	result, err := f.Execute(context.Background(), "deploy-1", cfgPath, "echo hi", targets)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Deployment.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED (partial failure still has a success)", result.Deployment.Status)
	}
	if !result.Outcomes["root@n1:22"].OK {
		t.Error("n1 should have succeeded")
	}
	if result.Outcomes["root@n2:22"].OK {
		t.Error("n2 should have failed sync")
	}
	if result.Outcomes["root@n2:22"].Stage != "sync" {
		t.Errorf("n2 failure stage = %s, want sync", result.Outcomes["root@n2:22"].Stage)
	}
}

// TestDeployFleetAllSyncFailure covers scenario S3: sync fails on every
// node; deployment FAILS and no exec is attempted.
func TestDeployFleetAllSyncFailure(t *testing.T) {
	targets := mustTargets(t, "root@n1:22", "root@n2:22")
	build := fakeBuild{fp: "fp-AAA"}
	remote := &fakeRemote{syncFail: map[string]bool{"root@n1:22": true, "root@n2:22": true}}
	session := &fakeSession{}
	bus := &fakeBus{}

	f := New(build, remote, session, bus, DefaultTimeouts())
	cfgPath, _ := domain.NewConfigPath("/cfg")

	result, err := f.Execute(context.Background(), "deploy-1", cfgPath, "echo hi", targets)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Deployment.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Deployment.Status)
	}
	// Execute drains the Deployment's events onto the bus, so the final
	// event is read from what was published.
	last := bus.events[len(bus.events)-1]
	if last.EventType() != domain.EventDeploymentFailed {
		t.Errorf("final event = %s, want DeploymentFailed", last.EventType())
	}
	// execAll would overwrite each outcome; a "sync" stage on every node
	// shows exec was never attempted.
	for _, n := range targets {
		if got := result.Outcomes[n.ID()].Stage; got != "sync" {
			t.Errorf("node %s stage = %q, want sync (no exec attempted)", n.ID(), got)
		}
	}
}

func TestDeployFleetBuildFailure(t *testing.T) {
	targets := mustTargets(t, "root@n1:22")
	build := fakeBuild{err: errors.New("nix build failed")}
	remote := &fakeRemote{}
	session := &fakeSession{}
	bus := &fakeBus{}

	f := New(build, remote, session, bus, DefaultTimeouts())
	cfgPath, _ := domain.NewConfigPath("/cfg")

	result, err := f.Execute(context.Background(), "deploy-1", cfgPath, "echo hi", targets)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Deployment.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", result.Deployment.Status)
	}
}

// TestResultEveryTargetCovered covers property 9 (stated for Rollback but
// equally applicable here): every requested target gets an outcome entry,
// even when a subset fails.
func TestResultEveryTargetCovered(t *testing.T) {
	targets := mustTargets(t, "root@n1:22", "root@n2:22", "root@n3:22")
	build := fakeBuild{fp: "fp-AAA"}
	remote := &fakeRemote{syncFail: map[string]bool{"root@n2:22": true}}
	session := &fakeSession{}
	bus := &fakeBus{}

	f := New(build, remote, session, bus, DefaultTimeouts())
	cfgPath, _ := domain.NewConfigPath("/cfg")
	result, err := f.Execute(context.Background(), "deploy-1", cfgPath, "echo hi", targets)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Outcomes) != len(targets) {
		t.Fatalf("outcomes = %d, want %d", len(result.Outcomes), len(targets))
	}
}
