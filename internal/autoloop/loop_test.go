package autoloop

import (
	"context"
	"testing"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/drift"
	"github.com/chimerahq/chimera/internal/fleet"
	"github.com/chimerahq/chimera/internal/policy"
	"github.com/chimerahq/chimera/internal/ports"
	"github.com/chimerahq/chimera/internal/rollback"
)

type fakeBuild struct{ fp string }

func (b fakeBuild) Build(ctx context.Context, path domain.ConfigPath) (domain.Fingerprint, error) {
	return domain.NewFingerprint(b.fp)
}
func (b fakeBuild) Instantiate(ctx context.Context, path domain.ConfigPath) (string, error) {
	return "", nil
}
func (b fakeBuild) Shell(ctx context.Context, path domain.ConfigPath, cmd string) (string, error) {
	return cmd, nil
}

type fakeHistory struct {
	production  map[string]bool
	consecutive map[string]int
}

func (h fakeHistory) IsProduction(n domain.Node) bool         { return h.production[n.ID()] }
func (h fakeHistory) ConsecutiveDriftCount(n domain.Node) int { return h.consecutive[n.ID()] }

type fakeRemote struct {
	actual map[string]string
}

func (r fakeRemote) SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error {
	return nil
}
func (r fakeRemote) Exec(ctx context.Context, node domain.Node, cmd string) error { return nil }
func (r fakeRemote) CurrentFingerprint(ctx context.Context, node domain.Node) (domain.Fingerprint, bool, error) {
	raw, ok := r.actual[node.ID()]
	if !ok {
		return domain.Fingerprint{}, false, nil
	}
	fp, _ := domain.NewFingerprint(raw)
	return fp, true, nil
}
func (r fakeRemote) Rollback(ctx context.Context, node domain.Node, generation *int) error {
	return nil
}

type fakeSession struct{ runs int }

func (s *fakeSession) Create(ctx context.Context, id domain.SessionId) (bool, error) { return true, nil }
func (s *fakeSession) List(ctx context.Context) ([]domain.SessionId, error)          { return nil, nil }
func (s *fakeSession) Kill(ctx context.Context, id domain.SessionId) (bool, error)   { return true, nil }
func (s *fakeSession) Run(ctx context.Context, id domain.SessionId, cmd string) (bool, error) {
	s.runs++
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

// TestAutoloopPolicyDeniesHealing covers scenario S6 from spec §8: a
// CRITICAL-drift plan requiring approval, with a subject bound only to
// 'viewer', must skip remediation and publish HealingSkipped rather than
// dispatching a rollback.
func TestAutoloopPolicyDeniesHealing(t *testing.T) {
	n1, _ := domain.ParseNode("root@n1:22")
	targets := []domain.Node{n1}

	history := fakeHistory{
		production:  map[string]bool{n1.ID(): true},
		consecutive: map[string]int{n1.ID(): 3}, // -> CRITICAL, ROLLBACK_GENERATION, requires approval
	}
	remote := fakeRemote{actual: map[string]string{n1.ID(): "fp-DRIFTED"}}
	build := fakeBuild{fp: "fp-EXPECTED"}
	session := &fakeSession{}
	bus := &fakeBus{}

	driftSvc := drift.New(remote, history, drift.DefaultConfig())
	fleetUC := fleet.New(build, remote, session, bus, fleet.DefaultTimeouts())
	rb := rollback.New(remote, bus)

	pol := policy.New()
	pol.Bind("alice", domain.RoleViewer)

	loop := New(build, session, driftSvc, fleetUC, rb, bus, pol)

	cfgPath, _ := domain.NewConfigPath("/cfg")
	err := loop.Run(context.Background(), Params{
		ConfigPath:      cfgPath,
		Targets:         targets,
		IntervalSeconds: 1,
		SessionName:     "heal",
		Once:            true,
		Subject:         "alice",
		RestartCommand:  "systemctl restart app",
		RebuildCommand:  "deploy apply",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if session.runs != 0 {
		t.Errorf("session.runs = %d, want 0 — denied healing must not execute any remediation", session.runs)
	}

	var sawSkip bool
	for _, ev := range bus.events {
		if ev.EventType() == domain.EventHealingSkipped {
			sawSkip = true
			if ev.(domain.HealingSkippedEvent).Reason != "authorization_denied" {
				t.Errorf("reason = %s, want authorization_denied", ev.(domain.HealingSkippedEvent).Reason)
			}
		}
	}
	if !sawSkip {
		t.Error("expected a HealingSkipped event")
	}
}

func TestAutoloopAllowedHealingDispatchesRestart(t *testing.T) {
	n1, _ := domain.ParseNode("root@n1:22")
	targets := []domain.Node{n1}

	// Non-production, consecutive=0 -> LOW severity -> RESTART_SERVICE, no
	// approval required.
	history := fakeHistory{}
	remote := fakeRemote{actual: map[string]string{n1.ID(): "fp-DRIFTED"}}
	build := fakeBuild{fp: "fp-EXPECTED"}
	session := &fakeSession{}
	bus := &fakeBus{}

	driftSvc := drift.New(remote, history, drift.DefaultConfig())
	fleetUC := fleet.New(build, remote, session, bus, fleet.DefaultTimeouts())
	rb := rollback.New(remote, bus)
	pol := policy.New()

	loop := New(build, session, driftSvc, fleetUC, rb, bus, pol)
	cfgPath, _ := domain.NewConfigPath("/cfg")

	err := loop.Run(context.Background(), Params{
		ConfigPath:      cfgPath,
		Targets:         targets,
		IntervalSeconds: 1,
		SessionName:     "heal",
		Once:            true,
		Subject:         "anyone",
		RestartCommand:  "systemctl restart app",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if session.runs != 1 {
		t.Errorf("session.runs = %d, want 1 (one node restarted)", session.runs)
	}
}

func TestAutoloopCancellationStopsCleanly(t *testing.T) {
	n1, _ := domain.ParseNode("root@n1:22")
	targets := []domain.Node{n1}

	history := fakeHistory{}
	remote := fakeRemote{actual: map[string]string{n1.ID(): "fp-EXPECTED"}} // congruent -> no drift
	build := fakeBuild{fp: "fp-EXPECTED"}
	session := &fakeSession{}
	bus := &fakeBus{}

	driftSvc := drift.New(remote, history, drift.DefaultConfig())
	fleetUC := fleet.New(build, remote, session, bus, fleet.DefaultTimeouts())
	rb := rollback.New(remote, bus)
	pol := policy.New()

	loop := New(build, session, driftSvc, fleetUC, rb, bus, pol)
	cfgPath, _ := domain.NewConfigPath("/cfg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, Params{
			ConfigPath:      cfgPath,
			Targets:         targets,
			IntervalSeconds: 60,
			SessionName:     "heal",
			Once:            false,
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return promptly after cancellation")
	}
}
