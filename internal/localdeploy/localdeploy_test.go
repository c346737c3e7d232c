package localdeploy

import (
	"context"
	"errors"
	"testing"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

type fakeSession struct{ runErr error }

func (s fakeSession) Create(ctx context.Context, id domain.SessionId) (bool, error) { return true, nil }
func (s fakeSession) List(ctx context.Context) ([]domain.SessionId, error)          { return nil, nil }
func (s fakeSession) Kill(ctx context.Context, id domain.SessionId) (bool, error)   { return true, nil }
func (s fakeSession) Run(ctx context.Context, id domain.SessionId, cmd string) (bool, error) {
	if s.runErr != nil {
		return false, s.runErr
	}
	return true, nil
}
func (s fakeSession) Attach(ctx context.Context, id domain.SessionId) (string, error) {
	return "", nil
}

type fakeBus struct{ events []domain.DomainEvent }

func (b *fakeBus) Publish(ctx context.Context, events ...domain.DomainEvent) {
	b.events = append(b.events, events...)
}
func (b *fakeBus) Subscribe(eventType domain.EventType, handler ports.EventHandler) {}

func TestLocalDeploySucceeds(t *testing.T) {
	bus := &fakeBus{}
	ld := New(fakeSession{}, bus)
	cfgPath, _ := domain.NewConfigPath("/cfg")

	dep, ok, err := ld.Execute(context.Background(), "local-1", cfgPath, "echo hi")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !ok || dep.Status != domain.StatusCompleted {
		t.Fatalf("ok=%v status=%s, want true/COMPLETED", ok, dep.Status)
	}
}

func TestLocalDeployRunFailure(t *testing.T) {
	bus := &fakeBus{}
	ld := New(fakeSession{runErr: errors.New("boom")}, bus)
	cfgPath, _ := domain.NewConfigPath("/cfg")

	dep, ok, err := ld.Execute(context.Background(), "local-1", cfgPath, "echo hi")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ok || dep.Status != domain.StatusFailed {
		t.Fatalf("ok=%v status=%s, want false/FAILED", ok, dep.Status)
	}
}
