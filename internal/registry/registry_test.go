package registry

import (
	"testing"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

func TestRegistryHealthTransitionsToUnreachable(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := New(30*time.Second, clock)

	n, _ := domain.ParseNode("root@n1:22")
	r.Heartbeat(n, false)
	if got := r.Health(n); got != HealthHealthy {
		t.Fatalf("Health immediately after heartbeat = %s, want HEALTHY", got)
	}

	now = now.Add(91 * time.Second) // > 3x heartbeat interval
	if got := r.Health(n); got != HealthUnreachable {
		t.Fatalf("Health after 91s silence = %s, want UNREACHABLE (3x30s threshold)", got)
	}
}

func TestRegistryUnknownNodeIsUnreachable(t *testing.T) {
	r := New(30*time.Second, nil)
	n, _ := domain.ParseNode("root@ghost:22")
	if got := r.Health(n); got != HealthUnreachable {
		t.Errorf("Health of never-seen node = %s, want UNREACHABLE", got)
	}
}

func TestRegistryConsecutiveDriftCounting(t *testing.T) {
	r := New(30*time.Second, nil)
	n, _ := domain.ParseNode("root@n1:22")

	r.RecordDrift(n, &domain.DriftReport{Node: n}, false)
	r.RecordDrift(n, &domain.DriftReport{Node: n}, false)
	if got := r.ConsecutiveDriftCount(n); got != 2 {
		t.Errorf("ConsecutiveDriftCount = %d, want 2", got)
	}

	r.RecordDrift(n, nil, true) // congruent resets the counter
	if got := r.ConsecutiveDriftCount(n); got != 0 {
		t.Errorf("ConsecutiveDriftCount after congruent observation = %d, want 0", got)
	}
}

func TestRegistryIsProduction(t *testing.T) {
	r := New(30*time.Second, nil)
	n, _ := domain.ParseNode("root@n1:22")
	r.Heartbeat(n, true)
	if !r.IsProduction(n) {
		t.Error("IsProduction should be true after a production heartbeat")
	}
}
