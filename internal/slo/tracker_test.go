package slo

import (
	"testing"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

func TestTrackerViolationAndWindowReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tr := New(clock)

	target, err := domain.NewSLO("api", 0.99, 60)
	if err != nil {
		t.Fatalf("NewSLO: %v", err)
	}
	tr.Register(target)

	for i := 0; i < 10; i++ {
		if err := tr.Record("api", true); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		if err := tr.Record("api", false); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	violated, err := tr.Violated("api")
	if err != nil {
		t.Fatalf("Violated: %v", err)
	}
	if !violated {
		t.Error("5/15 failures against a 99% target should violate the error budget")
	}

	now = now.Add(61 * time.Second) // window elapses
	if err := tr.Record("api", true); err != nil {
		t.Fatalf("Record: %v", err)
	}
	violated, err = tr.Violated("api")
	if err != nil {
		t.Fatalf("Violated: %v", err)
	}
	if violated {
		t.Error("window should have reset and no longer be violated after a single success")
	}
}

func TestTrackerUnknownSLOIsValidationError(t *testing.T) {
	tr := New(nil)
	if err := tr.Record("nonexistent", true); err == nil {
		t.Error("Record on unregistered SLO should return an error")
	}
}
