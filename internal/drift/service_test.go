package drift

import (
	"context"
	"testing"

	"github.com/chimerahq/chimera/internal/domain"
)

type fakeHistory struct {
	production map[string]bool
	consecutive map[string]int
}

func (h fakeHistory) IsProduction(n domain.Node) bool       { return h.production[n.ID()] }
func (h fakeHistory) ConsecutiveDriftCount(n domain.Node) int { return h.consecutive[n.ID()] }

type fakeExecutor struct {
	fingerprints map[string]string // node id -> actual fp, absent = unreachable
}

func (f fakeExecutor) SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error {
	return nil
}
func (f fakeExecutor) Exec(ctx context.Context, node domain.Node, cmd string) error { return nil }
func (f fakeExecutor) CurrentFingerprint(ctx context.Context, node domain.Node) (domain.Fingerprint, bool, error) {
	raw, ok := f.fingerprints[node.ID()]
	if !ok {
		return domain.Fingerprint{}, false, nil
	}
	fp, _ := domain.NewFingerprint(raw)
	return fp, true, nil
}
func (f fakeExecutor) Rollback(ctx context.Context, node domain.Node, generation *int) error {
	return nil
}

func mustNode(t *testing.T, s string) domain.Node {
	t.Helper()
	n, err := domain.ParseNode(s)
	if err != nil {
		t.Fatalf("ParseNode(%q): %v", s, err)
	}
	return n
}

func mustFP(t *testing.T, s string) domain.Fingerprint {
	t.Helper()
	fp, err := domain.NewFingerprint(s)
	if err != nil {
		t.Fatalf("NewFingerprint(%q): %v", s, err)
	}
	return fp
}

// TestSeverityEscalation covers scenario S4 from spec §8: a production node
// with consecutive-drift-count 3 is CRITICAL, while a non-production node
// with count 1 is LOW; the plan requires approval and its global action is
// the CRITICAL node's ROLLBACK_GENERATION.
func TestSeverityEscalation(t *testing.T) {
	n1 := mustNode(t, "root@n1:22")
	n2 := mustNode(t, "root@n2:22")
	expected := mustFP(t, "fp-AAA")

	history := fakeHistory{
		production:  map[string]bool{n1.ID(): true},
		consecutive: map[string]int{n1.ID(): 3, n2.ID(): 1},
	}
	executor := fakeExecutor{fingerprints: map[string]string{
		n1.ID(): "fp-DRIFTED1",
		n2.ID(): "fp-DRIFTED2",
	}}

	svc := New(executor, history, DefaultConfig())
	plan := svc.Check(context.Background(), []domain.Node{n1, n2}, expected)

	if len(plan.DriftReports) != 2 {
		t.Fatalf("drift reports = %d, want 2", len(plan.DriftReports))
	}

	severities := map[string]domain.Severity{}
	for _, r := range plan.DriftReports {
		severities[r.Node.ID()] = r.Severity
	}
	if severities[n1.ID()] != domain.SeverityCritical {
		t.Errorf("n1 severity = %s, want CRITICAL", severities[n1.ID()])
	}
	if severities[n2.ID()] != domain.SeverityLow {
		t.Errorf("n2 severity = %s, want LOW", severities[n2.ID()])
	}
	if !plan.RequiresApproval {
		t.Error("plan should require approval when any severity is HIGH or CRITICAL")
	}
	if plan.GlobalAction != domain.ActionRollbackGeneration {
		t.Errorf("global action = %s, want ROLLBACK_GENERATION", plan.GlobalAction)
	}
}

func TestCongruentNodeProducesNoDriftReport(t *testing.T) {
	n1 := mustNode(t, "root@n1:22")
	expected := mustFP(t, "fp-AAA")
	executor := fakeExecutor{fingerprints: map[string]string{n1.ID(): "fp-AAA"}}

	svc := New(executor, fakeHistory{}, DefaultConfig())
	plan := svc.Check(context.Background(), []domain.Node{n1}, expected)

	if plan.HasDrift() {
		t.Errorf("congruent node should produce no drift report, got %d", len(plan.DriftReports))
	}
}

func TestUnreachableNodeCountsTowardBlastRadiusButIsNotHealTarget(t *testing.T) {
	n1 := mustNode(t, "root@n1:22")
	n2 := mustNode(t, "root@n2:22")
	expected := mustFP(t, "fp-AAA")

	// n1 unreachable (absent from the fake's fingerprint map), n2 congruent.
	executor := fakeExecutor{fingerprints: map[string]string{n2.ID(): "fp-AAA"}}

	svc := New(executor, fakeHistory{}, DefaultConfig())
	plan := svc.Check(context.Background(), []domain.Node{n1, n2}, expected)

	if plan.HasDrift() {
		t.Errorf("an unreachable node must not itself become a heal target, got %d drift reports", len(plan.DriftReports))
	}
}

// TestBlastRadiusMonotonic covers property 6: blastRadius is monotonic in
// |drifted| for fixed |targets|.
func TestBlastRadiusMonotonic(t *testing.T) {
	total := 10
	prev := -1.0
	for drifted := 0; drifted <= total; drifted++ {
		pct := BlastRadiusPct(total, drifted)
		if pct < prev {
			t.Fatalf("blast radius not monotonic: drifted=%d pct=%f < prev=%f", drifted, pct, prev)
		}
		prev = pct
	}
}

func TestBlastRadiusRoundingAndZeroTotal(t *testing.T) {
	if got := BlastRadiusPct(3, 1); got != 33.3 {
		t.Errorf("BlastRadiusPct(3,1) = %f, want 33.3", got)
	}
	if got := BlastRadiusPct(0, 0); got != 0 {
		t.Errorf("BlastRadiusPct(0,0) = %f, want 0", got)
	}
}

func TestSuggestActionBySeverity(t *testing.T) {
	cases := map[domain.Severity]domain.RemediationAction{
		domain.SeverityLow:      domain.ActionRestartService,
		domain.SeverityMedium:   domain.ActionRebuildConfig,
		domain.SeverityHigh:     domain.ActionRebuildConfig,
		domain.SeverityCritical: domain.ActionRollbackGeneration,
	}
	for sev, want := range cases {
		if got := SuggestAction(sev); got != want {
			t.Errorf("SuggestAction(%s) = %s, want %s", sev, got, want)
		}
	}
}
