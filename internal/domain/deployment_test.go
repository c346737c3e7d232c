package domain

import (
	"errors"
	"testing"
)

func mustSessionID(t *testing.T, raw string) SessionId {
	t.Helper()
	id, err := NewSessionId(raw)
	if err != nil {
		t.Fatalf("NewSessionId(%q): %v", raw, err)
	}
	return id
}

func mustConfigPath(t *testing.T, raw string) ConfigPath {
	t.Helper()
	cp, err := NewConfigPath(raw)
	if err != nil {
		t.Fatalf("NewConfigPath(%q): %v", raw, err)
	}
	return cp
}

func mustFingerprint(t *testing.T, raw string) Fingerprint {
	t.Helper()
	fp, err := NewFingerprint(raw)
	if err != nil {
		t.Fatalf("NewFingerprint(%q): %v", raw, err)
	}
	return fp
}

// TestDeploymentHappyPathEvents covers property 1 from spec §8: the event
// list after a sequence of valid transitions equals the prior events plus
// each transition's emitted event, in order.
func TestDeploymentHappyPathEvents(t *testing.T) {
	dep := NewDeployment(mustSessionID(t, "s1"), mustConfigPath(t, "/cfg"))
	if len(dep.Events) != 0 {
		t.Fatalf("fresh deployment should have no events, got %d", len(dep.Events))
	}

	dep, err := dep.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	dep, err = dep.BuildSucceeded(mustFingerprint(t, "fp-AAA"))
	if err != nil {
		t.Fatalf("BuildSucceeded: %v", err)
	}
	dep, err = dep.BeginDeploying()
	if err != nil {
		t.Fatalf("BeginDeploying: %v", err)
	}
	dep, err = dep.Complete([]string{"n1"}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if dep.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", dep.Status)
	}

	wantTypes := []EventType{EventDeploymentStarted, EventBuildCompleted, EventDeploymentCompleted}
	if len(dep.Events) != len(wantTypes) {
		t.Fatalf("events = %d, want %d", len(dep.Events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if dep.Events[i].EventType() != want {
			t.Errorf("event[%d] = %s, want %s", i, dep.Events[i].EventType(), want)
		}
	}
}

// TestDeploymentTerminalRejectsFurtherTransitions covers property 2: once a
// Deployment reaches a terminal status, every further transition fails with
// ErrInvalidStateTransition and leaves the deployment unchanged.
func TestDeploymentTerminalRejectsFurtherTransitions(t *testing.T) {
	dep := NewDeployment(mustSessionID(t, "s1"), mustConfigPath(t, "/cfg"))
	dep, _ = dep.Start()
	dep, _ = dep.BuildSucceeded(mustFingerprint(t, "fp-AAA"))
	dep, _ = dep.BeginDeploying()
	dep, err := dep.Complete([]string{"n1"}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	before := dep

	if _, err := dep.Start(); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Start on terminal deployment: err = %v, want ErrInvalidStateTransition", err)
	}
	if _, err := dep.Fail("oops"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("Fail on terminal deployment: err = %v, want ErrInvalidStateTransition", err)
	}
	if _, err := dep.RollBack("n1", 3); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("RollBack on terminal deployment: err = %v, want ErrInvalidStateTransition", err)
	}

	if dep.Status != before.Status || len(dep.Events) != len(before.Events) {
		t.Errorf("terminal deployment mutated by a rejected transition attempt")
	}
}

func TestDeploymentFailedThenRolledBack(t *testing.T) {
	dep := NewDeployment(mustSessionID(t, "s1"), mustConfigPath(t, "/cfg"))
	dep, _ = dep.Start()
	dep, err := dep.Fail("build broke")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if dep.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", dep.Status)
	}

	dep, err = dep.RollBack("n1", 5)
	if err != nil {
		t.Fatalf("RollBack: %v", err)
	}
	if dep.Status != StatusRolledBack {
		t.Fatalf("status = %s, want ROLLED_BACK", dep.Status)
	}
	if !dep.Status.IsTerminal() {
		t.Error("ROLLED_BACK should be terminal")
	}
}

func TestDeploymentInvalidDirectJump(t *testing.T) {
	dep := NewDeployment(mustSessionID(t, "s1"), mustConfigPath(t, "/cfg"))
	if _, err := dep.Complete([]string{"n1"}, nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("PENDING -> COMPLETED should be rejected, got %v", err)
	}
}

// TestCongruenceReportInvariant covers property 4: isCongruent iff actual
// equals expected and actual is present.
func TestCongruenceReportInvariant(t *testing.T) {
	node := Node{Host: "h1", User: "root", Port: 22}
	expected := mustFingerprint(t, "fp-AAA")

	congruent := NewCongruenceReport(node, expected, expected, true)
	if !congruent.IsCongruent {
		t.Error("matching present fingerprint should be congruent")
	}

	mismatch := NewCongruenceReport(node, expected, mustFingerprint(t, "fp-BBB"), true)
	if mismatch.IsCongruent {
		t.Error("mismatched fingerprint should not be congruent")
	}

	unreachable := NewCongruenceReport(node, expected, Fingerprint{}, false)
	if unreachable.IsCongruent {
		t.Error("unreachable node should not be congruent")
	}
	if !unreachable.Unreachable() || unreachable.Details != "unreachable" {
		t.Errorf("unreachable report should report Unreachable()=true, got details %q", unreachable.Details)
	}
}

// TestPolicyDenyDominance covers property 3: an explicit deny always wins
// over any role grant.
func TestPolicyDenyDominance(t *testing.T) {
	p := NewPolicy().Bind("alice", RoleAdmin).Deny("alice", PermDeploy)

	if got := p.Authorize("alice", PermDeploy); got != Deny {
		t.Errorf("Authorize(alice, DEPLOY) = %s, want DENY (explicit deny should dominate admin grant)", got)
	}
	if got := p.Authorize("alice", PermView); got != Allow {
		t.Errorf("Authorize(alice, VIEW) = %s, want ALLOW (deny is scoped to DEPLOY only)", got)
	}
}

func TestPolicyUnknownSubjectAlwaysDenies(t *testing.T) {
	p := NewPolicy()
	if got := p.Authorize("ghost", PermView); got != Deny {
		t.Errorf("Authorize(ghost, VIEW) = %s, want DENY", got)
	}
}

func TestPolicyBuiltinRoles(t *testing.T) {
	p := NewPolicy().Bind("viewer-sub", RoleViewer).Bind("op-sub", RoleOperator).Bind("admin-sub", RoleAdmin)

	cases := []struct {
		subject SubjectID
		perm    Permission
		want    Decision
	}{
		{"viewer-sub", PermView, Allow},
		{"viewer-sub", PermDeploy, Deny},
		{"op-sub", PermDeploy, Allow},
		{"op-sub", PermRollback, Deny},
		{"admin-sub", PermRollback, Allow},
		{"admin-sub", PermHealRebuild, Allow},
	}
	for _, c := range cases {
		if got := p.Authorize(c.subject, c.perm); got != c.want {
			t.Errorf("Authorize(%s, %s) = %s, want %s", c.subject, c.perm, got, c.want)
		}
	}
}

func TestParseNodeDefaultsPort(t *testing.T) {
	n, err := ParseNode("root@n1")
	if err != nil {
		t.Fatalf("ParseNode: %v", err)
	}
	if n.Port != 22 {
		t.Errorf("default port = %d, want 22", n.Port)
	}
	if n.ID() != "root@n1:22" {
		t.Errorf("ID = %q", n.ID())
	}
}

func TestParseNodeExplicitPort(t *testing.T) {
	n, err := ParseNode("deploy@10.0.0.5:2222")
	if err != nil {
		t.Fatalf("ParseNode: %v", err)
	}
	if n.Port != 2222 || n.Host != "10.0.0.5" || n.User != "deploy" {
		t.Errorf("parsed node = %+v", n)
	}
}

func TestParseNodeRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "noat", "user@", "@host", "user@host:notaport"} {
		if _, err := ParseNode(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseNode(%q): err = %v, want ErrValidation", bad, err)
		}
	}
}

func TestPlaybookValidateRejectsDuplicateStepIDs(t *testing.T) {
	pb := Playbook{
		ID: "pb1", Name: "test", Version: "1",
		Steps: []Step{
			{ID: "s1", Action: Action{Kind: ActionExecShell, Cmd: "true"}, TimeoutSeconds: 5},
			{ID: "s1", Action: Action{Kind: ActionExecShell, Cmd: "false"}, TimeoutSeconds: 5},
		},
	}
	if _, err := pb.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate with duplicate step ids: err = %v, want ErrValidation", err)
	}
}

func TestPlaybookValidateRejectsUnknownAction(t *testing.T) {
	pb := Playbook{
		ID: "pb1", Name: "test", Version: "1",
		Steps: []Step{
			{ID: "s1", Action: Action{Kind: "bogus"}, TimeoutSeconds: 5},
		},
	}
	if _, err := pb.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("Validate with unknown action: err = %v, want ErrValidation", err)
	}
}

func TestPlaybookValidateChecksumDeterministic(t *testing.T) {
	pb := Playbook{
		ID: "pb1", Name: "test", Version: "1",
		Steps: []Step{
			{ID: "s1", Action: Action{Kind: ActionExecShell, Cmd: "true"}, TimeoutSeconds: 5},
		},
	}
	v1, err := pb.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	v2, err := pb.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v1.Checksum == "" {
		t.Fatal("checksum should be populated")
	}
	if v1.Checksum != v2.Checksum {
		t.Errorf("checksum not deterministic: %s != %s", v1.Checksum, v2.Checksum)
	}
}

func TestSLOBudgetConsumedAndViolated(t *testing.T) {
	slo, err := NewSLO("api", 0.99, 3600)
	if err != nil {
		t.Fatalf("NewSLO: %v", err)
	}
	for i := 0; i < 100; i++ {
		slo = slo.Observe(true)
	}
	for i := 0; i < 3; i++ {
		slo = slo.Observe(false)
	}
	// failureRate = 3/103 ~= 0.0291, errorBudget = 0.01 -> budgetConsumed ~= 2.91
	if !slo.Violated() {
		t.Errorf("budgetConsumed = %f, expected violation", slo.BudgetConsumed())
	}
}

func TestSLONoRequestsNotViolated(t *testing.T) {
	slo, err := NewSLO("api", 0.99, 3600)
	if err != nil {
		t.Fatalf("NewSLO: %v", err)
	}
	if slo.Violated() {
		t.Error("an SLO with no observations should not be violated")
	}
	if slo.Availability() != 1.0 {
		t.Errorf("availability = %f, want 1.0", slo.Availability())
	}
}
