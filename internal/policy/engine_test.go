package policy

import (
	"testing"

	"github.com/chimerahq/chimera/internal/domain"
)

func TestEngineDenyDominatesBinding(t *testing.T) {
	e := New()
	e.Bind("alice", domain.RoleAdmin)
	e.Deny("alice", domain.PermRollback)

	if got := e.Authorize("alice", domain.PermRollback); got != domain.Deny {
		t.Errorf("Authorize = %s, want DENY", got)
	}
	if got := e.Authorize("alice", domain.PermDeploy); got != domain.Allow {
		t.Errorf("Authorize = %s, want ALLOW", got)
	}
}

func TestEngineRevokeDenyRestoresGrant(t *testing.T) {
	e := New()
	e.Bind("bob", domain.RoleOperator)
	e.Deny("bob", domain.PermDeploy)
	if got := e.Authorize("bob", domain.PermDeploy); got != domain.Deny {
		t.Fatalf("Authorize = %s, want DENY before revoke", got)
	}
	e.RevokeDeny("bob", domain.PermDeploy)
	if got := e.Authorize("bob", domain.PermDeploy); got != domain.Allow {
		t.Errorf("Authorize = %s, want ALLOW after revoke", got)
	}
}

func TestEngineSnapshotIsIndependentOfSubsequentMutation(t *testing.T) {
	e := New()
	e.Bind("carol", domain.RoleViewer)
	snap := e.Snapshot()

	e.Bind("carol", domain.RoleAdmin)

	if got := snap.Authorize("carol", domain.PermDeploy); got != domain.Deny {
		t.Errorf("snapshot should not observe later mutations, got %s", got)
	}
	if got := e.Authorize("carol", domain.PermDeploy); got != domain.Allow {
		t.Errorf("live engine should observe the admin grant, got %s", got)
	}
}
