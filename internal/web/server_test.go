package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chimerahq/chimera/internal/adapters/sqliterepo"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/registry"
)

type fakeNodeHealth struct{ nodes []domain.Node }

func (f fakeNodeHealth) Nodes() []domain.Node { return f.nodes }
func (f fakeNodeHealth) Health(n domain.Node) registry.Health {
	return registry.HealthHealthy
}

type fakeDeploymentHistory struct {
	records []sqliterepo.DeploymentRecord
	err     error
}

func (f fakeDeploymentHistory) RecentDeployments(ctx context.Context, limit int) ([]sqliterepo.DeploymentRecord, error) {
	return f.records, f.err
}

func TestHealthzReturnsOK(t *testing.T) {
	s := New(nil, nil, nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNodesEndpointServesRegisteredNodes(t *testing.T) {
	n1, _ := domain.ParseNode("root@n1:22")
	s := New(fakeNodeHealth{nodes: []domain.Node{n1}}, nil, nil)

	req := httptest.NewRequest("GET", "/api/nodes", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "n1") {
		t.Errorf("body = %s, want node n1 present", rec.Body.String())
	}
}

func TestDeploymentsRecentEndpointUnconfiguredReturns503(t *testing.T) {
	s := New(nil, nil, nil)
	req := httptest.NewRequest("GET", "/api/deployments/recent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestDeploymentsRecentEndpointServesRecords(t *testing.T) {
	hist := fakeDeploymentHistory{records: []sqliterepo.DeploymentRecord{
		{SessionID: "s1", Status: domain.StatusCompleted},
	}}
	s := New(nil, hist, nil)

	req := httptest.NewRequest("GET", "/api/deployments/recent", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "s1") {
		t.Errorf("body = %s, want session s1 present", rec.Body.String())
	}
}
