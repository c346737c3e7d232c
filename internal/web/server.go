// Package web serves Chimera's operator dashboard: a small JSON API over
// fleet health, recent deployments, and the Prometheus metrics endpoint,
// routed with chi the way jordigilh-kubernaut's go.mod names it for exactly
// this kind of lightweight HTTP surface (the teacher itself has no HTTP
// layer to adapt, since its equivalent presentation surface is the
// checkin/gRPC transport, not a browser-facing dashboard).
package web

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chimerahq/chimera/internal/adapters/sqliterepo"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/registry"
)

// NodeHealth reports one registry-tracked node's derived status. Satisfied
// by *registry.Registry.
type NodeHealth interface {
	Nodes() []domain.Node
	Health(node domain.Node) registry.Health
}

// DeploymentHistory reports recently seen Deployment snapshots. Satisfied by
// *sqliterepo.Store.
type DeploymentHistory interface {
	RecentDeployments(ctx context.Context, limit int) ([]sqliterepo.DeploymentRecord, error)
}

// MetricsHandler is satisfied by internal/metrics.Registry.
type MetricsHandler interface {
	Handler() http.Handler
}

// Server wires the dashboard's dependencies behind a chi router.
type Server struct {
	router chi.Router
}

// New constructs the dashboard router. Any dependency may be nil, in which
// case its routes respond 503 rather than panic, so a partially-wired
// composition root (e.g. no metrics registry configured) still serves.
func New(nodes NodeHealth, deployments DeploymentHistory, metrics MetricsHandler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/nodes", func(w http.ResponseWriter, req *http.Request) {
			if nodes == nil {
				http.Error(w, "node registry not configured", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, nodeStatuses(nodes))
		})

		api.Get("/deployments/recent", func(w http.ResponseWriter, req *http.Request) {
			if deployments == nil {
				http.Error(w, "deployment history not configured", http.StatusServiceUnavailable)
				return
			}
			summaries, err := deployments.RecentDeployments(req.Context(), 50)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, summaries)
		})
	})

	if metrics != nil {
		r.Get("/metrics", metrics.Handler().ServeHTTP)
	}

	return &Server{router: r}
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type nodeStatus struct {
	ID     string          `json:"id"`
	Health registry.Health `json:"health"`
}

func nodeStatuses(nodes NodeHealth) []nodeStatus {
	all := nodes.Nodes()
	out := make([]nodeStatus, 0, len(all))
	for _, n := range all {
		out = append(out, nodeStatus{ID: n.ID(), Health: nodes.Health(n)})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
