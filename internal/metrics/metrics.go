// Package metrics exposes Prometheus counters and histograms for deploy,
// heal, and rollback outcomes, in the style of 99souls-ariadne's
// telemetry/metrics provider (a custom registry plus WithLabelValues
// vectors) but scoped to Chimera's concrete outcome types instead of a
// generic instrumentation facade, since the teacher itself has no telemetry
// layer to generalize from.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chimerahq/chimera/internal/domain"
)

// Registry holds every Chimera metric behind its own Prometheus registry, so
// internal/web can mount Handler() without pulling in the global default
// registry's process/Go runtime series unless it chooses to.
type Registry struct {
	reg *prometheus.Registry

	deploysTotal    *prometheus.CounterVec
	healsTotal      *prometheus.CounterVec
	rollbacksTotal  *prometheus.CounterVec
	driftChecks     *prometheus.CounterVec
	playbookLatency *prometheus.HistogramVec
	fleetSize       prometheus.Gauge
}

// New builds a Registry with every metric pre-registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		deploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "deployments_total",
			Help:      "Deploy Fleet outcomes by terminal status.",
		}, []string{"status"}),
		healsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "heals_total",
			Help:      "Autonomous Loop remediation dispatches by action and outcome.",
		}, []string{"action", "outcome"}),
		rollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "rollbacks_total",
			Help:      "Rollback use case outcomes by node result.",
		}, []string{"result"}),
		driftChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chimera",
			Name:      "drift_checks_total",
			Help:      "Congruence checks by severity classification.",
		}, []string{"severity"}),
		playbookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chimera",
			Name:      "playbook_run_duration_seconds",
			Help:      "Playbook run wall time by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		fleetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chimera",
			Name:      "fleet_size",
			Help:      "Number of nodes currently tracked by the Agent Registry.",
		}),
	}

	reg.MustRegister(r.deploysTotal, r.healsTotal, r.rollbacksTotal, r.driftChecks, r.playbookLatency, r.fleetSize)
	return r
}

// Handler exposes the registry's series over HTTP for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveDeployment records a Deploy Fleet terminal status.
func (r *Registry) ObserveDeployment(status domain.DeploymentStatus) {
	r.deploysTotal.WithLabelValues(string(status)).Inc()
}

// ObserveHeal records an Autonomous Loop remediation dispatch.
func (r *Registry) ObserveHeal(action domain.RemediationAction, succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	r.healsTotal.WithLabelValues(string(action), outcome).Inc()
}

// ObserveRollback records one node's rollback result.
func (r *Registry) ObserveRollback(succeeded bool) {
	result := "success"
	if !succeeded {
		result = "failure"
	}
	r.rollbacksTotal.WithLabelValues(result).Inc()
}

// ObserveDriftCheck records a congruence check's severity classification.
func (r *Registry) ObserveDriftCheck(severity domain.Severity) {
	r.driftChecks.WithLabelValues(string(severity)).Inc()
}

// ObservePlaybookRun records a playbook run's wall-clock duration in seconds.
func (r *Registry) ObservePlaybookRun(seconds float64, succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "failure"
	}
	r.playbookLatency.WithLabelValues(outcome).Observe(seconds)
}

// SetFleetSize updates the gauge of currently tracked nodes.
func (r *Registry) SetFleetSize(n int) {
	r.fleetSize.Set(float64(n))
}
