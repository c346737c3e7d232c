// Package drift implements the Drift Detection Service (spec §4.3):
// congruence → severity → blast radius → healing plan.
package drift

import (
	"context"
	"sync"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// History supplies the per-node environment/history facts the severity
// classifier needs — whether a node is tagged production, and how many
// consecutive drift observations it has. The Agent Registry (internal/registry)
// is the production implementation; tests can supply a fake.
type History interface {
	IsProduction(node domain.Node) bool
	ConsecutiveDriftCount(node domain.Node) int
}

// Service runs the concurrent congruence check and produces a HealingPlan.
type Service struct {
	executor ports.RemoteExecutorPort
	history  History
	cfg      Config
}

// New constructs a drift detection Service.
func New(executor ports.RemoteExecutorPort, history History, cfg Config) *Service {
	return &Service{executor: executor, history: history, cfg: cfg}
}

// congruenceResult pairs a node's index (to preserve deterministic ordering
// in the output) with its computed report.
type congruenceResult struct {
	index  int
	report domain.CongruenceReport
}

// CheckCongruence fans out CurrentFingerprint calls across nodes
// concurrently (spec §4.3 step 1) and returns one CongruenceReport per node,
// in input order. A per-node PortFailure (not "node unreachable" — an actual
// adapter error) is folded into an unreachable report so the fan-out never
// aborts on a single node's failure.
func (s *Service) CheckCongruence(ctx context.Context, nodes []domain.Node, expected domain.Fingerprint) []domain.CongruenceReport {
	results := make([]congruenceResult, len(nodes))
	var wg sync.WaitGroup
	wg.Add(len(nodes))

	for i, node := range nodes {
		i, node := i, node
		go func() {
			defer wg.Done()
			actual, present, err := s.executor.CurrentFingerprint(ctx, node)
			if err != nil {
				present = false
			}
			results[i] = congruenceResult{
				index:  i,
				report: domain.NewCongruenceReport(node, expected, actual, present),
			}
		}()
	}
	wg.Wait()

	reports := make([]domain.CongruenceReport, len(nodes))
	for _, r := range results {
		reports[r.index] = r.report
	}
	return reports
}

// Check runs the full algorithm from spec §4.3: congruence, severity
// classification, blast radius, suggested action, and the resulting
// HealingPlan.
func (s *Service) Check(ctx context.Context, nodes []domain.Node, expected domain.Fingerprint) domain.HealingPlan {
	congruence := s.CheckCongruence(ctx, nodes, expected)

	var driftReports []domain.DriftReport
	nonCongruent := 0
	for _, c := range congruence {
		if c.IsCongruent {
			continue
		}
		nonCongruent++

		// Unreachable nodes count toward blast radius but are not heal
		// targets themselves (spec §4.3: "Fetch failures ... are not
		// themselves heal targets").
		if c.Unreachable() {
			continue
		}

		production := s.history.IsProduction(c.Node)
		consecutive := s.history.ConsecutiveDriftCount(c.Node)
		severity := s.cfg.ClassifySeverity(production, consecutive)

		driftReports = append(driftReports, domain.DriftReport{
			Node:            c.Node,
			Expected:        c.Expected,
			Actual:          c.Actual,
			Severity:        severity,
			SuggestedAction: SuggestAction(severity),
			DetectedAt:      time.Now().UTC(),
		})
	}

	blastRadius := BlastRadiusPct(len(nodes), nonCongruent)
	for i := range driftReports {
		driftReports[i].BlastRadiusPct = blastRadius
	}

	return domain.HealingPlan{
		DriftReports:     driftReports,
		GlobalAction:     mostSevereAction(driftReports),
		RequiresApproval: RequiresApproval(driftReports),
	}
}

// mostSevereAction picks the suggested action of the most severe drift
// report, which is what the Autonomous Loop (spec §4.10) dispatches on.
func mostSevereAction(reports []domain.DriftReport) domain.RemediationAction {
	if len(reports) == 0 {
		return ""
	}
	worst := reports[0]
	for _, r := range reports[1:] {
		if r.Severity.MoreSevereThan(worst.Severity) {
			worst = r
		}
	}
	return worst.SuggestedAction
}
