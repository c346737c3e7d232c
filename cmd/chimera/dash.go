package main

import (
	"context"
	"fmt"
	"time"

	"github.com/chimerahq/chimera/internal/analytics"
	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/config"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/rootcause"
)

func cmdDash(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("dash")
	targets := fs.String("t", "", "comma-separated user@host[:port] targets")
	fs.Parse(args)

	nodes, err := cliutil.ParseTargets(*targets)
	if err != nil {
		return exitInvalidArguments, err
	}

	a, err := buildApp(config.Default())
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	now := time.Now()

	// fleetDrift feeds the FLEET_WIDE root-cause signal: every currently
	// known node's last drift report, regardless of whether it's one of
	// this invocation's -t targets.
	var fleetDrift []domain.DriftReport
	for _, n := range a.registry.Nodes() {
		if report, ok := a.registry.LastDrift(n); ok {
			fleetDrift = append(fleetDrift, report)
		}
	}

	fmt.Printf("%-32s %-12s %-8s %s\n", "NODE", "HEALTH", "RISK", "LAST DRIFT / LIKELY CAUSE")
	for _, n := range nodes {
		health := a.registry.Health(n)
		report, hasDrift := a.registry.LastDrift(n)

		driftDesc := "-"
		riskBand := analytics.BandLow
		if hasDrift {
			driftDesc = fmt.Sprintf("%s (%s)", report.Severity, report.SuggestedAction)

			// The registry only retains a node's most recent drift report, not
			// a full time series, so risk/root-cause here reason from that
			// single observation repeated by its consecutive-drift count —
			// an approximation of recency/frequency, not a true history.
			count := a.registry.ConsecutiveDriftCount(n)
			if count < 1 {
				count = 1
			}
			history := make([]analytics.DriftObservation, count)
			for i := range history {
				history[i] = analytics.DriftObservation{At: report.DetectedAt, Severity: report.Severity}
			}
			score := analytics.Compute(history, nil, nil, now)
			riskBand = score.Band

			causes := rootcause.Correlate(report, nil, fleetDrift, historyAsDriftReports(report, count), now, rootcause.DefaultConfig())
			if len(causes) > 0 && causes[0].Kind != rootcause.KindUnknown {
				driftDesc += fmt.Sprintf(" [%s: %s]", causes[0].Kind, causes[0].Evidence)
			}
		}

		fmt.Printf("%-32s %-12s %-8s %s\n", n.ID(), health, riskBand, driftDesc)
	}

	if snap, err := a.slo.Snapshot(deploymentSLOName); err == nil {
		violated, _ := a.slo.Violated(deploymentSLOName)
		fmt.Printf("\n%s SLO: availability=%.2f%% budget_consumed=%.1f%% violated=%v\n",
			deploymentSLOName, snap.Availability()*100, snap.BudgetConsumed()*100, violated)
	}

	recent, err := a.store.RecentDeployments(ctx, 5)
	if err != nil {
		return exitPartialFailure, err
	}
	if len(recent) > 0 {
		fmt.Println()
		fmt.Println("recent deployments:")
		for _, d := range recent {
			fmt.Printf("  %s  %s  %s\n", d.SessionID, d.Status, d.UpdatedAt)
		}
	}

	return exitSuccess, nil
}

// historyAsDriftReports repeats focal's own last drift report count times,
// standing in for this node's drift history in the REPEATED_DRIFT
// root-cause check, for the same reason analytics.Compute above only has a
// single observation to work from.
func historyAsDriftReports(focal domain.DriftReport, count int) []domain.DriftReport {
	out := make([]domain.DriftReport, count)
	for i := range out {
		out[i] = focal
	}
	return out
}
