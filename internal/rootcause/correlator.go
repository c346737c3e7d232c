// Package rootcause implements the Root-Cause Correlator (spec §4.6):
// correlates temporal, spatial, and deployment signals around a focal drift
// report into a ranked list of candidate causes.
package rootcause

import (
	"sort"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

// Kind tags a CandidateCause's category.
type Kind string

const (
	KindRecentDeployment Kind = "RECENT_DEPLOYMENT"
	KindFleetWide        Kind = "FLEET_WIDE"
	KindRepeatedDrift    Kind = "REPEATED_DRIFT"
	KindUnknown          Kind = "UNKNOWN"
)

// kindOrder is the spec §4.6 tiebreak ordering, used when two candidates
// land at the same confidence.
var kindOrder = map[Kind]int{
	KindRecentDeployment: 0,
	KindFleetWide:        1,
	KindRepeatedDrift:    2,
	KindUnknown:          3,
}

// CandidateCause is one ranked explanation for a drift event.
type CandidateCause struct {
	Kind       Kind
	Evidence   string
	Confidence float64 // in [0,1]
}

// Config exposes the window tunables from spec §4.6.
type Config struct {
	DeploymentWindowSeconds int // default 3600
	SpatialWindowSeconds    int // default 600
}

// DefaultConfig returns the spec §4.6 defaults.
func DefaultConfig() Config {
	return Config{DeploymentWindowSeconds: 3600, SpatialWindowSeconds: 600}
}

// DeploymentSignal is a completed deployment on some node, used to detect a
// RECENT_DEPLOYMENT cause.
type DeploymentSignal struct {
	NodeID      string
	CompletedAt time.Time
}

// Correlate ranks candidate causes for focal given three signal sources:
// recentDeployments (any node, for the RECENT_DEPLOYMENT check),
// fleetDrift (other nodes' current drift reports, for FLEET_WIDE), and
// nodeHistory (focal.Node's own prior drift reports, for REPEATED_DRIFT).
// UNKNOWN is always appended as a low-confidence floor.
func Correlate(focal domain.DriftReport, recentDeployments []DeploymentSignal, fleetDrift []domain.DriftReport, nodeHistory []domain.DriftReport, now time.Time, cfg Config) []CandidateCause {
	var candidates []CandidateCause

	if c, ok := recentDeploymentCause(focal, recentDeployments, now, cfg); ok {
		candidates = append(candidates, c)
	}
	if c, ok := fleetWideCause(focal, fleetDrift, now, cfg); ok {
		candidates = append(candidates, c)
	}
	if c, ok := repeatedDriftCause(focal, nodeHistory, now); ok {
		candidates = append(candidates, c)
	}

	candidates = append(candidates, CandidateCause{
		Kind:       KindUnknown,
		Evidence:   "no stronger correlated signal found",
		Confidence: 0.05,
	})

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return kindOrder[candidates[i].Kind] < kindOrder[candidates[j].Kind]
	})
	return candidates
}

func recentDeploymentCause(focal domain.DriftReport, deployments []DeploymentSignal, now time.Time, cfg Config) (CandidateCause, bool) {
	window := time.Duration(cfg.DeploymentWindowSeconds) * time.Second
	var best *DeploymentSignal
	for i, d := range deployments {
		if d.NodeID != focal.Node.ID() {
			continue
		}
		age := now.Sub(d.CompletedAt)
		if age < 0 || age > window {
			continue
		}
		if best == nil || d.CompletedAt.After(best.CompletedAt) {
			best = &deployments[i]
		}
	}
	if best == nil {
		return CandidateCause{}, false
	}
	age := now.Sub(best.CompletedAt)
	confidence := 1.0 - age.Seconds()/window.Seconds()
	if confidence < 0 {
		confidence = 0
	}
	return CandidateCause{
		Kind:       KindRecentDeployment,
		Evidence:   "deployment completed on this node " + age.Round(time.Second).String() + " ago",
		Confidence: confidence,
	}, true
}

func fleetWideCause(focal domain.DriftReport, fleetDrift []domain.DriftReport, now time.Time, cfg Config) (CandidateCause, bool) {
	window := time.Duration(cfg.SpatialWindowSeconds) * time.Second
	count := 0
	for _, r := range fleetDrift {
		if r.Node.Equal(focal.Node) {
			continue
		}
		if !r.Actual.Equal(focal.Actual) {
			continue
		}
		age := now.Sub(r.DetectedAt)
		if age < 0 || age > window {
			continue
		}
		count++
	}
	if count == 0 {
		return CandidateCause{}, false
	}
	confidence := 0.2 * float64(count)
	if confidence > 1 {
		confidence = 1
	}
	return CandidateCause{
		Kind:       KindFleetWide,
		Evidence:   "other nodes show the same drifted fingerprint",
		Confidence: confidence,
	}, true
}

func repeatedDriftCause(focal domain.DriftReport, nodeHistory []domain.DriftReport, now time.Time) (CandidateCause, bool) {
	cutoff := now.Add(-24 * time.Hour)
	count := 0
	for _, r := range nodeHistory {
		if r.DetectedAt.After(cutoff) {
			count++
		}
	}
	if count < 2 {
		return CandidateCause{}, false
	}
	confidence := 0.15 * float64(count)
	if confidence > 1 {
		confidence = 1
	}
	return CandidateCause{
		Kind:       KindRepeatedDrift,
		Evidence:   "node has repeated drift in the last 24h",
		Confidence: confidence,
	}, true
}
