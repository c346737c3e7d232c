package drift

import (
	"math"

	"github.com/chimerahq/chimera/internal/domain"
)

// Config exposes the severity-classification thresholds from spec §4.3 as
// tunables, per the spec's Open Question (i) — implementers should expose
// these as configuration rather than baking them in.
type Config struct {
	// HighConsecutiveThreshold is the consecutive-drift-count at or above
	// which a production node is CRITICAL and any node is HIGH. Default 3.
	HighConsecutiveThreshold int
	// MediumConsecutiveThreshold is the consecutive-drift-count at or above
	// which a non-production node is MEDIUM. Default 2.
	MediumConsecutiveThreshold int
}

// DefaultConfig returns the spec §4.3 defaults.
func DefaultConfig() Config {
	return Config{HighConsecutiveThreshold: 3, MediumConsecutiveThreshold: 2}
}

// ClassifySeverity implements the pure rule from spec §4.3 step 2.
func (c Config) ClassifySeverity(production bool, consecutiveDriftCount int) domain.Severity {
	switch {
	case production && consecutiveDriftCount >= c.HighConsecutiveThreshold:
		return domain.SeverityCritical
	case production || consecutiveDriftCount >= c.HighConsecutiveThreshold:
		return domain.SeverityHigh
	case consecutiveDriftCount >= c.MediumConsecutiveThreshold:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// SuggestAction implements spec §4.3 step 4.
func SuggestAction(severity domain.Severity) domain.RemediationAction {
	switch severity {
	case domain.SeverityLow:
		return domain.ActionRestartService
	case domain.SeverityMedium, domain.SeverityHigh:
		return domain.ActionRebuildConfig
	case domain.SeverityCritical:
		return domain.ActionRollbackGeneration
	default:
		return domain.ActionManualIntervention
	}
}

// BlastRadiusPct computes 100 * nonCongruent/total, rounded half-up to one
// decimal place, per spec §4.3 step 3.
func BlastRadiusPct(total, nonCongruent int) float64 {
	if total == 0 {
		return 0
	}
	raw := 100.0 * float64(nonCongruent) / float64(total)
	return math.Round(raw*10) / 10
}

// RequiresApproval implements spec §4.3 step 5: true iff any severity is
// HIGH or CRITICAL.
func RequiresApproval(reports []domain.DriftReport) bool {
	for _, r := range reports {
		if r.Severity == domain.SeverityHigh || r.Severity == domain.SeverityCritical {
			return true
		}
	}
	return false
}
