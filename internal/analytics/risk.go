// Package analytics implements the Predictive Analytics component (spec
// §4.5): a pure per-node risk score derived from drift history, severity
// trend, and MTTR samples. Every function here tolerates empty input —
// an idle node's risk score is 0, band LOW.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
)

// DriftObservation is one entry in a node's drift history.
type DriftObservation struct {
	At       time.Time
	Severity domain.Severity
}

// RiskBand buckets a risk score for display/alerting.
type RiskBand string

const (
	BandLow    RiskBand = "LOW"
	BandMedium RiskBand = "MEDIUM"
	BandHigh   RiskBand = "HIGH"
)

// Score is the full predictive analytics output for one node.
type Score struct {
	DriftFrequency float64
	SeverityTrend  float64
	MTTRMinutes    float64 // math.Inf(1) sentinel if no samples
	RiskScore      float64
	Band           RiskBand
}

func severityValue(s domain.Severity) float64 {
	switch s {
	case domain.SeverityCritical:
		return 3
	case domain.SeverityHigh:
		return 2
	case domain.SeverityMedium:
		return 1
	default:
		return 0
	}
}

// driftFrequency is driftsInLast7Days / 7.0.
func driftFrequency(history []DriftObservation, now time.Time) float64 {
	cutoff := now.Add(-7 * 24 * time.Hour)
	count := 0
	for _, h := range history {
		if h.At.After(cutoff) {
			count++
		}
	}
	return float64(count) / 7.0
}

// severityTrend computes a Spearman-like monotone score over the last N=10
// events, normalized to [-1, 1]: +1 means severity has been strictly
// worsening over time, -1 strictly improving, 0 no correlation (or fewer
// than 2 events to compare).
func severityTrend(history []DriftObservation) float64 {
	const n = 10
	recent := history
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	if len(recent) < 2 {
		return 0
	}

	xs := make([]float64, len(recent)) // time order: 0..k-1
	ys := make([]float64, len(recent)) // severity values
	for i, obs := range recent {
		xs[i] = float64(i)
		ys[i] = severityValue(obs.Severity)
	}

	xRank := rank(xs)
	yRank := rank(ys)
	return spearman(xRank, yRank)
}

// rank assigns average ranks, handling ties the standard way.
func rank(values []float64) []float64 {
	type indexed struct {
		v   float64
		idx int
	}
	idxs := make([]indexed, len(values))
	for i, v := range values {
		idxs[i] = indexed{v, i}
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i].v < idxs[j].v })

	ranks := make([]float64, len(values))
	i := 0
	for i < len(idxs) {
		j := i
		for j < len(idxs) && idxs[j].v == idxs[i].v {
			j++
		}
		// average rank for the tied block [i, j)
		avgRank := float64(i+j-1)/2.0 + 1.0
		for k := i; k < j; k++ {
			ranks[idxs[k].idx] = avgRank
		}
		i = j
	}
	return ranks
}

// spearman computes the Spearman rank correlation coefficient for two
// already-ranked series of equal length.
func spearman(xRank, yRank []float64) float64 {
	n := float64(len(xRank))
	if n < 2 {
		return 0
	}
	xFlat, yFlat := true, true
	for i := range xRank {
		xFlat = xFlat && xRank[i] == xRank[0]
		yFlat = yFlat && yRank[i] == yRank[0]
	}
	if xFlat || yFlat {
		return 0 // a constant series has no rank correlation
	}
	var sumD2 float64
	for i := range xRank {
		d := xRank[i] - yRank[i]
		sumD2 += d * d
	}
	denom := n * (n*n - 1)
	if denom == 0 {
		return 0
	}
	rho := 1 - (6*sumD2)/denom
	if math.IsNaN(rho) {
		return 0
	}
	return rho
}

// mttrMinutes is the median of MTTR samples (in minutes) observed in the
// last 30 days, or +Inf if there are none.
func mttrMinutes(samples []float64, sampleTimes []time.Time, now time.Time) float64 {
	cutoff := now.Add(-30 * 24 * time.Hour)
	var recent []float64
	for i, t := range sampleTimes {
		if i < len(samples) && t.After(cutoff) {
			recent = append(recent, samples[i])
		}
	}
	if len(recent) == 0 {
		return math.Inf(1)
	}
	sort.Float64s(recent)
	mid := len(recent) / 2
	if len(recent)%2 == 1 {
		return recent[mid]
	}
	return (recent[mid-1] + recent[mid]) / 2.0
}

// norm clamps x/c to at most 1.
func norm(x, c float64) float64 {
	if c == 0 {
		return 0
	}
	v := x / c
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func bandFor(score float64) RiskBand {
	switch {
	case score < 0.33:
		return BandLow
	case score < 0.66:
		return BandMedium
	default:
		return BandHigh
	}
}

// Compute produces the full risk Score for a node, per spec §4.5's formula:
//
//	riskScore = clamp(0.4*norm(driftFrequency, 5/day) + 0.3*max(severityTrend,0) + 0.3*norm(mttrMinutes, 60min), 0, 1)
func Compute(history []DriftObservation, mttrSamples []float64, mttrSampleTimes []time.Time, now time.Time) Score {
	if len(history) == 0 {
		return Score{MTTRMinutes: math.Inf(1), RiskScore: 0, Band: BandLow}
	}

	freq := driftFrequency(history, now)
	trend := severityTrend(history)
	mttr := mttrMinutes(mttrSamples, mttrSampleTimes, now)

	trendTerm := trend
	if trendTerm < 0 {
		trendTerm = 0
	}

	mttrTerm := norm(mttr, 60) // the +Inf sentinel (no samples) saturates at 1

	score := clamp01(0.4*norm(freq, 5.0) + 0.3*trendTerm + 0.3*mttrTerm)

	return Score{
		DriftFrequency: freq,
		SeverityTrend:  trend,
		MTTRMinutes:    mttr,
		RiskScore:      score,
		Band:           bandFor(score),
	}
}
