package domain

import "fmt"

// SLO counts requests against a target availability over a window of
// WindowSeconds; internal/slo resets the counters once that window has
// elapsed (a fixed window, not a rolling one).
type SLO struct {
	Name            string
	Target          float64 // in [0,1]
	WindowSeconds   int
	TotalRequests   int64
	FailedRequests  int64
}

// NewSLO validates and constructs a fresh SLO with zeroed counters.
func NewSLO(name string, target float64, windowSeconds int) (SLO, error) {
	if name == "" {
		return SLO{}, fmt.Errorf("%w: slo name must not be empty", ErrValidation)
	}
	if target < 0 || target > 1 {
		return SLO{}, fmt.Errorf("%w: slo target must be in [0,1], got %f", ErrValidation, target)
	}
	if windowSeconds <= 0 {
		return SLO{}, fmt.Errorf("%w: slo window must be positive", ErrValidation)
	}
	return SLO{Name: name, Target: target, WindowSeconds: windowSeconds}, nil
}

// Availability is 1 - failed/total. Returns 1.0 when there have been no
// requests yet — an empty window has not violated anything.
func (s SLO) Availability() float64 {
	if s.TotalRequests == 0 {
		return 1.0
	}
	return 1.0 - float64(s.FailedRequests)/float64(s.TotalRequests)
}

// ErrorBudget is the tolerated unavailability implied by Target.
func (s SLO) ErrorBudget() float64 {
	return 1.0 - s.Target
}

// BudgetConsumed is the fraction of the error budget spent so far.
func (s SLO) BudgetConsumed() float64 {
	budget := s.ErrorBudget()
	if budget <= 0 {
		if s.FailedRequests > 0 {
			return 1.0
		}
		return 0
	}
	if s.TotalRequests == 0 {
		return 0
	}
	failureRate := float64(s.FailedRequests) / float64(s.TotalRequests)
	return failureRate / budget
}

// Violated reports whether the consumed budget exceeds 1.0.
func (s SLO) Violated() bool {
	return s.BudgetConsumed() > 1.0
}

// Observe records a single outcome, returning a new SLO with updated counters.
func (s SLO) Observe(ok bool) SLO {
	out := s
	out.TotalRequests++
	if !ok {
		out.FailedRequests++
	}
	return out
}

// Reset returns a new SLO with counters zeroed, used when a window elapses.
func (s SLO) Reset() SLO {
	out := s
	out.TotalRequests = 0
	out.FailedRequests = 0
	return out
}
