package fleet

import "time"

// Timeouts holds the per-operation defaults from spec §5: build 300s, exec
// 120s, sync 600s. A stalled node must not block unrelated nodes — every
// fan-out site in this package applies these per-node, not fleet-wide.
type Timeouts struct {
	Build time.Duration
	Sync  time.Duration
	Exec  time.Duration
}

// DefaultTimeouts returns the spec §5 defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Build: 300 * time.Second,
		Sync:  600 * time.Second,
		Exec:  120 * time.Second,
	}
}
