package domain

import "errors"

// Error taxonomy per spec §7. These are sentinels wrapped with fmt.Errorf
// so callers can errors.Is() against the kind while still getting a
// descriptive message.
var (
	// ErrValidation marks invalid input at entry — malformed target, empty
	// fingerprint, unknown permission. Never propagated as an internal error.
	ErrValidation = errors.New("validation")

	// ErrAuthorizationDenied marks a Policy engine DENY. The use case aborts
	// cleanly and emits no state-change event.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrInvalidStateTransition marks an illegal Deployment transition. This
	// is a caller bug — it should be raised, not swallowed.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrPortFailure marks an underlying adapter failure (build, sync, exec,
	// network). Per-node; never aborts a fan-out of sibling operations.
	ErrPortFailure = errors.New("port failure")

	// ErrTimeout is a typed PortFailure subkind.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled marks cooperative cancellation.
	ErrCancelled = errors.New("cancelled")
)
