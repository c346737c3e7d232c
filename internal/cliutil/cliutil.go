// Package cliutil holds small pure helpers shared by cmd/chimera's
// subcommands: exit-code mapping (spec §6.2) and target-list parsing.
package cliutil

import (
	"errors"

	"github.com/chimerahq/chimera/internal/domain"
)

// Exit codes per spec §6.2.
const (
	ExitSuccess              = 0
	ExitPartialFailure       = 1
	ExitInvalidArguments     = 2
	ExitAuthorizationDenied  = 3
)

// ExitCodeForDeployment maps a terminal Deployment plus a count of failed
// targets to the exit code a deploy/watch/rollback subcommand should use.
func ExitCodeForDeployment(status domain.DeploymentStatus, failedCount int) int {
	switch status {
	case domain.StatusCompleted:
		if failedCount > 0 {
			return ExitPartialFailure
		}
		return ExitSuccess
	case domain.StatusFailed, domain.StatusRolledBack:
		return ExitPartialFailure
	default:
		return ExitPartialFailure
	}
}

// ExitCodeForError maps a use-case error to an exit code, per the taxonomy
// in spec §7: AuthorizationDenied is its own code, Validation is invalid
// arguments, anything else is a partial/total failure.
func ExitCodeForError(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, domain.ErrAuthorizationDenied):
		return ExitAuthorizationDenied
	case errors.Is(err, domain.ErrValidation):
		return ExitInvalidArguments
	default:
		return ExitPartialFailure
	}
}

// ParseTargets parses a comma-separated TARGETS flag value into Nodes.
func ParseTargets(targets string) ([]domain.Node, error) {
	return domain.ParseTargets(targets)
}
