package main

import (
	"time"

	"github.com/chimerahq/chimera/internal/cliutil"
)

const (
	exitSuccess             = cliutil.ExitSuccess
	exitPartialFailure      = cliutil.ExitPartialFailure
	exitInvalidArguments    = cliutil.ExitInvalidArguments
	exitAuthorizationDenied = cliutil.ExitAuthorizationDenied
)

// shutdownGrace bounds how long a long-running subcommand (web, mcp, agent)
// waits for its server(s) to drain in-flight requests on SIGINT/SIGTERM.
const shutdownGrace = 5 * time.Second

// cliSubject is the operator identity attached to CLI-issued authorization
// checks. A real deployment would resolve this from the invoking user's
// session; Chimera's core only needs a SubjectID, so the CLI supplies a
// fixed one until an auth-bridging adapter is wired.
const cliSubject = "cli-operator"
