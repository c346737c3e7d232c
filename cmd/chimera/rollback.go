package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/config"
	"github.com/chimerahq/chimera/internal/domain"
)

func cmdRollback(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("rollback")
	targets := fs.String("t", "", "comma-separated user@host[:port] targets")
	gen := fs.String("g", "", "generation to roll back to (default: prior)")
	fs.Parse(args)

	nodes, err := cliutil.ParseTargets(*targets)
	if err != nil {
		return exitInvalidArguments, err
	}

	var generation *int
	if *gen != "" {
		g, err := strconv.Atoi(*gen)
		if err != nil {
			return exitInvalidArguments, fmt.Errorf("invalid -g generation %q: %w", *gen, err)
		}
		generation = &g
	}

	a, err := buildApp(config.Default())
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	if a.policy.Authorize(cliSubject, domain.PermRollback) == domain.Deny {
		return exitAuthorizationDenied, fmt.Errorf("%w: rollback", domain.ErrAuthorizationDenied)
	}

	outcomes := a.rollback.Execute(ctx, nodes, generation)

	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
			fmt.Printf("FAILED %s: %s\n", o.Node, o.Reason)
		} else {
			fmt.Printf("OK %s\n", o.Node)
		}
	}
	a.metrics.ObserveRollback(failed == 0)
	_ = a.slo.Record(deploymentSLOName, failed == 0)

	if failed > 0 {
		return exitPartialFailure, nil
	}
	return exitSuccess, nil
}
