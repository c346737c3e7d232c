package main

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/domain"
)

func cmdDeploy(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("deploy")
	targets := fs.String("t", "", "comma-separated user@host[:port] targets")
	configPath := fs.String("c", "", "config path")
	session := fs.String("s", "chimera-deploy", "session name")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		return exitInvalidArguments, fmt.Errorf("deploy requires a CMD argument")
	}
	cmd := rest[0]

	nodes, err := cliutil.ParseTargets(*targets)
	if err != nil {
		return exitInvalidArguments, err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	if a.policy.Authorize(cliSubject, domain.PermDeploy) == domain.Deny {
		return exitAuthorizationDenied, fmt.Errorf("%w: deploy", domain.ErrAuthorizationDenied)
	}

	cfgPath, err := domain.NewConfigPath(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}

	result, err := a.fleet.Execute(ctx, *session, cfgPath, cmd, nodes)
	if err != nil {
		return exitPartialFailure, err
	}
	a.metrics.ObserveDeployment(result.Deployment.Status)
	if err := a.store.SaveDeployment(ctx, result.Deployment); err != nil {
		return exitPartialFailure, err
	}
	_ = a.slo.Record(deploymentSLOName, result.Deployment.Status == domain.StatusCompleted)

	failed := 0
	for _, o := range result.Outcomes {
		if !o.OK {
			failed++
			fmt.Printf("FAILED %s (%s): %s\n", o.Node, o.Stage, o.Reason)
		} else {
			fmt.Printf("OK %s\n", o.Node)
		}
	}
	return cliutil.ExitCodeForDeployment(result.Deployment.Status, failed), nil
}
