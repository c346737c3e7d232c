package main

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/localdeploy"
)

func cmdRun(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("run")
	configPath := fs.String("c", "", "config path")
	session := fs.String("s", "chimera-run", "session name")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		return exitInvalidArguments, fmt.Errorf("run requires a CMD argument")
	}
	cmd := rest[0]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	cfgPath, err := domain.NewConfigPath(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}

	ld := localdeploy.New(a.session, a.bus)
	dep, ok, err := ld.Execute(ctx, *session, cfgPath, cmd)
	if err != nil {
		return exitPartialFailure, err
	}
	a.metrics.ObserveDeployment(dep.Status)
	if err := a.store.SaveDeployment(ctx, dep); err != nil {
		return exitPartialFailure, err
	}
	_ = a.slo.Record(deploymentSLOName, dep.Status == domain.StatusCompleted)

	failed := 0
	if !ok {
		failed = 1
	}
	return cliutil.ExitCodeForDeployment(dep.Status, failed), nil
}
