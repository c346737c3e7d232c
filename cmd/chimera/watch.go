package main

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/autoloop"
	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/domain"
)

func cmdWatch(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("watch")
	targets := fs.String("t", "", "comma-separated user@host[:port] targets")
	configPath := fs.String("c", "", "config path")
	interval := fs.Int("i", 30, "poll interval seconds")
	session := fs.String("s", "chimera-watch", "session name")
	once := fs.Bool("once", false, "run a single check-heal cycle and exit")
	restartCmd := fs.String("restart-cmd", "systemctl restart chimera-target", "command run on RESTART_SERVICE healing")
	rebuildCmd := fs.String("rebuild-cmd", "systemctl reload chimera-target", "command run after REBUILD_CONFIG resync")
	fs.Parse(args)

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

	if a.policy.Authorize(cliSubject, domain.PermHealRestart) == domain.Deny {
		return exitAuthorizationDenied, fmt.Errorf("%w: watch", domain.ErrAuthorizationDenied)
	}

	cfgPath, err := domain.NewConfigPath(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}

	params := autoloop.Params{
		ConfigPath:      cfgPath,
		Targets:         nodes,
		IntervalSeconds: *interval,
		SessionName:     *session,
		Once:            *once,
		Subject:         cliSubject,
		RestartCommand:  *restartCmd,
		RebuildCommand:  *rebuildCmd,
	}

	if err := a.autoloop.Run(ctx, params); err != nil {
		return exitPartialFailure, err
	}
	return exitSuccess, nil
}
