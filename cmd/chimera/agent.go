package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chimerahq/chimera/internal/adapters/orchestratorgrpc"
	"github.com/chimerahq/chimera/internal/adapters/sqliterepo"
	"github.com/chimerahq/chimera/internal/domain"
)

func cmdAgent(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("agent")
	nodeFlag := fs.String("node-id", "", "this node's user@host[:port] identity")
	configPath := fs.String("c", "", "config path")
	heartbeat := fs.Int("heartbeat", 0, "heartbeat interval seconds (default: config agent.heartbeat_interval_seconds)")
	driftInterval := fs.Int("drift-interval", 60, "drift check interval seconds")
	noAutoHeal := fs.Bool("no-auto-heal", false, "report drift but never fetch/apply healing commands")
	fs.Parse(args)

	if *nodeFlag == "" {
		return exitInvalidArguments, fmt.Errorf("agent requires -node-id")
	}
	self, err := domain.ParseNode(*nodeFlag)
	if err != nil {
		return exitInvalidArguments, err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}
	if cfg.Agent.OrchestratorAddr == "" {
		return exitInvalidArguments, fmt.Errorf("config agent.orchestrator_addr must be set to run the agent command")
	}

	a, err := buildApp(cfg)
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	client, err := orchestratorgrpc.Dial(cfg.Agent.OrchestratorAddr)
	if err != nil {
		return exitPartialFailure, err
	}
	defer client.Close()

	orchestrator := sqliterepo.NewOutboxOrchestrator(client, a.store)

	heartbeatInterval := time.Duration(cfg.Agent.HeartbeatIntervalSeconds) * time.Second
	if *heartbeat > 0 {
		heartbeatInterval = time.Duration(*heartbeat) * time.Second
	}

	cfgPath, err := domain.NewConfigPath(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}
	expected, err := a.build.Build(ctx, cfgPath)
	if err != nil {
		return exitPartialFailure, fmt.Errorf("initial build: %w", err)
	}

	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()
	driftTicker := time.NewTicker(time.Duration(*driftInterval) * time.Second)
	defer driftTicker.Stop()

	log.Printf("[chimera] agent %s reporting to %s (heartbeat=%s drift=%ds)", self, cfg.Agent.OrchestratorAddr, heartbeatInterval, *driftInterval)

	for {
		select {
		case <-ctx.Done():
			return exitSuccess, nil

		case <-heartbeatTicker.C:
			if err := orchestrator.ReportHealth(ctx, self, true); err != nil {
				log.Printf("[agent] heartbeat failed: %v", err)
			}

		case <-driftTicker.C:
			actual, present, err := a.remote.CurrentFingerprint(ctx, self)
			if err != nil {
				log.Printf("[agent] fingerprint check failed: %v", err)
				continue
			}
			if !present {
				continue
			}
			if actual.Equal(expected) {
				continue
			}

			report := domain.DriftReport{
				Node:       self,
				Expected:   expected,
				Actual:     actual,
				Severity:   domain.SeverityMedium,
				DetectedAt: time.Now(),
			}
			if err := orchestrator.ReportDrift(ctx, report); err != nil {
				log.Printf("[agent] drift report failed: %v", err)
			}

			if *noAutoHeal {
				continue
			}
			action, ok, err := orchestrator.FetchHealingCommand(ctx, self)
			if err != nil {
				log.Printf("[agent] fetch healing command failed: %v", err)
				continue
			}
			if !ok {
				continue
			}
			log.Printf("[agent] applying healing command %s", action)
			if err := a.remote.Exec(ctx, self, string(action)); err != nil {
				log.Printf("[agent] healing command %s failed: %v", action, err)
				continue
			}
			if err := orchestrator.AcknowledgeHealing(ctx, self, action); err != nil {
				log.Printf("[agent] acknowledge healing failed: %v", err)
			}
		}
	}
}
