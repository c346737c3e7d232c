package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/chimerahq/chimera/internal/adapters/orchestratorgrpc"
	"github.com/chimerahq/chimera/internal/web"
)

func cmdWeb(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("web")
	addr := fs.String("addr", "", "listen address (default: config web.listen_addr)")
	configPath := fs.String("c", "", "config path")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return exitInvalidArguments, err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	listenAddr := cfg.Web.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}

	srv := web.New(a.registry, a.store, a.metrics)
	httpServer := &http.Server{Addr: listenAddr, Handler: srv}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("[chimera] dashboard listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("dashboard: %w", err)
			return
		}
		errCh <- nil
	}()

	// The orchestrator's gRPC endpoint is the same process's control-plane
	// side of the agent heartbeat/drift-report transport; it shares this
	// subcommand's lifetime since both read from and write to the same
	// registry.
	var grpcServer *orchestratorgrpc.Server
	if cfg.Agent.OrchestratorAddr != "" {
		grpcServer = orchestratorgrpc.NewServer(a.registry)
		go func() {
			if err := grpcServer.Serve(ctx, cfg.Agent.OrchestratorAddr); err != nil {
				errCh <- fmt.Errorf("orchestrator grpc: %w", err)
				return
			}
			errCh <- nil
		}()
	} else {
		errCh <- nil
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return exitPartialFailure, firstErr
	}
	return exitSuccess, nil
}
