package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	gosdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chimerahq/chimera/internal/cliutil"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/mcpserver"
)

func cmdMCP(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("mcp")
	addr := fs.String("addr", "", "listen address (default: config mcp.listen_addr)")
	configPath := fs.String("c", "", "config path")
	targets := fs.String("t", "", "comma-separated user@host[:port] targets available to check_congruence")
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

	var fp domain.Fingerprint
	cfgPath, err := domain.NewConfigPath(*configPath)
	if err == nil {
		if built, buildErr := a.build.Build(ctx, cfgPath); buildErr == nil {
			fp = built
		}
	}

	srv := mcpserver.NewServer(mcpserver.Deps{
		Fleet:       a.fleet,
		Rollback:    a.rollback,
		Drift:       a.drift,
		Registry:    a.registry,
		Deployments: a.store,
		Targets:     nodes,
		Fingerprint: fp,
	})

	// StreamableHTTP is the go-sdk's documented transport for exposing an
	// mcp.Server over plain HTTP; getServer returns the same server for
	// every request since Chimera's MCP surface has no per-connection state.
	handler := gosdkmcp.NewStreamableHTTPHandler(func(*http.Request) *gosdkmcp.Server {
		return srv
	}, nil)

	listenAddr := cfg.MCP.ListenAddr
	if *addr != "" {
		listenAddr = *addr
	}

	httpServer := &http.Server{Addr: listenAddr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[chimera] mcp server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http: %w", err)
			return
		}
		errCh <- nil
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	if err := <-errCh; err != nil {
		return exitPartialFailure, err
	}
	return exitSuccess, nil
}
