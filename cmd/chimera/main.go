// Chimera: an autonomous determinism engine for fleets of Nix-built
// machines. Usage mirrors the teacher daemon's single-binary, flag-based
// style (see the now-removed appliance-daemon/checkin-receiver/grpc-server
// entrypoints this replaces): one binary, one subcommand per verb, stdlib
// `flag` per subcommand rather than a CLI framework.
//
// Usage:
//
//	chimera run [-c path] [-s session] CMD
//	chimera attach SESSION_ID
//	chimera deploy -t TARGETS [-c path] [-s session] CMD
//	chimera rollback -t TARGETS [-g GEN]
//	chimera watch -t TARGETS [-c path] [-i SECS] [-s session] [--once]
//	chimera dash -t TARGETS
//	chimera web [-addr HOST:PORT] [-c path]
//	chimera mcp [-addr HOST:PORT] [-c path] [-t TARGETS]
//
// web and mcp take one combined -addr listen address; there are no separate
// port and host flags.
//	chimera agent --node-id ID [--heartbeat S] [--drift-interval S] [--no-auto-heal]
//	chimera playbook -dir DIR -name NAME -target TARGET
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(exitInvalidArguments)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[chimera] received %v, shutting down", sig)
		cancel()
	}()

	cmd, args := os.Args[1], os.Args[2:]

	var code int
	var err error
	switch cmd {
	case "run":
		code, err = cmdRun(ctx, args)
	case "attach":
		code, err = cmdAttach(ctx, args)
	case "deploy":
		code, err = cmdDeploy(ctx, args)
	case "rollback":
		code, err = cmdRollback(ctx, args)
	case "watch":
		code, err = cmdWatch(ctx, args)
	case "dash":
		code, err = cmdDash(ctx, args)
	case "web":
		code, err = cmdWeb(ctx, args)
	case "mcp":
		code, err = cmdMCP(ctx, args)
	case "agent":
		code, err = cmdAgent(ctx, args)
	case "playbook":
		code, err = cmdPlaybook(ctx, args)
	default:
		usage()
		os.Exit(exitInvalidArguments)
	}

	if err != nil {
		log.Printf("[chimera] %s: %v", cmd, err)
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: chimera <run|attach|deploy|rollback|watch|dash|web|mcp|agent|playbook> [flags]")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs
}
