package main

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/config"
	"github.com/chimerahq/chimera/internal/domain"
)

func cmdAttach(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("attach")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) == 0 {
		return exitInvalidArguments, fmt.Errorf("attach requires a SESSION_ID argument")
	}

	a, err := buildApp(config.Default())
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	sessionID, err := domain.NewSessionId(rest[0])
	if err != nil {
		return exitInvalidArguments, err
	}

	// SessionPort never execs anything itself (ports.SessionPort doc
	// comment); the CLI's job is only to print what the caller should run.
	attachCmd, err := a.session.Attach(ctx, sessionID)
	if err != nil {
		return exitPartialFailure, err
	}
	fmt.Println(attachCmd)
	return exitSuccess, nil
}
