package main

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/config"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/playbook"
)

func cmdPlaybook(ctx context.Context, args []string) (int, error) {
	fs := newFlagSet("playbook")
	dir := fs.String("dir", "", "directory of *.yaml playbook definitions")
	name := fs.String("name", "", "name of the playbook to run")
	target := fs.String("target", "", "single user@host[:port] target")
	subject := fs.String("subject", cliSubject, "authorizing subject id")
	fs.Parse(args)

	if *dir == "" || *name == "" || *target == "" {
		return exitInvalidArguments, fmt.Errorf("playbook requires -dir, -name, and -target")
	}

	node, err := domain.ParseNode(*target)
	if err != nil {
		return exitInvalidArguments, err
	}

	a, err := buildApp(config.Default())
	if err != nil {
		return exitPartialFailure, err
	}
	defer a.Close()

	playbooks, err := playbook.LoadDir(*dir)
	if err != nil {
		return exitPartialFailure, err
	}

	var pb domain.Playbook
	found := false
	for _, candidate := range playbooks {
		if candidate.Name == *name {
			pb, found = candidate, true
			break
		}
	}
	if !found {
		return exitInvalidArguments, fmt.Errorf("no playbook named %q in %s", *name, *dir)
	}

	preconditions := playbook.NewPreconditionRegistry(nil)
	engine := playbook.New(preconditions)
	executor := playbook.NewDefaultExecutor(a.remote, a.build)

	result, err := engine.Run(ctx, pb, playbook.RunContext{
		Node:     node,
		Subject:  domain.SubjectID(*subject),
		Facts:    map[string]interface{}{},
		Bus:      a.bus,
		Policy:   a.policy,
		Executor: executor,
	})
	if err != nil {
		return exitPartialFailure, err
	}

	fmt.Printf("playbook %q on %s: %s\n", pb.Name, node, result.Outcome)
	for _, step := range result.Steps {
		fmt.Printf("  %-24s %-10s %s\n", step.StepID, step.State, step.Error)
	}

	if result.Outcome != "completed" {
		return exitPartialFailure, nil
	}
	return exitSuccess, nil
}
