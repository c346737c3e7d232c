// Package localdeploy implements Execute Local: a single-host deploy that
// goes through SessionPort only, bypassing the fleet build/sync pipeline.
// It targets the machine Chimera itself runs on (e.g. an operator's attach
// session), so there is no remote fan-out and no Fingerprint sync step.
package localdeploy

import (
	"context"
	"fmt"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// LocalDeploy implements the use case over a SessionPort and EventBusPort.
type LocalDeploy struct {
	session ports.SessionPort
	bus     ports.EventBusPort
}

// New constructs a LocalDeploy use case.
func New(session ports.SessionPort, bus ports.EventBusPort) *LocalDeploy {
	return &LocalDeploy{session: session, bus: bus}
}

// Execute creates (or reuses) sessionName and runs command inside it on the
// local host, publishing the same Deployment lifecycle events Deploy Fleet
// would for a single implicit node named "local".
func (l *LocalDeploy) Execute(ctx context.Context, sessionName string, configPath domain.ConfigPath, command string) (domain.Deployment, bool, error) {
	sessionID, err := domain.NewSessionId(sessionName)
	if err != nil {
		return domain.Deployment{}, false, err
	}

	dep := domain.NewDeployment(sessionID, configPath)
	dep, err = dep.Start()
	if err != nil {
		return domain.Deployment{}, false, err
	}
	dep, events := dep.DrainEvents()
	l.bus.Publish(ctx, events...)

	dep, err = dep.BuildSucceeded(domain.Fingerprint{})
	if err != nil {
		return domain.Deployment{}, false, err
	}
	dep, events = dep.DrainEvents()
	l.bus.Publish(ctx, events...)

	dep, err = dep.BeginDeploying()
	if err != nil {
		return domain.Deployment{}, false, err
	}

	if _, err := l.session.Create(ctx, sessionID); err != nil {
		dep, failErr := dep.Fail(fmt.Sprintf("create session: %v", err))
		if failErr != nil {
			return domain.Deployment{}, false, failErr
		}
		dep, events = dep.DrainEvents()
		l.bus.Publish(ctx, events...)
		return dep, false, nil
	}

	ok, runErr := l.session.Run(ctx, sessionID, command)
	if runErr != nil || !ok {
		reason := "run failed"
		if runErr != nil {
			reason = runErr.Error()
		}
		dep, failErr := dep.Fail(reason)
		if failErr != nil {
			return domain.Deployment{}, false, failErr
		}
		dep, events = dep.DrainEvents()
		l.bus.Publish(ctx, events...)
		return dep, false, nil
	}

	dep, err = dep.Complete([]string{"local"}, nil)
	if err != nil {
		return domain.Deployment{}, false, err
	}
	dep, events = dep.DrainEvents()
	l.bus.Publish(ctx, events...)

	return dep, true, nil
}
