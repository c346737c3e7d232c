package playbook

import (
	"context"
	"fmt"
	"time"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// ActionExecutor performs a single Action against a node. Implementations
// translate the tagged Action variant into the appropriate port call.
type ActionExecutor interface {
	Execute(ctx context.Context, node domain.Node, action domain.Action) error
}

// PermissionFor maps an action kind to the permission required to run it,
// used by the Playbook Engine's per-step authorization check (spec §4.4
// step 2a).
func PermissionFor(kind domain.ActionKind) domain.Permission {
	switch kind {
	case domain.ActionKindRestartService:
		return domain.PermHealRestart
	case domain.ActionKindRedeploy:
		return domain.PermHealRebuild
	case domain.ActionKindRollback:
		return domain.PermRollback
	default:
		// ExecShell, WaitSeconds, AssertFingerprint are read/operate at the
		// same trust level as a restart — the least-privileged remediation
		// permission that still authorizes "do something on the node".
		return domain.PermHealRestart
	}
}

// defaultExecutor routes Actions onto RemoteExecutorPort and BuildPort,
// mirroring how the teacher's L1 engine's ActionExecutor
// callback ultimately shells out via sshexec/winrm.
type defaultExecutor struct {
	remote ports.RemoteExecutorPort
	build  ports.BuildPort
	clock  func() <-chan time.Time
}

// NewDefaultExecutor builds the standard ActionExecutor wiring remote exec
// and build ports together.
func NewDefaultExecutor(remote ports.RemoteExecutorPort, build ports.BuildPort) ActionExecutor {
	return &defaultExecutor{remote: remote, build: build}
}

func (e *defaultExecutor) Execute(ctx context.Context, node domain.Node, action domain.Action) error {
	switch action.Kind {
	case domain.ActionExecShell:
		return e.remote.Exec(ctx, node, action.Cmd)

	case domain.ActionKindRestartService:
		cmd := fmt.Sprintf("systemctl restart %s", action.ServiceName)
		return e.remote.Exec(ctx, node, cmd)

	case domain.ActionKindRedeploy:
		cfgPath, err := domain.NewConfigPath(action.ConfigPath)
		if err != nil {
			return err
		}
		fp, err := e.build.Build(ctx, cfgPath)
		if err != nil {
			return fmt.Errorf("%w: build %s: %v", domain.ErrPortFailure, cfgPath, err)
		}
		return e.remote.SyncClosure(ctx, node, fp)

	case domain.ActionKindRollback:
		return e.remote.Rollback(ctx, node, action.Generation)

	case domain.ActionKindWaitSeconds:
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(action.WaitSeconds) * time.Second):
			return nil
		}

	case domain.ActionKindAssertFp:
		fp, present, err := e.remote.CurrentFingerprint(ctx, node)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPortFailure, err)
		}
		if !present {
			return fmt.Errorf("%w: node unreachable", domain.ErrPortFailure)
		}
		if fp.String() != action.ExpectedFingerprint {
			return fmt.Errorf("%w: fingerprint assertion failed: got %s, want %s",
				domain.ErrValidation, fp.String(), action.ExpectedFingerprint)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown action kind %q", domain.ErrValidation, action.Kind)
	}
}
