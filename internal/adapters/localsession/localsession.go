// Package localsession implements ports.SessionPort over tmux, the same
// os/exec-driven shelling-out style as internal/adapters/nixbuild. SessionPort
// is explicitly out-of-core per spec §1 ("the persistent-session host that
// runs long-lived commands on a node"); this is the thin local-host adapter
// the `run`/`attach` CLI commands use.
package localsession

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chimerahq/chimera/internal/domain"
)

// TmuxSessions manages named tmux sessions on the local host.
type TmuxSessions struct{}

// New constructs a TmuxSessions adapter.
func New() *TmuxSessions { return &TmuxSessions{} }

func (t *TmuxSessions) Create(ctx context.Context, id domain.SessionId) (bool, error) {
	if _, err := t.run(ctx, "new-session", "-d", "-s", id.String()); err != nil {
		if strings.Contains(err.Error(), "duplicate session") {
			return true, nil
		}
		return false, fmt.Errorf("%w: tmux new-session %s: %v", domain.ErrPortFailure, id, err)
	}
	return true, nil
}

func (t *TmuxSessions) List(ctx context.Context) ([]domain.SessionId, error) {
	out, err := t.run(ctx, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(err.Error(), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: tmux list-sessions: %v", domain.ErrPortFailure, err)
	}

	var ids []domain.SessionId
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		id, err := domain.NewSessionId(line)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *TmuxSessions) Kill(ctx context.Context, id domain.SessionId) (bool, error) {
	if _, err := t.run(ctx, "kill-session", "-t", id.String()); err != nil {
		return false, fmt.Errorf("%w: tmux kill-session %s: %v", domain.ErrPortFailure, id, err)
	}
	return true, nil
}

func (t *TmuxSessions) Run(ctx context.Context, id domain.SessionId, cmd string) (bool, error) {
	if _, err := t.run(ctx, "send-keys", "-t", id.String(), cmd, "Enter"); err != nil {
		return false, fmt.Errorf("%w: tmux send-keys %s: %v", domain.ErrPortFailure, id, err)
	}
	return true, nil
}

func (t *TmuxSessions) Attach(ctx context.Context, id domain.SessionId) (string, error) {
	return fmt.Sprintf("tmux attach-session -t %s", id.String()), nil
}

func (t *TmuxSessions) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
