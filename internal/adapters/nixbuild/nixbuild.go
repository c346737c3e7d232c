// Package nixbuild implements ports.BuildPort by shelling out to the `nix`
// CLI, in the same os/exec + stdout-capture style internal/adapters/sshremote
// uses for its remote commands. BuildPort's implementation is explicitly
// out-of-core per spec §1 ("the build tool... materializes a closure on
// disk"); this adapter is the thin CLI glue the spec allots outside the
// ~3,000-line core budget.
package nixbuild

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chimerahq/chimera/internal/domain"
)

// Builder shells out to `nix` to resolve, materialize, and reason about
// declarative configuration paths.
type Builder struct {
	storeURI      string
	substituters  []string
}

// New constructs a Builder. storeURI and substituters configure the `nix`
// invocations' `--store`/`--option substituters` flags; either may be empty
// to use the system default.
func New(storeURI string, substituters []string) *Builder {
	return &Builder{storeURI: storeURI, substituters: substituters}
}

func (b *Builder) args(extra ...string) []string {
	args := []string{}
	if b.storeURI != "" {
		args = append(args, "--store", b.storeURI)
	}
	if len(b.substituters) > 0 {
		args = append(args, "--option", "substituters", strings.Join(b.substituters, " "))
	}
	return append(args, extra...)
}

// Build resolves path to its content-addressed output hash via `nix eval`.
func (b *Builder) Build(ctx context.Context, path domain.ConfigPath) (domain.Fingerprint, error) {
	args := b.args("eval", "--raw", path.String())
	out, err := b.run(ctx, args...)
	if err != nil {
		return domain.Fingerprint{}, fmt.Errorf("%w: nix eval %s: %v", domain.ErrPortFailure, path, err)
	}
	return domain.NewFingerprint(strings.TrimSpace(out))
}

// Instantiate materializes path's closure via `nix build` and returns the
// resulting store path.
func (b *Builder) Instantiate(ctx context.Context, path domain.ConfigPath) (string, error) {
	args := b.args("build", "--no-link", "--print-out-paths", path.String())
	out, err := b.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("%w: nix build %s: %v", domain.ErrPortFailure, path, err)
	}
	return strings.TrimSpace(out), nil
}

// Shell resolves the effective command to run inside path's environment via
// `nix develop -c`.
func (b *Builder) Shell(ctx context.Context, path domain.ConfigPath, cmd string) (string, error) {
	derivation, err := b.Instantiate(ctx, path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("nix develop %s -c %s", derivation, cmd), nil
}

func (b *Builder) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "nix", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
