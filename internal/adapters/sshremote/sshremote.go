// Package sshremote implements ports.RemoteExecutorPort over SSH, adapted
// from the appliance daemon's sshexec package: cached connections with TOFU
// host-key verification, base64-wrapped command execution, and closure sync
// via rsync-over-ssh.
package sshremote

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

const (
	connMaxAge     = 300 * time.Second
	maxCachedConns = 50
	dialTimeout    = 30 * time.Second
)

// KnownHostsPath is where TOFU-persisted host keys are stored.
var KnownHostsPath = "/var/lib/chimera/ssh_known_hosts"

// FingerprintPath is the remote path the currently-active build Fingerprint
// is recorded at, mirroring the teacher's convention of a well-known state
// file rather than a queryable daemon RPC.
const FingerprintPath = "/var/lib/chimera/current-fingerprint"

type cachedConn struct {
	client    *ssh.Client
	createdAt time.Time
}

// Executor caches SSH connections per host and implements
// ports.RemoteExecutorPort. Auth is resolved per-node from Credentials.
type Executor struct {
	mu        sync.Mutex
	conns     map[string]*cachedConn
	connOrder []string
	hostKeys  map[string]ssh.PublicKey
	creds     CredentialSource
}

// CredentialSource resolves auth material for a node. Production wiring
// looks this up from a secrets store; tests can supply a fixed map.
type CredentialSource interface {
	Credentials(node domain.Node) (Credentials, error)
}

// Credentials is either a private key or a password, never both preferred
// equally — key auth is tried first when present.
type Credentials struct {
	PrivateKeyPEM []byte
	Password      string
}

// New constructs an Executor, loading any persisted TOFU host keys.
func New(creds CredentialSource) *Executor {
	e := &Executor{
		conns:    map[string]*cachedConn{},
		hostKeys: map[string]ssh.PublicKey{},
		creds:    creds,
	}
	e.loadKnownHosts()
	return e
}

var _ ports.RemoteExecutorPort = (*Executor)(nil)

// SyncClosure rsyncs the fingerprint's build closure to node's Nix store
// and records the active fingerprint in FingerprintPath.
func (e *Executor) SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error {
	client, err := e.getConnection(node)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPortFailure, err)
	}

	dest := fmt.Sprintf("%s@%s:/nix/store/", node.User, node.Host)
	cmd := exec.CommandContext(ctx, "rsync", "-az", "--delete", filepath.Join("/nix/store", fp.String()), dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: rsync closure to %s: %v (%s)", domain.ErrPortFailure, node.ID(), err, strings.TrimSpace(string(out)))
	}

	script := fmt.Sprintf("mkdir -p %s && echo %q > %s", filepath.Dir(FingerprintPath), fp.String(), FingerprintPath)
	if _, _, err := e.runScript(ctx, client, script, 30); err != nil {
		return fmt.Errorf("%w: record fingerprint on %s: %v", domain.ErrPortFailure, node.ID(), err)
	}
	return nil
}

// Exec runs command on node directly, outside any named session.
func (e *Executor) Exec(ctx context.Context, node domain.Node, command string) error {
	client, err := e.getConnection(node)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPortFailure, err)
	}
	_, exitCode, err := e.runScript(ctx, client, command, 120)
	if err != nil {
		return fmt.Errorf("%w: exec on %s: %v", domain.ErrPortFailure, node.ID(), err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: exec on %s exited %d", domain.ErrPortFailure, node.ID(), exitCode)
	}
	return nil
}

// CurrentFingerprint reads the fingerprint node believes is active.
func (e *Executor) CurrentFingerprint(ctx context.Context, node domain.Node) (domain.Fingerprint, bool, error) {
	client, err := e.getConnection(node)
	if err != nil {
		return domain.Fingerprint{}, false, nil // unreachable, not a port error
	}
	out, exitCode, err := e.runScript(ctx, client, "cat "+FingerprintPath+" 2>/dev/null || true", 15)
	if err != nil || exitCode != 0 {
		return domain.Fingerprint{}, false, nil
	}
	raw := strings.TrimSpace(out)
	if raw == "" {
		return domain.Fingerprint{}, false, nil
	}
	fp, err := domain.NewFingerprint(raw)
	if err != nil {
		return domain.Fingerprint{}, false, nil
	}
	return fp, true, nil
}

// Rollback switches node to generation (or the prior one if nil) via the
// Nix profile's generation-switch mechanism.
func (e *Executor) Rollback(ctx context.Context, node domain.Node, generation *int) error {
	client, err := e.getConnection(node)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPortFailure, err)
	}
	var script string
	if generation != nil {
		script = fmt.Sprintf("nix-env --switch-generation %d -p /nix/var/nix/profiles/system", *generation)
	} else {
		script = "nix-env --rollback -p /nix/var/nix/profiles/system"
	}
	_, exitCode, err := e.runScript(ctx, client, script, 60)
	if err != nil {
		return fmt.Errorf("%w: rollback on %s: %v", domain.ErrPortFailure, node.ID(), err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: rollback on %s exited %d", domain.ErrPortFailure, node.ID(), exitCode)
	}
	return nil
}

// runScript executes script over an SSH session, base64-wrapped to dodge
// shell-quoting, honoring ctx cancellation and a hard per-call timeout.
func (e *Executor) runScript(ctx context.Context, client *ssh.Client, script string, timeoutSeconds int) (string, int, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	cmd := fmt.Sprintf(`bash -c "$(echo %s | base64 -d)"`, encoded)

	var stdout strings.Builder
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		return "", -1, ctx.Err()
	case <-time.After(time.Duration(timeoutSeconds) * time.Second):
		return "", -1, fmt.Errorf("%w: timed out after %ds", domain.ErrTimeout, timeoutSeconds)
	case runErr := <-done:
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				exitCode = exitErr.ExitStatus()
			} else {
				return "", -1, fmt.Errorf("run: %w", runErr)
			}
		}
		return stdout.String(), exitCode, nil
	}
}

func (e *Executor) getConnection(node domain.Node) (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := node.ID()
	if cached, ok := e.conns[key]; ok {
		if time.Since(cached.createdAt) < connMaxAge {
			if _, err := cached.client.NewSession(); err == nil {
				e.lruTouch(key)
				return cached.client, nil
			}
		}
		cached.client.Close()
		delete(e.conns, key)
		e.lruRemove(key)
	}

	config, err := e.buildConfig(node)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(node.Host, fmt.Sprintf("%d", node.Port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	if len(e.conns) >= maxCachedConns && len(e.connOrder) > 0 {
		evict := e.connOrder[0]
		e.connOrder = e.connOrder[1:]
		if old, ok := e.conns[evict]; ok {
			old.client.Close()
			delete(e.conns, evict)
		}
	}
	e.conns[key] = &cachedConn{client: client, createdAt: time.Now()}
	e.lruTouch(key)
	return client, nil
}

func (e *Executor) lruTouch(key string) {
	e.lruRemove(key)
	e.connOrder = append(e.connOrder, key)
}

func (e *Executor) lruRemove(key string) {
	for i, k := range e.connOrder {
		if k == key {
			e.connOrder = append(e.connOrder[:i], e.connOrder[i+1:]...)
			return
		}
	}
}

func (e *Executor) buildConfig(node domain.Node) (*ssh.ClientConfig, error) {
	creds, err := e.creds.Credentials(node)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", node.ID(), err)
	}

	config := &ssh.ClientConfig{
		User:            node.User,
		HostKeyCallback: e.tofuHostKeyCallback,
		Timeout:         dialTimeout,
	}
	switch {
	case len(creds.PrivateKeyPEM) > 0:
		signer, err := ssh.ParsePrivateKey(creds.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case creds.Password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(creds.Password)}
	default:
		return nil, fmt.Errorf("no auth method for %s", node.ID())
	}
	return config, nil
}

// tofuHostKeyCallback implements Trust On First Use: accept and persist new
// host keys, reject changed keys.
func (e *Executor) tofuHostKeyCallback(hostname string, _ net.Addr, key ssh.PublicKey) error {
	host, _, err := net.SplitHostPort(hostname)
	if err != nil {
		host = hostname
	}

	existing, known := e.hostKeys[host]
	if !known {
		e.hostKeys[host] = key
		e.saveKnownHosts()
		return nil
	}
	if string(existing.Marshal()) == string(key.Marshal()) {
		return nil
	}
	return fmt.Errorf("host key mismatch for %s: expected %s, got %s", host, ssh.FingerprintSHA256(existing), ssh.FingerprintSHA256(key))
}

func (e *Executor) loadKnownHosts() {
	f, err := os.Open(KnownHostsPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			continue
		}
		keyBytes, err := base64.StdEncoding.DecodeString(parts[2])
		if err != nil {
			continue
		}
		pubKey, err := ssh.ParsePublicKey(keyBytes)
		if err != nil {
			continue
		}
		e.hostKeys[parts[0]] = pubKey
	}
}

func (e *Executor) saveKnownHosts() {
	dir := filepath.Dir(KnownHostsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	var buf strings.Builder
	buf.WriteString("# SSH known hosts (TOFU — managed by chimera)\n")
	for host, key := range e.hostKeys {
		buf.WriteString(fmt.Sprintf("%s %s %s\n", host, key.Type(), base64.StdEncoding.EncodeToString(key.Marshal())))
	}
	os.WriteFile(KnownHostsPath, []byte(buf.String()), 0o600)
}
