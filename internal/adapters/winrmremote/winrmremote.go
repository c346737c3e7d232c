// Package winrmremote implements ports.RemoteExecutorPort over WinRM for
// Windows nodes, adapted from the appliance daemon's winrm package: cached
// NTLM sessions, inline PowerShell for short scripts, temp-file chunking
// for scripts over cmd.exe's 8191-character limit.
package winrmremote

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gowinrm "github.com/masterzen/winrm"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

const (
	sessionMaxAge     = 300 * time.Second
	inlineScriptLimit = 2000
	chunkSize         = 6000
)

// FingerprintPath is the remote file the active build Fingerprint is
// recorded in, the Windows-side counterpart to sshremote's FingerprintPath.
const FingerprintPath = `C:\ProgramData\chimera\current-fingerprint`

type cachedSession struct {
	client    *gowinrm.Client
	createdAt time.Time
}

// CredentialSource resolves WinRM auth material for a node.
type CredentialSource interface {
	Credentials(node domain.Node) (Credentials, error)
}

// Credentials holds the password and transport security settings WinRM
// needs for one node; the domain-qualified username comes from Node.User.
type Credentials struct {
	Password  string
	UseSSL    bool
	VerifySSL bool
}

// Executor caches WinRM sessions per host and implements
// ports.RemoteExecutorPort.
type Executor struct {
	mu       sync.Mutex
	sessions map[string]*cachedSession
	creds    CredentialSource
}

// New constructs a winrmremote Executor.
func New(creds CredentialSource) *Executor {
	return &Executor{sessions: map[string]*cachedSession{}, creds: creds}
}

var _ ports.RemoteExecutorPort = (*Executor)(nil)

// SyncClosure materializes fp's packaged artifact (produced upstream by
// BuildPort.Instantiate) into node's app directory and records fp as active.
// Nix closures don't map onto Windows directly, so this writes a known
// fingerprint marker rather than a Nix store path.
func (e *Executor) SyncClosure(ctx context.Context, node domain.Node, fp domain.Fingerprint) error {
	script := fmt.Sprintf(
		`New-Item -ItemType Directory -Force -Path (Split-Path '%s') | Out-Null; Set-Content -Path '%s' -Value '%s'`,
		FingerprintPath, FingerprintPath, fp.String(),
	)
	_, _, exitCode, err := e.runPowerShell(node, script, 30)
	if err != nil {
		return fmt.Errorf("%w: sync closure to %s: %v", domain.ErrPortFailure, node.ID(), err)
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: sync closure to %s exited %d", domain.ErrPortFailure, node.ID(), exitCode)
	}
	return nil
}

// Exec runs command as a PowerShell script on node.
func (e *Executor) Exec(ctx context.Context, node domain.Node, command string) error {
	_, _, exitCode, err := e.runPowerShell(node, command, 120)
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
	script := fmt.Sprintf(`if (Test-Path '%s') { Get-Content '%s' -Raw } else { '' }`, FingerprintPath, FingerprintPath)
	stdout, _, exitCode, err := e.runPowerShell(node, script, 15)
	if err != nil || exitCode != 0 {
		return domain.Fingerprint{}, false, nil
	}
	raw := strings.TrimSpace(stdout)
	if raw == "" {
		return domain.Fingerprint{}, false, nil
	}
	fp, err := domain.NewFingerprint(raw)
	if err != nil {
		return domain.Fingerprint{}, false, nil
	}
	return fp, true, nil
}

// Rollback has no Nix-generation equivalent on Windows, so this adapter does
// not roll back: it always returns an ErrValidation error, whatever
// generation is passed (generation is accepted for interface symmetry with
// sshremote; there is no local generation history to switch to).
func (e *Executor) Rollback(ctx context.Context, node domain.Node, generation *int) error {
	return fmt.Errorf("%w: winrm rollback requires an explicit target fingerprint, not a generation number", domain.ErrValidation)
}

// runPowerShell executes script, choosing inline or temp-file mode based on
// length. It takes no context, and timeoutSeconds is not applied.
func (e *Executor) runPowerShell(node domain.Node, script string, timeoutSeconds int) (stdout, stderr string, exitCode int, err error) {
	client, err := e.getSession(node)
	if err != nil {
		return "", "", -1, fmt.Errorf("get session: %w", err)
	}

	if len(script) > inlineScriptLimit {
		return e.executeViaTempFile(client, script)
	}
	return e.executeInline(client, script)
}

func (e *Executor) executeInline(client *gowinrm.Client, script string) (string, string, int, error) {
	shell, err := client.CreateShell()
	if err != nil {
		return "", "", -1, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	encoded := encodePowerShell(script)
	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encoded)
	if err != nil {
		return "", "", -1, fmt.Errorf("execute: %w", err)
	}
	defer cmd.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	go io.Copy(&stdoutBuf, cmd.Stdout)
	go io.Copy(&stderrBuf, cmd.Stderr)
	cmd.Wait()

	return strings.TrimSpace(stdoutBuf.String()), strings.TrimSpace(stderrBuf.String()), cmd.ExitCode(), nil
}

// executeViaTempFile handles the cmd.exe 8191 character limit by writing
// the script to a temp file via chunked base64 echo commands.
func (e *Executor) executeViaTempFile(client *gowinrm.Client, script string) (string, string, int, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	chunks := splitString(encoded, chunkSize)

	const tempB64 = `C:\Windows\Temp\chimera.b64`
	const tempPS1 = `C:\Windows\Temp\chimera.ps1`

	shell, err := client.CreateShell()
	if err != nil {
		return "", "", -1, fmt.Errorf("create shell: %w", err)
	}
	defer shell.Close()

	for i, chunk := range chunks {
		op := ">"
		if i > 0 {
			op = ">>"
		}
		cmdStr := fmt.Sprintf(`echo %s%s"%s"`, chunk, op, tempB64)
		cmd, err := shell.Execute("cmd.exe", "/c", cmdStr)
		if err != nil {
			return "", "", -1, fmt.Errorf("write chunk %d: %w", i, err)
		}
		cmd.Wait()
		cmd.Close()
		if cmd.ExitCode() != 0 {
			return "", "", -1, fmt.Errorf("write chunk %d failed: exit %d", i, cmd.ExitCode())
		}
	}

	decodeAndRun := fmt.Sprintf(
		`$r=(Get-Content '%s' -Raw) -replace '\s',''; `+
			`$b=[Convert]::FromBase64String($r); `+
			`[IO.File]::WriteAllText('%s',[Text.Encoding]::UTF8.GetString($b)); `+
			`Remove-Item '%s' -Force -EA SilentlyContinue; `+
			`try { & '%s' } finally { Remove-Item '%s' -Force -EA SilentlyContinue }`,
		tempB64, tempPS1, tempB64, tempPS1, tempPS1,
	)

	cmd, err := shell.Execute("powershell.exe", "-NoProfile", "-NonInteractive", "-EncodedCommand", encodePowerShell(decodeAndRun))
	if err != nil {
		return "", "", -1, fmt.Errorf("execute temp file: %w", err)
	}
	defer cmd.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	go io.Copy(&stdoutBuf, cmd.Stdout)
	go io.Copy(&stderrBuf, cmd.Stderr)
	cmd.Wait()

	return strings.TrimSpace(stdoutBuf.String()), strings.TrimSpace(stderrBuf.String()), cmd.ExitCode(), nil
}

func (e *Executor) getSession(node domain.Node) (*gowinrm.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := node.ID()
	if cached, ok := e.sessions[key]; ok {
		if time.Since(cached.createdAt) < sessionMaxAge {
			return cached.client, nil
		}
	}

	creds, err := e.creds.Credentials(node)
	if err != nil {
		return nil, fmt.Errorf("resolve credentials for %s: %w", key, err)
	}

	port := node.Port
	if port == 0 || port == 22 {
		if creds.UseSSL {
			port = 5986
		} else {
			port = 5985
		}
	}

	endpoint := gowinrm.NewEndpoint(node.Host, port, creds.UseSSL, !creds.VerifySSL, nil, nil, nil, 120*time.Second)

	params := gowinrm.NewParameters("PT120S", "en-US", 153600)
	params.TransportDecorator = func() gowinrm.Transporter { return &gowinrm.ClientNTLM{} }

	client, err := gowinrm.NewClientWithParameters(endpoint, node.User, creds.Password, params)
	if err != nil {
		return nil, fmt.Errorf("create WinRM client for %s: %w", key, err)
	}

	e.sessions[key] = &cachedSession{client: client, createdAt: time.Now()}
	return client, nil
}

func encodePowerShell(script string) string {
	utf16 := make([]byte, len(script)*2)
	for i, c := range []byte(script) {
		utf16[i*2] = c
		utf16[i*2+1] = 0
	}
	return base64.StdEncoding.EncodeToString(utf16)
}

func splitString(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		end := size
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
