package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chimerahq/chimera/internal/adapters/nixbuild"
	"github.com/chimerahq/chimera/internal/adapters/localsession"
	"github.com/chimerahq/chimera/internal/adapters/sqliterepo"
	"github.com/chimerahq/chimera/internal/adapters/sshremote"
	"github.com/chimerahq/chimera/internal/adapters/winrmremote"
	"github.com/chimerahq/chimera/internal/autoloop"
	"github.com/chimerahq/chimera/internal/config"
	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/drift"
	"github.com/chimerahq/chimera/internal/eventbus"
	"github.com/chimerahq/chimera/internal/fleet"
	"github.com/chimerahq/chimera/internal/metrics"
	"github.com/chimerahq/chimera/internal/policy"
	"github.com/chimerahq/chimera/internal/ports"
	"github.com/chimerahq/chimera/internal/registry"
	"github.com/chimerahq/chimera/internal/rollback"
	"github.com/chimerahq/chimera/internal/slo"
)

// deploymentSLOName is the built-in SLO every composition root registers,
// tracking the fraction of run/deploy/rollback outcomes that succeed over
// a one-hour window that resets once it has elapsed, per spec §4.7.
const deploymentSLOName = "deployment_success"

// app is the composition root: every use case wired to its concrete
// adapters, per spec §6.1's "injected at composition-root construction
// time" rule. Every subcommand builds the slice of app it needs rather than
// all of it, but the constructors are cheap enough (no network I/O) that
// building the whole thing up front is simplest.
type app struct {
	cfg      config.Config
	bus      ports.EventBusPort
	policy   *policy.Engine
	registry *registry.Registry
	store    *sqliterepo.Store
	metrics  *metrics.Registry
	slo      *slo.Tracker

	build   ports.BuildPort
	session ports.SessionPort
	remote  ports.RemoteExecutorPort

	drift    *drift.Service
	fleet    *fleet.Fleet
	rollback *rollback.Rollback
	autoloop *autoloop.Loop
}

// envCredentials resolves SSH auth from environment variables, since
// Chimera's scope stops at the RemoteExecutorPort contract and a real
// secrets-store lookup is out of core (spec §1).
type envCredentials struct{}

func (envCredentials) Credentials(node domain.Node) (sshremote.Credentials, error) {
	if path := os.Getenv("CHIMERA_SSH_KEY_PATH"); path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return sshremote.Credentials{}, fmt.Errorf("read %s: %w", path, err)
		}
		return sshremote.Credentials{PrivateKeyPEM: pem}, nil
	}
	return sshremote.Credentials{Password: os.Getenv("CHIMERA_SSH_PASSWORD")}, nil
}

// winrmCredentials is the WinRM counterpart to the SSH path above, for
// fleets configured with fleet.transport=winrm; winrmCredentialAdapter
// below exposes it as winrmremote.CredentialSource.
func (envCredentials) winrmCredentials(node domain.Node) (winrmremote.Credentials, error) {
	return winrmremote.Credentials{
		Password:  os.Getenv("CHIMERA_WINRM_PASSWORD"),
		UseSSL:    os.Getenv("CHIMERA_WINRM_USE_SSL") == "true",
		VerifySSL: os.Getenv("CHIMERA_WINRM_VERIFY_SSL") != "false",
	}, nil
}

// winrmCredentialAdapter re-exposes envCredentials.winrmCredentials under
// the exported method name winrmremote.CredentialSource requires, since a
// type can't satisfy two interfaces with an identically-named but
// differently-typed Credentials method.
type winrmCredentialAdapter struct{ envCredentials }

func (w winrmCredentialAdapter) Credentials(node domain.Node) (winrmremote.Credentials, error) {
	return w.winrmCredentials(node)
}

func buildApp(cfg config.Config) (*app, error) {
	store, err := sqliterepo.Open(dataPath("chimera.db"))
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}

	bus := eventbus.New()
	reg := registry.New(time.Duration(cfg.Agent.HeartbeatIntervalSeconds)*time.Second, nil)

	var remote ports.RemoteExecutorPort
	switch cfg.Fleet.Transport {
	case "winrm":
		remote = winrmremote.New(winrmCredentialAdapter{})
	case "", "ssh":
		remote = sshremote.New(envCredentials{})
	default:
		return nil, fmt.Errorf("unknown fleet.transport %q (want ssh or winrm)", cfg.Fleet.Transport)
	}

	build := nixbuild.New(cfg.Nix.StoreURI, splitCSV(cfg.Nix.SubstitutersCSV))
	session := localsession.New()

	driftSvc := drift.New(remote, reg, drift.DefaultConfig())

	timeouts := fleet.Timeouts{
		Build: time.Duration(cfg.Fleet.BuildTimeoutSeconds) * time.Second,
		Sync:  time.Duration(cfg.Fleet.SyncTimeoutSeconds) * time.Second,
		Exec:  time.Duration(cfg.Fleet.ExecTimeoutSeconds) * time.Second,
	}
	fleetUC := fleet.New(build, remote, session, bus, timeouts)
	rollbackUC := rollback.New(remote, bus)
	policyEngine := policy.New()
	loop := autoloop.New(build, session, driftSvc, fleetUC, rollbackUC, bus, policyEngine)

	sloTracker := slo.New(nil)
	deploymentSLO, err := domain.NewSLO(deploymentSLOName, 0.95, 3600)
	if err != nil {
		return nil, fmt.Errorf("register deployment slo: %w", err)
	}
	sloTracker.Register(deploymentSLO)

	return &app{
		cfg:      cfg,
		bus:      bus,
		policy:   policyEngine,
		registry: reg,
		store:    store,
		metrics:  metrics.New(),
		slo:      sloTracker,
		build:    build,
		session:  session,
		remote:   remote,
		drift:    driftSvc,
		fleet:    fleetUC,
		rollback: rollbackUC,
		autoloop: loop,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// dataPath resolves a Chimera state file under $CHIMERA_STATE_DIR
// (default /var/lib/chimera), mirroring the teacher's STATE_DIR convention.
func dataPath(name string) string {
	dir := os.Getenv("CHIMERA_STATE_DIR")
	if dir == "" {
		dir = "/var/lib/chimera"
	}
	return dir + "/" + name
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
