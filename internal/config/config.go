// Package config loads Chimera's top-level configuration (spec §6.3): a
// JSON file with environment overrides, mirroring the load order the
// teacher daemon used for its YAML config — defaults, then file, then env.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NixSection configures artifact build/sync behavior.
type NixSection struct {
	StoreURI     string `json:"store_uri"`
	SubstitutersCSV string `json:"substituters"`
}

// FleetSection configures the Deploy Fleet pipeline defaults.
type FleetSection struct {
	BuildTimeoutSeconds int `json:"build_timeout_seconds"`
	SyncTimeoutSeconds  int `json:"sync_timeout_seconds"`
	ExecTimeoutSeconds  int `json:"exec_timeout_seconds"`
	// Transport selects the RemoteExecutorPort adapter: "ssh" (default) or
	// "winrm" for an all-Windows fleet. Mixed-OS fleets are a Non-goal —
	// spec.md's targets are fleet-wide, not per-node transport-typed.
	Transport string `json:"transport"`
}

// WatchSection configures the autonomous loop.
type WatchSection struct {
	IntervalSeconds  int  `json:"interval_seconds"`
	Once             bool `json:"once"`
	RequireApproval  bool `json:"require_approval"`
}

// AgentSection configures this node's heartbeat transport.
type AgentSection struct {
	HeartbeatIntervalSeconds int    `json:"heartbeat_interval_seconds"`
	OrchestratorAddr         string `json:"orchestrator_addr"`
}

// WebSection configures the dashboard HTTP server.
type WebSection struct {
	ListenAddr string `json:"listen_addr"`
}

// MCPSection configures the MCP tool/resource surface.
type MCPSection struct {
	ListenAddr string `json:"listen_addr"`
}

// TelemetrySection configures metrics export.
type TelemetrySection struct {
	MetricsAddr string `json:"metrics_addr"`
}

// ITSMSection configures the incident-management adapter.
type ITSMSection struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// NotificationsSection configures the alerting adapter.
type NotificationsSection struct {
	WebhookURL string `json:"webhook_url"`
}

// Config is the full set of sections spec §6.3 names.
type Config struct {
	Nix           NixSection           `json:"nix"`
	Fleet         FleetSection         `json:"fleet"`
	Watch         WatchSection         `json:"watch"`
	Agent         AgentSection         `json:"agent"`
	Web           WebSection           `json:"web"`
	MCP           MCPSection           `json:"mcp"`
	Telemetry     TelemetrySection     `json:"telemetry"`
	ITSM          ITSMSection          `json:"itsm"`
	Notifications NotificationsSection `json:"notifications"`
	LogLevel      string               `json:"log_level"`
}

// Default returns a Config with built-in defaults, applied before the file
// and before env overrides.
func Default() Config {
	return Config{
		Fleet: FleetSection{
			BuildTimeoutSeconds: 300,
			SyncTimeoutSeconds:  600,
			ExecTimeoutSeconds:  120,
			Transport:           "ssh",
		},
		Watch: WatchSection{
			IntervalSeconds: 60,
			RequireApproval: true,
		},
		Agent: AgentSection{
			HeartbeatIntervalSeconds: 30,
		},
		Web:       WebSection{ListenAddr: ":8080"},
		MCP:       MCPSection{ListenAddr: ":8081"},
		Telemetry: TelemetrySection{MetricsAddr: ":9090"},
		LogLevel:  "INFO",
	}
}

// Load reads path as JSON over the built-in defaults, then applies
// CHIMERA_SECTION_KEY environment overrides, per spec §6.3's precedence:
// defaults < file < env.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Fleet.BuildTimeoutSeconds <= 0 || cfg.Fleet.SyncTimeoutSeconds <= 0 || cfg.Fleet.ExecTimeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("fleet timeouts must be positive")
	}
	if cfg.Watch.IntervalSeconds <= 0 {
		return Config{}, fmt.Errorf("watch.interval_seconds must be positive")
	}

	return cfg, nil
}

// applyEnvOverrides applies CHIMERA_SECTION_KEY vars on top of the loaded
// config, matching the one-var-per-field style of the teacher's env
// overrides (HEALING_DRY_RUN, STATE_DIR, LOG_LEVEL, ...).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHIMERA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToUpper(v)
	}
	if v := os.Getenv("CHIMERA_NIX_STORE_URI"); v != "" {
		cfg.Nix.StoreURI = v
	}
	if v := os.Getenv("CHIMERA_FLEET_BUILD_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fleet.BuildTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CHIMERA_FLEET_SYNC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fleet.SyncTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CHIMERA_FLEET_EXEC_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Fleet.ExecTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CHIMERA_FLEET_TRANSPORT"); v != "" {
		cfg.Fleet.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("CHIMERA_WATCH_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watch.IntervalSeconds = n
		}
	}
	if v := os.Getenv("CHIMERA_WATCH_ONCE"); v != "" {
		cfg.Watch.Once = !isFalsy(v)
	}
	if v := os.Getenv("CHIMERA_WATCH_REQUIRE_APPROVAL"); v != "" {
		cfg.Watch.RequireApproval = !isFalsy(v)
	}
	if v := os.Getenv("CHIMERA_AGENT_ORCHESTRATOR_ADDR"); v != "" {
		cfg.Agent.OrchestratorAddr = v
	}
	if v := os.Getenv("CHIMERA_WEB_LISTEN_ADDR"); v != "" {
		cfg.Web.ListenAddr = v
	}
	if v := os.Getenv("CHIMERA_MCP_LISTEN_ADDR"); v != "" {
		cfg.MCP.ListenAddr = v
	}
	if v := os.Getenv("CHIMERA_TELEMETRY_METRICS_ADDR"); v != "" {
		cfg.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv("CHIMERA_ITSM_BASE_URL"); v != "" {
		cfg.ITSM.BaseURL = v
	}
	if v := os.Getenv("CHIMERA_ITSM_API_KEY"); v != "" {
		cfg.ITSM.APIKey = v
	}
	if v := os.Getenv("CHIMERA_NOTIFICATIONS_WEBHOOK_URL"); v != "" {
		cfg.Notifications.WebhookURL = v
	}
}

func isFalsy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "false" || v == "0" || v == "no"
}
