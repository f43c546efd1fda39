package cli

import (
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
)

// Settings are the host options shared by every command. They are parsed once from
// flags, environment and config files, then passed read-only into components.
type Settings struct {
	Registry RegistryConfig `embed:"" prefix:"registry-"`
	Host     HostConfig     `embed:""`
	Ports    PortConfig     `embed:"" prefix:"port-"`
	Runtime  RuntimeConfig  `embed:"" prefix:"runtime-"`
	Service  ServiceConfig  `embed:"" prefix:"service-"`
	Metrics  MetricsConfig  `embed:"" prefix:"metrics-"`
}

type RegistryConfig struct {
	URL     string        `help:"Platform registry base URL." default:"https://api.nemu.id" env:"NEMU_REGISTRY_URL"`
	Token   string        `help:"Bearer token for the registry." env:"NEMU_REGISTRY_TOKEN"`
	Timeout time.Duration `help:"Timeout of one registry request." default:"10s" env:"NEMU_REGISTRY_TIMEOUT"`
}

type HostConfig struct {
	AgentsDir string `help:"Directory holding one workspace per seller." default:"/var/lib/nemu/agents" env:"NEMU_AGENTS_DIR" type:"path"`
	StateDir  string `help:"Directory for run records." default:"~/.nemu" env:"NEMU_STATE_DIR"`
	HostID    string `help:"Server identifier reported to the registry (default: host name)." env:"NEMU_HOST_ID"`
}

type PortConfig struct {
	Host        string `help:"Interface agents bind their gateway to." default:"127.0.0.1" env:"NEMU_PORT_HOST"`
	Base        int    `help:"First gateway port to probe." default:"4000" env:"NEMU_PORT_BASE"`
	MaxAttempts int    `help:"Number of consecutive ports to probe." default:"100" env:"NEMU_PORT_MAX_ATTEMPTS"`
}

// RuntimeConfig carries the runtime options rendered into every agent config. Empty
// values are filled from zeroclaw.Settings defaults.
type RuntimeConfig struct {
	Executable        string  `help:"Runtime binary (default: ZEROCLAW_EXECUTABLE or zeroclaw on PATH)." env:"NEMU_RUNTIME_EXECUTABLE"`
	Provider          string  `help:"LLM provider." env:"NEMU_RUNTIME_PROVIDER"`
	Model             string  `help:"Default model." env:"NEMU_RUNTIME_MODEL"`
	APIKey            string  `help:"LLM provider API key." env:"NEMU_RUNTIME_API_KEY"`
	Temperature       float64 `help:"Default sampling temperature." env:"NEMU_RUNTIME_TEMPERATURE"`
	DatabaseURL       string  `help:"Postgres URL; switches agent memory from sqlite to postgres." env:"NEMU_RUNTIME_DATABASE_URL"`
	HeartbeatInterval int     `help:"Heartbeat interval in minutes." env:"NEMU_RUNTIME_HEARTBEAT_INTERVAL"`
	NoHeartbeat       bool    `help:"Disable the heartbeat checklist." env:"NEMU_RUNTIME_NO_HEARTBEAT"`
	AutonomyLevel     string  `help:"Autonomy level: readonly, supervised, full." env:"NEMU_RUNTIME_AUTONOMY_LEVEL"`
	Kind              string  `help:"Runtime kind: native, docker." env:"NEMU_RUNTIME_KIND"`
	PlatformURL       string  `help:"Buyer-facing platform URL used in personas." env:"NEMU_RUNTIME_PLATFORM_URL"`
	APIURL            string  `name:"api-url" help:"Platform API URL passed to agents (default: registry URL)." env:"NEMU_RUNTIME_API_URL"`
	TemplatesDir      string  `help:"Directory overriding the built-in templates." env:"NEMU_RUNTIME_TEMPLATES_DIR"`
}

type ServiceConfig struct {
	Backend       string        `help:"Service manager: systemd, docker." default:"systemd" enum:"systemd,docker" env:"NEMU_SERVICE_BACKEND"`
	User          bool          `help:"Use systemd user units." env:"NEMU_SERVICE_USER"`
	UnitDir       string        `help:"Directory for systemd unit files (default depends on --service-user)." env:"NEMU_SERVICE_UNIT_DIR"`
	Image         string        `help:"Container image for the docker backend." env:"NEMU_SERVICE_IMAGE"`
	RestartDelay  time.Duration `help:"Delay before a crashed agent is restarted." default:"5s" env:"NEMU_SERVICE_RESTART_DELAY"`
	StartAttempts uint          `help:"Checks for a running service after start." default:"10" env:"NEMU_SERVICE_START_ATTEMPTS"`
	StartInterval time.Duration `help:"Delay between running checks." default:"1s" env:"NEMU_SERVICE_START_INTERVAL"`
}

type MetricsConfig struct {
	Textfile string `help:"Write provisioning metrics to this node-exporter textfile." env:"NEMU_METRICS_TEXTFILE"`
}

// ZeroclawSettings converts the runtime flags into runtime settings with defaults applied.
func (config RuntimeConfig) ZeroclawSettings(gatewayHost string) zeroclaw.Settings {
	return zeroclaw.Settings{
		Provider:                 config.Provider,
		Model:                    config.Model,
		APIKey:                   config.APIKey,
		Temperature:              config.Temperature,
		GatewayHost:              gatewayHost,
		DatabaseURL:              config.DatabaseURL,
		HeartbeatDisabled:        config.NoHeartbeat,
		HeartbeatIntervalMinutes: config.HeartbeatInterval,
		AutonomyLevel:            config.AutonomyLevel,
		RuntimeKind:              config.Kind,
		PlatformURL:              config.PlatformURL,
	}.WithDefaults()
}

// ServiceBackend returns the configured backend kind.
func (config ServiceConfig) ServiceBackend() agent.ServiceBackendKind {
	return agent.ServiceBackendKind(config.Backend)
}
