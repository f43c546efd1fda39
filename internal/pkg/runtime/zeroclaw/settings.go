package zeroclaw

import (
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

const (
	MemoryBackendSQLite   = "sqlite"
	MemoryBackendPostgres = "postgres"
)

// Settings are the host-wide runtime options rendered into every agent config.
type Settings struct {
	// Provider is the LLM provider the agent calls.
	Provider string `json:"provider" default:"openrouter"`

	// Model is the default model name.
	Model string `json:"model" default:"anthropic/claude-sonnet-4"`

	// APIKey is the LLM provider credential.
	APIKey string `json:"apiKey"`

	// Temperature is the default sampling temperature.
	Temperature float64 `json:"temperature" default:"0.7"`

	// GatewayHost is the address the agent gateway binds to.
	GatewayHost string `json:"gatewayHost" default:"127.0.0.1"`

	// DatabaseURL selects the postgres memory backend when set.
	DatabaseURL string `json:"databaseUrl"`

	// HeartbeatDisabled turns off the periodic HEARTBEAT.md checklist.
	HeartbeatDisabled        bool `json:"heartbeatDisabled"`
	HeartbeatIntervalMinutes int  `json:"heartbeatIntervalMinutes" default:"30"`

	// AutonomyLevel is one of readonly, supervised, full.
	AutonomyLevel string `json:"autonomyLevel" default:"supervised"`

	// RuntimeKind is one of native, docker.
	RuntimeKind string `json:"runtimeKind" default:"native"`

	// PlatformURL is the buyer-facing Nemu base URL used in personas.
	PlatformURL string `json:"platformUrl" default:"https://nemu.id"`
}

// WithDefaults returns a copy of settings with unset fields filled from default tags.
func (settings Settings) WithDefaults() Settings {
	defaults.SetDefaults(&settings)
	return settings
}

// MemoryBackend returns postgres when a database URL is configured, sqlite otherwise.
func (settings Settings) MemoryBackend() string {
	if settings.DatabaseURL != "" {
		return MemoryBackendPostgres
	}
	return MemoryBackendSQLite
}

// Validate checks that settings can produce a valid runtime config.
func (settings Settings) Validate() error {
	switch settings.AutonomyLevel {
	case "readonly", "supervised", "full":
	default:
		return validationError("autonomy level %q is not one of readonly, supervised, full", settings.AutonomyLevel)
	}

	switch settings.RuntimeKind {
	case "native", "docker":
	default:
		return validationError("runtime kind %q is not one of native, docker", settings.RuntimeKind)
	}

	if settings.HeartbeatIntervalMinutes <= 0 {
		return validationError("heartbeat interval must be positive")
	}

	if settings.Model == "" {
		return validationError("model is required")
	}

	if settings.Provider == "" {
		return validationError("provider is required")
	}

	return nil
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", agent.ErrValidation, fmt.Sprintf(format, args...))
}
