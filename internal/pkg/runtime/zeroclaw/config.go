package zeroclaw

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// ErrConfigNotFound indicates the agent has no config.toml on disk.
var ErrConfigNotFound = errors.New("runtime config not found")

// RenderedConfig is the subset of the zeroclaw config.toml written by the orchestrator.
type RenderedConfig struct {
	APIKey             string  `toml:"api_key"`
	DefaultProvider    string  `toml:"default_provider"`
	DefaultModel       string  `toml:"default_model"`
	DefaultTemperature float64 `toml:"default_temperature"`
	WorkspaceDir       string  `toml:"workspace_dir"`

	Gateway   GatewayConfig   `toml:"gateway"`
	Memory    MemoryConfig    `toml:"memory"`
	Heartbeat HeartbeatConfig `toml:"heartbeat"`
	Autonomy  AutonomyConfig  `toml:"autonomy"`
	Runtime   RuntimeConfig   `toml:"runtime"`

	// Storage is present only with the postgres memory backend.
	Storage *StorageConfig `toml:"storage,omitempty"`
}

type GatewayConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequirePairing bool   `toml:"require_pairing"`
}

type MemoryConfig struct {
	Backend  string `toml:"backend"`
	AutoSave bool   `toml:"auto_save"`
}

type HeartbeatConfig struct {
	Enabled         bool `toml:"enabled"`
	IntervalMinutes int  `toml:"interval_minutes"`
}

type AutonomyConfig struct {
	Level         string `toml:"level"`
	WorkspaceOnly bool   `toml:"workspace_only"`
}

type RuntimeConfig struct {
	Kind string `toml:"kind"`
}

type StorageConfig struct {
	Provider StorageProvider `toml:"provider"`
}

type StorageProvider struct {
	Config StorageProviderConfig `toml:"config"`
}

type StorageProviderConfig struct {
	Provider string `toml:"provider"`
	DBURL    string `toml:"db_url"`
}

// DecodeConfig parses a rendered config.toml. Keys outside RenderedConfig are rejected.
func DecodeConfig(data []byte) (RenderedConfig, error) {
	var config RenderedConfig

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&config); err != nil {
		return RenderedConfig{}, fmt.Errorf("decode runtime config: %w", err)
	}

	return config, nil
}

// Validate checks the decoded config is consistent enough for the runtime to start.
func (config RenderedConfig) Validate() error {
	if config.Gateway.Port < 1 || config.Gateway.Port > 65535 {
		return validationError("gateway port %d out of range", config.Gateway.Port)
	}

	if config.Gateway.Host == "" {
		return validationError("gateway host is required")
	}

	if config.WorkspaceDir == "" {
		return validationError("workspace dir is required")
	}

	switch config.Memory.Backend {
	case MemoryBackendSQLite:
		if config.Storage != nil {
			return validationError("storage block requires the %s memory backend", MemoryBackendPostgres)
		}
	case MemoryBackendPostgres:
		if config.Storage == nil || config.Storage.Provider.Config.DBURL == "" {
			return validationError("%s memory backend requires a database url", MemoryBackendPostgres)
		}
	default:
		return validationError("unknown memory backend %q", config.Memory.Backend)
	}

	return nil
}

// ReadConfig loads and decodes the config.toml at path.
// Returns ErrConfigNotFound when the file does not exist.
func ReadConfig(fs afero.Fs, path string) (RenderedConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return RenderedConfig{}, ErrConfigNotFound
		}
		return RenderedConfig{}, fmt.Errorf("read runtime config: %w", err)
	}

	return DecodeConfig(data)
}
