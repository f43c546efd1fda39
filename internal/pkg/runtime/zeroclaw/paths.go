package zeroclaw

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/process"
)

const (
	envExecutablePath = "ZEROCLAW_EXECUTABLE"

	// EnvConfigPath points the runtime at its config.toml.
	EnvConfigPath = "ZEROCLAW_CONFIG"

	// EnvWorkspace points the runtime at its workspace directory.
	EnvWorkspace = "ZEROCLAW_WORKSPACE"

	daemonCommand = "daemon"
)

var defaultExecutableCandidates = []string{"zeroclaw"}

// LocateExecutable resolves the runtime binary from ZEROCLAW_EXECUTABLE or PATH.
func LocateExecutable(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if envPath := os.Getenv(envExecutablePath); envPath != "" {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			return "", fmt.Errorf("resolve %s path: %w", envExecutablePath, err)
		}

		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("executable from %s not found: %w", envExecutablePath, err)
		}

		return absPath, nil
	}

	path, err := process.LookupExecutable(ctx, defaultExecutableCandidates)
	if err != nil {
		return "", fmt.Errorf("lookup zeroclaw executable: %w", err)
	}

	return path, nil
}

// DaemonArguments returns the arguments that start the runtime as a long-running agent.
func DaemonArguments() []string {
	return []string{daemonCommand}
}

// Environment returns the variables the runtime reads its config and workspace from.
func Environment(configPath, workspaceDir string) map[string]string {
	return map[string]string{
		EnvConfigPath: configPath,
		EnvWorkspace:  workspaceDir,
	}
}
