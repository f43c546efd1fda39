package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

const (
	ExecutableCtl = "nemu-ctl"
	ExecutableMCP = "nemu-mcp"

	runsDir = "runs"
)

// DefaultConfigPaths are the YAML files flag values are read from when they exist.
var DefaultConfigPaths = []string{"/etc/nemu/nemu.yaml", "~/.nemu/config.yaml"}

// ResolveDir expands ~ and returns an absolute path.
func ResolveDir(dir string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", dir, err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path of %s: %w", dir, err)
	}

	return abs, nil
}

// ResolveRunsDir returns the directory run records are stored in.
func ResolveRunsDir(stateDir string) (string, error) {
	dir, err := ResolveDir(stateDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, runsDir), nil
}

// ResolveHostID returns hostID, or the machine host name when it is empty.
func ResolveHostID(hostID string) (string, error) {
	if hostID != "" {
		return hostID, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("get host name: %w", err)
	}

	return hostname, nil
}
