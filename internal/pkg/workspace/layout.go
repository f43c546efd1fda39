package workspace

import (
	"path/filepath"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

const (
	configFile    = "config.toml"
	workspaceDir  = "workspace"
	personaFile   = "SOUL.md"
	heartbeatFile = "HEARTBEAT.md"
	skillsDir     = "skills"
)

// Layout locates the files of one agent under the agents directory.
type Layout struct {
	// Root is <agentsDir>/<sellerId>.
	Root string
}

// NewLayout returns the layout for the seller's agent.
func NewLayout(agentsDir string, id agent.SellerID) Layout {
	return Layout{Root: filepath.Join(agentsDir, string(id))}
}

func (layout Layout) ConfigPath() string {
	return filepath.Join(layout.Root, configFile)
}

func (layout Layout) WorkspaceDir() string {
	return filepath.Join(layout.Root, workspaceDir)
}

func (layout Layout) PersonaPath() string {
	return filepath.Join(layout.WorkspaceDir(), personaFile)
}

func (layout Layout) HeartbeatPath() string {
	return filepath.Join(layout.WorkspaceDir(), heartbeatFile)
}

func (layout Layout) SkillsDir() string {
	return filepath.Join(layout.WorkspaceDir(), skillsDir)
}
