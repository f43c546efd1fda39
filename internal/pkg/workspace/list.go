package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
	"github.com/spf13/afero"
)

// List returns the sellers with a materialized config under agentsDir, sorted.
// A missing agents directory yields an empty list.
func List(fs afero.Fs, agentsDir string) ([]agent.SellerID, error) {
	entries, err := afero.ReadDir(fs, agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []agent.SellerID{}, nil
		}
		return nil, fmt.Errorf("read agents directory: %w", err)
	}

	ids := make([]agent.SellerID, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := agent.SellerID(entry.Name())
		if id.Validate() != nil {
			continue
		}

		exists, err := afero.Exists(fs, NewLayout(agentsDir, id).ConfigPath())
		if err != nil {
			return nil, fmt.Errorf("check config for %s: %w", id, err)
		}

		if exists {
			ids = append(ids, id)
		}
	}

	slices.Sort(ids)

	return ids, nil
}

// Agent is a materialized agent workspace with its decoded config.
type Agent struct {
	SellerID agent.SellerID
	Layout   Layout
	Config   zeroclaw.RenderedConfig
}

// Agents lists the materialized workspaces under agentsDir with their config. Workspaces
// whose config cannot be read are logged and skipped.
func Agents(fs afero.Fs, agentsDir string) ([]Agent, error) {
	ids, err := List(fs, agentsDir)
	if err != nil {
		return nil, err
	}

	agents := make([]Agent, 0, len(ids))
	for _, id := range ids {
		layout := NewLayout(agentsDir, id)

		config, err := zeroclaw.ReadConfig(fs, layout.ConfigPath())
		if err != nil {
			slog.Warn("Failed to load agent config.",
				slog.String("sellerId", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}

		agents = append(agents, Agent{SellerID: id, Layout: layout, Config: config})
	}

	return agents, nil
}
