package nemuctl

import (
	"context"
	"fmt"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/workspace"
	"github.com/spf13/afero"
)

// AgentListOutputItem represents a single provisioned agent.
type AgentListOutputItem struct {
	SellerID      agent.SellerID    `json:"sellerId"`
	Port          int               `json:"port"`
	Service       agent.ServiceName `json:"service"`
	AgentDir      string            `json:"agentDir"`
	MemoryBackend string            `json:"memoryBackend"`
}

type AgentListOutput struct {
	Items []AgentListOutputItem `json:"items"`
	Count int                   `json:"count"`
}

// AgentListCmd lists agents with a materialized workspace on this host.
type AgentListCmd struct{}

func (command *AgentListCmd) Run(ctx context.Context, fs afero.Fs, settings *cli.Settings) error {
	output, err := listAgents(ctx, fs, settings.Host.AgentsDir)
	if err != nil {
		return err
	}

	return writeOutput(output)
}

func listAgents(_ context.Context, fs afero.Fs, agentsDir string) (AgentListOutput, error) {
	agentsDir, err := cli.ResolveDir(agentsDir)
	if err != nil {
		return AgentListOutput{}, fmt.Errorf("resolve agents dir: %w", err)
	}

	agents, err := workspace.Agents(fs, agentsDir)
	if err != nil {
		return AgentListOutput{}, fmt.Errorf("list agents: %w", err)
	}

	items := make([]AgentListOutputItem, 0, len(agents))
	for _, provisioned := range agents {
		items = append(items, AgentListOutputItem{
			SellerID:      provisioned.SellerID,
			Port:          provisioned.Config.Gateway.Port,
			Service:       agent.ServiceNameFor(provisioned.SellerID),
			AgentDir:      provisioned.Layout.Root,
			MemoryBackend: provisioned.Config.Memory.Backend,
		})
	}

	return AgentListOutput{Items: items, Count: len(items)}, nil
}
