package nemu_mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/workspace"
	"github.com/spf13/afero"
)

const listAgentsToolName = "list_agents"

type agentItem struct {
	SellerID agent.SellerID    `json:"sellerId"`
	Port     int               `json:"port"`
	Service  agent.ServiceName `json:"service"`
	AgentDir string            `json:"agentDir"`
}

type agentList struct {
	Items []agentItem `json:"items"`
	Count int         `json:"count"`
}

func createListAgentsTool(fs afero.Fs, agentsDir string) mcpserver.ServerTool {
	tool := mcp.NewTool(listAgentsToolName,
		mcp.WithDescription("Lists the seller agents provisioned on this host with their gateway ports."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agents, err := workspace.Agents(fs, agentsDir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		output := agentList{Items: make([]agentItem, 0, len(agents))}
		lines := make([]string, 0, len(agents))
		for _, provisioned := range agents {
			output.Items = append(output.Items, agentItem{
				SellerID: provisioned.SellerID,
				Port:     provisioned.Config.Gateway.Port,
				Service:  agent.ServiceNameFor(provisioned.SellerID),
				AgentDir: provisioned.Layout.Root,
			})
			lines = append(lines, fmt.Sprintf("%s: port %d", provisioned.SellerID, provisioned.Config.Gateway.Port))
		}
		output.Count = len(output.Items)

		fallback := fmt.Sprintf("%d agents provisioned.", output.Count)
		if len(lines) > 0 {
			fallback += "\n" + strings.Join(lines, "\n")
		}

		return mcp.NewToolResultStructured(output, fallback), nil
	}

	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: handler,
	}
}
