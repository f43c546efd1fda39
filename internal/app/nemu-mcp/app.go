package nemu_mcp

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/spf13/afero"
)

const (
	serverName    = "nemu-mcp"
	serverVersion = "1.0.0"
)

type Command struct {
	Log      cli.LogConfig `embed:"" prefix:"log-"`
	Settings cli.Settings  `embed:""`
}

func (command *Command) Run(ctx context.Context, host *cli.Host, runRepository agent.RunRepository, fs afero.Fs) error {
	server := newServer(host, runRepository, fs, command.Settings)

	if err := mcpserver.ServeStdio(server); err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}

	return nil
}

func newServer(host *cli.Host, runRepository agent.RunRepository, fs afero.Fs, settings cli.Settings) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server.AddTools(
		createProvisionTool(host, runRepository, settings),
		createListAgentsTool(fs, host.AgentsDir),
	)

	return server
}
