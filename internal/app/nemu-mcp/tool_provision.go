package nemu_mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/provision"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
)

const provisionToolName = "provision_seller"

type provisionResult struct {
	RunID      agent.RunID       `json:"runId,omitempty"`
	SellerID   agent.SellerID    `json:"sellerId"`
	State      agent.RunState    `json:"state"`
	Port       int               `json:"port"`
	PortReused bool              `json:"portReused"`
	Service    agent.ServiceName `json:"service"`
	AgentDir   string            `json:"agentDir"`
	Elapsed    utils.Duration    `json:"elapsed"`
}

func createProvisionTool(host *cli.Host, runRepository agent.RunRepository, settings cli.Settings) mcpserver.ServerTool {
	tool := mcp.NewTool(provisionToolName,
		mcp.WithDescription("Provisions the agent of a Nemu seller on this host: fetches the seller, allocates a port, writes the workspace, starts the service and reports it to the platform. Safe to repeat."),
		mcp.WithString("sellerId",
			mcp.Description("Identifier of the seller to provision."),
			mcp.Required(),
		),
	)

	handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sellerID, err := request.RequireString("sellerId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		pipeline := host.Pipeline

		recorder, err := provision.NewRunRecorder(ctx, runRepository, agent.RunInput{
			SellerID:       agent.SellerID(sellerID),
			ServiceBackend: settings.Service.ServiceBackend(),
			HostID:         host.HostID,
		})
		if err != nil {
			slog.Warn("Provisioning without run record.", slog.String("sellerId", sellerID), slog.String("error", err.Error()))
		} else {
			pipeline = pipeline.WithObservers(recorder)
		}

		result, err := pipeline.Run(ctx, agent.SellerID(sellerID))

		if settings.Metrics.Textfile != "" {
			if writeErr := host.Metrics.WriteTextfile(settings.Metrics.Textfile); writeErr != nil {
				slog.Warn("Cannot write metrics.", slog.String("path", settings.Metrics.Textfile), slog.String("error", writeErr.Error()))
			}
		}

		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		output := provisionResult{
			SellerID:   result.SellerID,
			State:      result.State,
			Port:       result.Port,
			PortReused: result.PortReused,
			Service:    result.Service,
			AgentDir:   result.Layout.Root,
			Elapsed:    utils.Duration(result.Elapsed),
		}
		if recorder != nil {
			output.RunID = recorder.RunID()
		}

		return mcp.NewToolResultStructured(output, fmt.Sprintf("Seller %s provisioned on port %d.", result.SellerID, result.Port)), nil
	}

	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: handler,
	}
}
