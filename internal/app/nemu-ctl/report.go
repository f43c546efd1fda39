package nemuctl

import (
	"context"
	"log/slog"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
)

type ReportOutput struct {
	SellerID agent.SellerID    `json:"sellerId"`
	Status   agent.AgentStatus `json:"agentStatus"`
	Port     int               `json:"agentPort"`
	ServerID string            `json:"agentServerId"`
}

// ReportCmd re-sends the status report of an already provisioned seller, using the port
// from its workspace config. It is the retry path after a failed reporting stage.
type ReportCmd struct {
	SellerID agent.SellerID `arg:"" required:"" help:"Seller to report."`
}

func (command *ReportCmd) Run(ctx context.Context, host *cli.Host) error {
	result, err := host.Pipeline.Report(ctx, command.SellerID)
	if err != nil {
		return err
	}

	slog.Info("Agent status reported.", slog.String("sellerId", string(command.SellerID)), slog.Int("port", result.Port))

	return writeOutput(ReportOutput{
		SellerID: command.SellerID,
		Status:   agent.AgentStatusActive,
		Port:     result.Port,
		ServerID: host.HostID,
	})
}
