package nemuctl

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/provision"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
)

// ProvisionOutputItem is the outcome of provisioning one seller.
type ProvisionOutputItem struct {
	RunID       agent.RunID       `json:"runId,omitempty"`
	SellerID    agent.SellerID    `json:"sellerId"`
	State       agent.RunState    `json:"state"`
	FailedStage agent.RunState    `json:"failedStage,omitempty"`
	Error       *string           `json:"error,omitempty"`
	Port        int               `json:"port,omitempty"`
	PortReused  bool              `json:"portReused"`
	Service     agent.ServiceName `json:"service"`
	AgentDir    string            `json:"agentDir"`
	Elapsed     utils.Duration    `json:"elapsed"`
}

type ProvisionOutput struct {
	Items  []ProvisionOutputItem `json:"items"`
	Count  int                   `json:"count"`
	Failed int                   `json:"failed"`
}

// ProvisionCmd provisions sellers one after another. A failed seller does not stop the
// others; the command fails when any seller failed.
type ProvisionCmd struct {
	SellerIDs []agent.SellerID `arg:"" name:"seller-id" help:"Sellers to provision."`
}

func (command *ProvisionCmd) Run(ctx context.Context, host *cli.Host, runRepository agent.RunRepository, settings *cli.Settings) error {
	output := ProvisionOutput{Items: make([]ProvisionOutputItem, 0, len(command.SellerIDs))}

	var failures []error
	for _, sellerID := range command.SellerIDs {
		item, err := command.provision(ctx, host, runRepository, settings, sellerID)
		output.Items = append(output.Items, item)
		if err != nil {
			failures = append(failures, err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	output.Count = len(output.Items)
	output.Failed = len(failures)

	if settings.Metrics.Textfile != "" {
		if err := host.Metrics.WriteTextfile(settings.Metrics.Textfile); err != nil {
			slog.Warn("Cannot write metrics.", slog.String("path", settings.Metrics.Textfile), slog.String("error", err.Error()))
		}
	}

	if err := writeOutput(output); err != nil {
		return err
	}

	return errors.Join(failures...)
}

func (command *ProvisionCmd) provision(ctx context.Context, host *cli.Host, runRepository agent.RunRepository, settings *cli.Settings, sellerID agent.SellerID) (ProvisionOutputItem, error) {
	pipeline := host.Pipeline

	recorder, err := provision.NewRunRecorder(ctx, runRepository, agent.RunInput{
		SellerID:       sellerID,
		ServiceBackend: settings.Service.ServiceBackend(),
		HostID:         host.HostID,
	})
	if err != nil {
		slog.Warn("Provisioning without run record.", slog.String("sellerId", string(sellerID)), slog.String("error", err.Error()))
	} else {
		pipeline = pipeline.WithObservers(recorder)
		slog.Info("Created provisioning run.", slog.String("runId", string(recorder.RunID())), slog.String("sellerId", string(sellerID)))
	}

	result, err := pipeline.Run(ctx, sellerID)

	item := ProvisionOutputItem{
		SellerID:    sellerID,
		State:       result.State,
		FailedStage: result.FailedStage,
		Port:        result.Port,
		PortReused:  result.PortReused,
		Service:     result.Service,
		AgentDir:    result.Layout.Root,
		Elapsed:     utils.Duration(result.Elapsed),
	}
	if recorder != nil {
		item.RunID = recorder.RunID()
	}
	if err != nil {
		item.Error = utils.ToPointer(err.Error())
		return item, err
	}

	slog.Info("Seller agent provisioned.",
		slog.String("sellerId", string(sellerID)),
		slog.Int("port", result.Port),
		slog.String("service", string(result.Service)),
	)

	return item, nil
}
