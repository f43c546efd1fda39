package nemuctl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

type RunListOutputItem struct {
	ID          agent.RunID    `json:"id"`
	SellerID    agent.SellerID `json:"sellerId"`
	State       agent.RunState `json:"state"`
	FailedStage agent.RunState `json:"failedStage,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type RunListOutput struct {
	Items []RunListOutputItem `json:"items"`
	Count int                 `json:"count"`
}

// RunListCmd lists provisioning runs, oldest first.
type RunListCmd struct {
	SellerID agent.SellerID `help:"Only list runs of this seller."`
}

func (command *RunListCmd) Run(ctx context.Context, repository agent.RunRepository) error {
	ids, err := repository.List(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	items := make([]RunListOutputItem, 0, len(ids))
	for _, id := range ids {
		input, err := repository.GetInput(ctx, id)
		if err != nil {
			slog.Warn("Failed to load run input", slog.String("runId", string(id)), slog.String("error", err.Error()))
			continue
		}

		if command.SellerID != "" && input.SellerID != command.SellerID {
			continue
		}

		status, err := repository.GetStatus(ctx, id)
		if err != nil {
			slog.Warn("Failed to load run status", slog.String("runId", string(id)), slog.String("error", err.Error()))
			continue
		}

		items = append(items, RunListOutputItem{
			ID:          id,
			SellerID:    input.SellerID,
			State:       status.State,
			FailedStage: status.FailedStage,
			CreatedAt:   status.CreatedAt,
		})
	}

	return writeOutput(RunListOutput{Items: items, Count: len(items)})
}
