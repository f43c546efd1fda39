package nemuctl

import (
	"context"
	"fmt"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

type RunGetOutput struct {
	ID     agent.RunID     `json:"id"`
	Input  agent.RunInput  `json:"input"`
	Status agent.RunStatus `json:"status"`
}

// RunGetCmd prints the input and status of one run.
type RunGetCmd struct {
	ID agent.RunID `arg:"" required:"" help:"Run ID."`
}

func (command *RunGetCmd) Run(ctx context.Context, repository agent.RunRepository) error {
	if err := command.ID.Validate(); err != nil {
		return err
	}

	input, err := repository.GetInput(ctx, command.ID)
	if err != nil {
		return fmt.Errorf("get run input: %w", err)
	}

	status, err := repository.GetStatus(ctx, command.ID)
	if err != nil {
		return fmt.Errorf("get run status: %w", err)
	}

	return writeOutput(RunGetOutput{ID: command.ID, Input: input, Status: status})
}
