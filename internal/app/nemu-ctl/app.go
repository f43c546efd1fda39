package nemuctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
)

type Command struct {
	Log      cli.LogConfig `embed:"" prefix:"log-"`
	Settings cli.Settings  `embed:""`

	Provision ProvisionCmd `cmd:"" help:"Provision seller agents end to end"`
	Render    RenderCmd    `cmd:"" help:"Render a seller's agent files without changing the host"`
	Report    ReportCmd    `cmd:"" help:"Re-send the status report of a provisioned seller"`
	Agent     AgentCmd     `cmd:"" help:"Inspect provisioned agents"`
	Run       RunCmd       `cmd:"" help:"Inspect provisioning runs"`
}

type AgentCmd struct {
	List   AgentListCmd   `cmd:"" help:"List provisioned agents"`
	Status AgentStatusCmd `cmd:"" help:"Show service and health of an agent"`
}

type RunCmd struct {
	List RunListCmd `cmd:"" help:"List provisioning runs"`
	Get  RunGetCmd  `cmd:"" help:"Show a provisioning run"`
}

// stdout is where command output is encoded.
var stdout io.Writer = os.Stdout

func writeOutput(output any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(output); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}
