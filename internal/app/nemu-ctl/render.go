package nemuctl

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
)

const redacted = "<redacted>"

// RenderOutput holds the files provisioning would write for a seller.
type RenderOutput struct {
	SellerID   agent.SellerID `json:"sellerId"`
	Port       int            `json:"port"`
	PortReused bool           `json:"portReused"`
	AgentDir   string         `json:"agentDir"`
	Config     string         `json:"config"`
	Persona    string         `json:"persona"`
	Heartbeat  string         `json:"heartbeat"`
	Skills     []string       `json:"skills"`
}

// RenderCmd fetches a seller and renders the agent files without writing them, starting
// services or reporting.
type RenderCmd struct {
	SellerID    agent.SellerID `arg:"" required:"" help:"Seller to render."`
	ShowSecrets bool           `help:"Print API keys and database URLs in the config."`
}

func (command *RenderCmd) Run(ctx context.Context, host *cli.Host, settings *cli.Settings) error {
	result, artifacts, err := host.Pipeline.Render(ctx, command.SellerID)
	if err != nil {
		return err
	}

	config := string(artifacts.Config)
	if !command.ShowSecrets {
		config = redact(config, settings.Runtime.APIKey, settings.Runtime.DatabaseURL)
	}

	return writeOutput(RenderOutput{
		SellerID:   result.SellerID,
		Port:       result.Port,
		PortReused: result.PortReused,
		AgentDir:   result.Layout.Root,
		Config:     config,
		Persona:    string(artifacts.Persona),
		Heartbeat:  string(artifacts.Heartbeat),
		Skills:     slices.Sorted(maps.Keys(artifacts.Skills)),
	})
}

// redact replaces each secret in text, both as given and as it appears in a TOML string.
func redact(text string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, zeroclaw.TOMLString(secret), redacted)
		text = strings.ReplaceAll(text, secret, redacted)
	}

	return text
}
