package nemuctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/workspace"
	"github.com/spf13/afero"
)

const healthPath = "/health"

type HealthOutput struct {
	URL        string  `json:"url"`
	Healthy    bool    `json:"healthy"`
	StatusCode int     `json:"statusCode,omitempty"`
	Error      *string `json:"error,omitempty"`
}

type AgentStatusOutput struct {
	SellerID agent.SellerID    `json:"sellerId"`
	Service  agent.ServiceName `json:"service"`
	Active   bool              `json:"active"`
	Port     int               `json:"port"`
	Health   HealthOutput      `json:"health"`
}

// AgentStatusCmd reports whether an agent's service is running and its gateway answers.
type AgentStatusCmd struct {
	SellerID      agent.SellerID `arg:"" required:"" help:"Seller to inspect."`
	HealthTimeout time.Duration  `default:"3s" help:"Timeout of the health probe."`
}

func (command *AgentStatusCmd) Run(ctx context.Context, host *cli.Host, fs afero.Fs) error {
	if err := command.SellerID.Validate(); err != nil {
		return err
	}

	layout := workspace.NewLayout(host.AgentsDir, command.SellerID)

	config, err := zeroclaw.ReadConfig(fs, layout.ConfigPath())
	if err != nil {
		if errors.Is(err, zeroclaw.ErrConfigNotFound) {
			return fmt.Errorf("%w: seller %s has no workspace", agent.ErrNotFound, command.SellerID)
		}
		return err
	}

	service := agent.ServiceNameFor(command.SellerID)

	active, err := host.Services.Active(ctx, service)
	if err != nil {
		return fmt.Errorf("check service %s: %w", service, err)
	}

	client := &http.Client{Timeout: command.HealthTimeout}

	return writeOutput(AgentStatusOutput{
		SellerID: command.SellerID,
		Service:  service,
		Active:   active,
		Port:     config.Gateway.Port,
		Health:   probeHealth(ctx, client, config.Gateway.Host, config.Gateway.Port),
	})
}

// probeHealth calls the agent gateway health endpoint. A failed probe is reported, not
// returned as an error.
func probeHealth(ctx context.Context, client *http.Client, host string, port int) HealthOutput {
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	output := HealthOutput{URL: "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + healthPath}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, output.URL, nil)
	if err != nil {
		output.Error = toErrorString(err)
		return output
	}

	resp, err := client.Do(req)
	if err != nil {
		output.Error = toErrorString(err)
		return output
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	output.StatusCode = resp.StatusCode
	output.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300

	return output
}

func toErrorString(err error) *string {
	message := err.Error()
	return &message
}
