// Package provision drives a seller through the provisioning state machine:
// fetching, allocating, rendering, materializing, registering and reporting.
//
// Stages run strictly in order. The first failing stage ends the run with a *StageError
// and no later stage is invoked. Nothing is rolled back; every stage is safe to repeat,
// so re-running provisioning converges.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/portalloc"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/template"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/workspace"
	"github.com/spf13/afero"
)

const (
	EnvSellerID    = "NEMU_SELLER_ID"
	EnvAgentAPIKey = "NEMU_AGENT_API_KEY"
	EnvAPIURL      = "NEMU_API_URL"
)

// Config holds the host-level options of the pipeline.
type Config struct {
	// AgentsDir is the directory holding one subdirectory per seller.
	AgentsDir string

	// HostID is reported to the registry as the agent server identifier.
	HostID string

	// APIURL is the platform API base URL passed to agents.
	APIURL string

	// Executable is the runtime binary the service starts.
	Executable string

	// RestartDelay is the delay before a crashed agent is restarted.
	RestartDelay time.Duration
}

// Dependencies are the collaborators of the pipeline.
type Dependencies struct {
	Registry     agent.Registry
	Allocator    *portalloc.Allocator
	Templates    template.Set
	Settings     zeroclaw.Settings
	Materializer *workspace.Materializer
	Services     agent.ServiceRegistrar

	// Fs is used to read a previous run's config for port reuse.
	Fs afero.Fs

	Observers []Observer
}

// Pipeline provisions seller agents.
type Pipeline struct {
	deps   Dependencies
	config Config
	now    func() time.Time
}

// Result summarizes a provisioning run.
type Result struct {
	SellerID agent.SellerID
	State    agent.RunState

	// FailedStage is set when State is agent.RunFailed.
	FailedStage agent.RunState

	Port int

	// PortReused reports that the seller's previous port was kept.
	PortReused bool

	Layout  workspace.Layout
	Service agent.ServiceName

	// Timings holds the duration of every stage that ran.
	Timings map[agent.RunState]time.Duration
	Elapsed time.Duration
}

// run is the state threaded through the stages of one invocation.
type run struct {
	id         agent.SellerID
	profile    agent.SellerProfile
	port       int
	portReused bool
	layout     workspace.Layout
	artifacts  zeroclaw.Artifacts
}

type stage struct {
	state agent.RunState
	exec  func(ctx context.Context, r *run) error
}

// NewPipeline validates the configuration and creates a pipeline.
func NewPipeline(deps Dependencies, config Config) (*Pipeline, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry is required", agent.ErrValidation)
	case deps.Allocator == nil:
		return nil, fmt.Errorf("%w: port allocator is required", agent.ErrValidation)
	case deps.Materializer == nil:
		return nil, fmt.Errorf("%w: materializer is required", agent.ErrValidation)
	case deps.Services == nil:
		return nil, fmt.Errorf("%w: service registrar is required", agent.ErrValidation)
	case deps.Fs == nil:
		return nil, fmt.Errorf("%w: filesystem is required", agent.ErrValidation)
	case config.AgentsDir == "":
		return nil, fmt.Errorf("%w: agents directory is required", agent.ErrValidation)
	case config.HostID == "":
		return nil, fmt.Errorf("%w: host id is required", agent.ErrValidation)
	}

	if err := deps.Settings.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{deps: deps, config: config, now: time.Now}, nil
}

// WithObservers returns a copy of the pipeline that also notifies observers.
func (pipeline *Pipeline) WithObservers(observers ...Observer) *Pipeline {
	clone := *pipeline
	clone.deps.Observers = append(slices.Clone(pipeline.deps.Observers), observers...)

	return &clone
}

// Run provisions the seller end to end.
// Returns a *StageError naming the failed stage; the Result is populated in both cases.
func (pipeline *Pipeline) Run(ctx context.Context, id agent.SellerID) (Result, error) {
	return pipeline.execute(ctx, id, []stage{
		{state: agent.RunFetching, exec: pipeline.fetch},
		{state: agent.RunAllocating, exec: pipeline.allocate},
		{state: agent.RunRendering, exec: pipeline.render},
		{state: agent.RunMaterializing, exec: pipeline.materialize},
		{state: agent.RunRegistering, exec: pipeline.register},
		{state: agent.RunReporting, exec: pipeline.report},
	})
}

// Render runs fetching, allocating and rendering only and returns the artifacts that
// Run would write. Nothing on the host is changed.
func (pipeline *Pipeline) Render(ctx context.Context, id agent.SellerID) (Result, zeroclaw.Artifacts, error) {
	var rendered zeroclaw.Artifacts

	result, err := pipeline.execute(ctx, id, []stage{
		{state: agent.RunFetching, exec: pipeline.fetch},
		{state: agent.RunAllocating, exec: pipeline.allocate},
		{state: agent.RunRendering, exec: func(ctx context.Context, r *run) error {
			if err := pipeline.render(ctx, r); err != nil {
				return err
			}
			rendered = r.artifacts
			return nil
		}},
	})

	return result, rendered, err
}

// Report re-sends the status report for an already provisioned seller using the port
// recorded in its config.
func (pipeline *Pipeline) Report(ctx context.Context, id agent.SellerID) (Result, error) {
	return pipeline.execute(ctx, id, []stage{
		{state: agent.RunReporting, exec: func(ctx context.Context, r *run) error {
			if err := r.id.Validate(); err != nil {
				return err
			}

			config, err := zeroclaw.ReadConfig(pipeline.deps.Fs, r.layout.ConfigPath())
			if err != nil {
				if errors.Is(err, zeroclaw.ErrConfigNotFound) {
					return fmt.Errorf("%w: seller %s has no workspace", agent.ErrNotFound, id)
				}
				return err
			}

			r.port = config.Gateway.Port

			return pipeline.report(ctx, r)
		}},
	})
}

func (pipeline *Pipeline) execute(ctx context.Context, id agent.SellerID, stages []stage) (Result, error) {
	startedAt := pipeline.now()

	r := &run{id: id, layout: workspace.NewLayout(pipeline.config.AgentsDir, id)}

	result := Result{
		SellerID: id,
		Layout:   r.layout,
		Service:  agent.ServiceNameFor(id),
		Timings:  map[agent.RunState]time.Duration{},
	}

	var previous agent.RunState
	var previousDuration time.Duration

	for _, current := range stages {
		pipeline.notify(ctx, Event{
			SellerID:         id,
			State:            current.state,
			Previous:         previous,
			PreviousDuration: previousDuration,
			Port:             r.port,
			Elapsed:          pipeline.now().Sub(startedAt),
		})

		stageStartedAt := pipeline.now()

		err := ctx.Err()
		if err == nil {
			err = current.exec(ctx, r)
		}

		previous = current.state
		previousDuration = pipeline.now().Sub(stageStartedAt)
		result.Timings[current.state] = previousDuration
		result.Port = r.port
		result.PortReused = r.portReused

		if err != nil {
			stageErr := &StageError{Stage: current.state, SellerID: id, Cause: err}

			result.State = agent.RunFailed
			result.FailedStage = current.state
			result.Elapsed = pipeline.now().Sub(startedAt)

			pipeline.notify(ctx, Event{
				SellerID:         id,
				State:            agent.RunFailed,
				Previous:         previous,
				PreviousDuration: previousDuration,
				FailedStage:      current.state,
				Err:              stageErr,
				Port:             r.port,
				Elapsed:          result.Elapsed,
			})

			slog.Error("Provisioning failed.",
				slog.String("sellerId", string(id)),
				slog.String("stage", string(current.state)),
				slog.String("error", err.Error()),
			)

			return result, stageErr
		}
	}

	result.State = agent.RunDone
	result.Elapsed = pipeline.now().Sub(startedAt)

	pipeline.notify(ctx, Event{
		SellerID:         id,
		State:            agent.RunDone,
		Previous:         previous,
		PreviousDuration: previousDuration,
		Port:             r.port,
		Elapsed:          result.Elapsed,
	})

	return result, nil
}

func (pipeline *Pipeline) notify(ctx context.Context, event Event) {
	event.At = pipeline.now()

	slog.Debug("Provisioning state changed.",
		slog.String("sellerId", string(event.SellerID)),
		slog.String("state", string(event.State)),
		slog.String("previous", string(event.Previous)),
		slog.Duration("previousDuration", event.PreviousDuration),
	)

	for _, observer := range pipeline.deps.Observers {
		observer.Transition(ctx, event)
	}
}

func (pipeline *Pipeline) fetch(ctx context.Context, r *run) error {
	if err := r.id.Validate(); err != nil {
		return err
	}

	profile, err := pipeline.deps.Registry.GetSeller(ctx, r.id)
	if err != nil {
		return err
	}

	r.profile = profile

	return nil
}

// allocate keeps the seller's previous port while its agent is running on it, otherwise
// probes for a free one.
func (pipeline *Pipeline) allocate(ctx context.Context, r *run) error {
	if port, ok := pipeline.previousPort(ctx, r); ok {
		r.port = port
		r.portReused = true

		slog.Info("Reusing port of running agent.",
			slog.String("sellerId", string(r.id)),
			slog.Int("port", port),
		)

		return nil
	}

	port, err := pipeline.deps.Allocator.Allocate(ctx)
	if err != nil {
		return err
	}

	r.port = port

	slog.Info("Port allocated.",
		slog.String("sellerId", string(r.id)),
		slog.Int("port", port),
	)

	return nil
}

func (pipeline *Pipeline) previousPort(ctx context.Context, r *run) (int, bool) {
	config, err := zeroclaw.ReadConfig(pipeline.deps.Fs, r.layout.ConfigPath())
	if err != nil {
		if !errors.Is(err, zeroclaw.ErrConfigNotFound) {
			slog.Warn("Ignoring unreadable previous config.",
				slog.String("path", r.layout.ConfigPath()),
				slog.String("error", err.Error()),
			)
		}
		return 0, false
	}

	if !pipeline.deps.Allocator.InRange(config.Gateway.Port) {
		return 0, false
	}

	active, err := pipeline.deps.Services.Active(ctx, agent.ServiceNameFor(r.id))
	if err != nil {
		slog.Warn("Cannot check previous service state.",
			slog.String("sellerId", string(r.id)),
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	return config.Gateway.Port, active
}

func (pipeline *Pipeline) render(_ context.Context, r *run) error {
	artifacts, err := zeroclaw.Render(pipeline.deps.Templates, pipeline.deps.Settings, zeroclaw.RenderInput{
		Profile:      r.profile,
		Port:         r.port,
		WorkspaceDir: r.layout.WorkspaceDir(),
	})
	if err != nil {
		return err
	}

	r.artifacts = artifacts

	return nil
}

func (pipeline *Pipeline) materialize(ctx context.Context, r *run) error {
	return pipeline.deps.Materializer.Materialize(ctx, r.layout, r.artifacts)
}

func (pipeline *Pipeline) register(ctx context.Context, r *run) error {
	return pipeline.deps.Services.Register(ctx, pipeline.serviceSpec(r))
}

func (pipeline *Pipeline) serviceSpec(r *run) agent.ServiceSpec {
	environment := zeroclaw.Environment(r.layout.ConfigPath(), r.layout.WorkspaceDir())
	environment[EnvSellerID] = string(r.id)
	environment[EnvAgentAPIKey] = r.profile.AgentAPIKey
	environment[EnvAPIURL] = pipeline.config.APIURL

	return agent.ServiceSpec{
		Name:             agent.ServiceNameFor(r.id),
		Description:      fmt.Sprintf("Nemu seller agent for %s (%s)", r.profile.StoreName, r.id),
		Executable:       pipeline.config.Executable,
		Arguments:        zeroclaw.DaemonArguments(),
		WorkingDirectory: r.layout.Root,
		Environment:      environment,
		RestartDelay:     pipeline.config.RestartDelay,
	}
}

func (pipeline *Pipeline) report(ctx context.Context, r *run) error {
	return pipeline.deps.Registry.ReportStatus(ctx, r.id, agent.StatusReport{
		AgentStatus:   agent.AgentStatusActive,
		AgentPort:     r.port,
		AgentServerID: pipeline.config.HostID,
	})
}
