// Package docker runs seller agents as long-lived docker containers.
//
// The container image provides the runtime entrypoint, so ServiceSpec.Executable is not
// used; the arguments become the container command. The agent directory is bind-mounted
// at the same path so config and workspace paths in the environment stay valid.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/avast/retry-go/v5"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

const (
	DefaultImage     = "ghcr.io/zeroclaw-labs/zeroclaw:latest"
	DefaultLogDriver = "journald"

	DefaultStartAttempts = 10
	DefaultStartInterval = time.Second

	labelSeller  = "id.nemu.seller"
	labelService = "id.nemu.service"
)

// Config selects the image and start wait for agent containers.
type Config struct {
	Image         string
	LogDriver     string
	StartAttempts uint
	StartInterval time.Duration
}

type containerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Registrar implements agent.ServiceRegistrar on the docker engine.
type Registrar struct {
	api    containerAPI
	config Config
}

var _ agent.ServiceRegistrar = (*Registrar)(nil)

// NewRegistrar creates a registrar connected to the docker engine from the environment.
func NewRegistrar(config Config) (*Registrar, *client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("docker client: %w", err)
	}

	return newRegistrar(cli, config), cli, nil
}

func newRegistrar(api containerAPI, config Config) *Registrar {
	if config.Image == "" {
		config.Image = DefaultImage
	}
	if config.LogDriver == "" {
		config.LogDriver = DefaultLogDriver
	}
	if config.StartAttempts == 0 {
		config.StartAttempts = DefaultStartAttempts
	}
	if config.StartInterval <= 0 {
		config.StartInterval = DefaultStartInterval
	}

	return &Registrar{api: api, config: config}
}

// Register replaces any container named after the service with a fresh one and waits
// until it is running.
func (registrar *Registrar) Register(ctx context.Context, spec agent.ServiceSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: service name is required", agent.ErrRegistration)
	}

	name := string(spec.Name)

	if err := registrar.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("%w: remove previous container %s: %w", agent.ErrRegistration, name, err)
	}

	containerConfig := &container.Config{
		Image:      registrar.config.Image,
		Cmd:        spec.Arguments,
		Env:        environment(spec.Environment),
		WorkingDir: spec.WorkingDirectory,
		Labels: map[string]string{
			labelService: name,
			labelSeller:  spec.Environment["NEMU_SELLER_ID"],
		},
	}

	hostConfig := &container.HostConfig{
		NetworkMode:   network.NetworkHost,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyOnFailure},
		LogConfig: container.LogConfig{
			Type:   registrar.config.LogDriver,
			Config: map[string]string{"tag": name},
		},
	}
	if spec.WorkingDirectory != "" {
		hostConfig.Binds = []string{spec.WorkingDirectory + ":" + spec.WorkingDirectory}
	}

	created, err := registrar.api.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return fmt.Errorf("%w: create container %s: %w", agent.ErrRegistration, name, err)
	}

	if err := registrar.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start container %s: %w", agent.ErrStart, name, err)
	}

	if err := registrar.waitRunning(ctx, spec.Name); err != nil {
		return err
	}

	slog.Info("Container running.",
		slog.String("service", name),
		slog.String("containerId", created.ID),
	)

	return nil
}

// Active reports whether the service container exists and is running.
func (registrar *Registrar) Active(ctx context.Context, name agent.ServiceName) (bool, error) {
	inspect, err := registrar.api.ContainerInspect(ctx, string(name))
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", name, err)
	}

	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return false, nil
	}

	return inspect.State.Running, nil
}

func (registrar *Registrar) waitRunning(ctx context.Context, name agent.ServiceName) error {
	errNotRunning := errors.New("container not running")

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(registrar.config.StartAttempts),
		retry.Delay(registrar.config.StartInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		running, err := registrar.Active(ctx, name)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if !running {
			return errNotRunning
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s not running after %d checks: %w", agent.ErrStart, name, registrar.config.StartAttempts, err)
	}

	return nil
}

func environment(env map[string]string) []string {
	keys := slices.Sorted(maps.Keys(env))

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+env[key])
	}

	return pairs
}
