package docker

import (
	"context"
	"errors"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContainer struct {
	config     *container.Config
	hostConfig *container.HostConfig
	running    bool
}

type fakeEngine struct {
	containers map[string]*fakeContainer
	removed    []string

	createErr error
	startErr  error

	// neverRuns keeps started containers in the stopped state.
	neverRuns bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{containers: map[string]*fakeContainer{}}
}

func (engine *fakeEngine) ContainerInspect(_ context.Context, containerID string) (container.InspectResponse, error) {
	existing, ok := engine.containers[containerID]
	if !ok {
		return container.InspectResponse{}, cerrdefs.ErrNotFound
	}

	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			Name:  containerID,
			State: &container.State{Running: existing.running},
		},
	}, nil
}

func (engine *fakeEngine) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	if engine.createErr != nil {
		return container.CreateResponse{}, engine.createErr
	}

	if _, exists := engine.containers[containerName]; exists {
		return container.CreateResponse{}, cerrdefs.ErrConflict
	}

	engine.containers[containerName] = &fakeContainer{config: config, hostConfig: hostConfig}

	return container.CreateResponse{ID: containerName}, nil
}

func (engine *fakeEngine) ContainerStart(_ context.Context, containerID string, _ container.StartOptions) error {
	if engine.startErr != nil {
		return engine.startErr
	}

	engine.containers[containerID].running = !engine.neverRuns

	return nil
}

func (engine *fakeEngine) ContainerRemove(_ context.Context, containerID string, _ container.RemoveOptions) error {
	if _, ok := engine.containers[containerID]; !ok {
		return cerrdefs.ErrNotFound
	}

	delete(engine.containers, containerID)
	engine.removed = append(engine.removed, containerID)

	return nil
}

func testSpec() agent.ServiceSpec {
	return agent.ServiceSpec{
		Name:             agent.ServiceNameFor("s-42"),
		Executable:       "/usr/local/bin/zeroclaw",
		Arguments:        []string{"daemon"},
		WorkingDirectory: "/var/lib/nemu/agents/s-42",
		Environment: map[string]string{
			"ZEROCLAW_CONFIG": "/var/lib/nemu/agents/s-42/config.toml",
			"NEMU_SELLER_ID":  "s-42",
		},
	}
}

func testConfig() Config {
	return Config{StartAttempts: 2, StartInterval: time.Millisecond}
}

func TestRegistrar_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates running container", func(t *testing.T) {
		engine := newFakeEngine()
		require.NoError(t, newRegistrar(engine, testConfig()).Register(ctx, testSpec()))

		created := engine.containers["agent-s-42"]
		require.NotNil(t, created)
		assert.True(t, created.running)
		assert.Equal(t, DefaultImage, created.config.Image)
		assert.Equal(t, []string{"daemon"}, []string(created.config.Cmd))
		assert.Equal(t, []string{
			"NEMU_SELLER_ID=s-42",
			"ZEROCLAW_CONFIG=/var/lib/nemu/agents/s-42/config.toml",
		}, created.config.Env)
		assert.Equal(t, "s-42", created.config.Labels[labelSeller])
		assert.Equal(t, container.RestartPolicyOnFailure, created.hostConfig.RestartPolicy.Name)
		assert.Equal(t, "journald", created.hostConfig.LogConfig.Type)
		assert.True(t, created.hostConfig.NetworkMode.IsHost())
		assert.Equal(t, []string{"/var/lib/nemu/agents/s-42:/var/lib/nemu/agents/s-42"}, created.hostConfig.Binds)
	})

	t.Run("re-register replaces the container", func(t *testing.T) {
		engine := newFakeEngine()
		registrar := newRegistrar(engine, testConfig())

		require.NoError(t, registrar.Register(ctx, testSpec()))
		require.NoError(t, registrar.Register(ctx, testSpec()))

		assert.Len(t, engine.containers, 1)
		assert.Equal(t, []string{"agent-s-42"}, engine.removed)
	})

	t.Run("create rejected", func(t *testing.T) {
		engine := newFakeEngine()
		engine.createErr = errors.New("no such image")

		err := newRegistrar(engine, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrRegistration)
	})

	t.Run("start fails", func(t *testing.T) {
		engine := newFakeEngine()
		engine.startErr = errors.New("port already allocated")

		err := newRegistrar(engine, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrStart)
	})

	t.Run("never running", func(t *testing.T) {
		engine := newFakeEngine()
		engine.neverRuns = true

		err := newRegistrar(engine, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrStart)
	})
}

func TestRegistrar_Active(t *testing.T) {
	ctx := context.Background()
	engine := newFakeEngine()
	registrar := newRegistrar(engine, testConfig())

	active, err := registrar.Active(ctx, "agent-s-42")
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, registrar.Register(ctx, testSpec()))

	active, err = registrar.Active(ctx, "agent-s-42")
	require.NoError(t, err)
	assert.True(t, active)
}
