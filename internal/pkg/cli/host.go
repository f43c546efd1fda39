package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/metrics"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/portalloc"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/process"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/provision"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/registry"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/runtime/zeroclaw"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/service/docker"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/service/systemd"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/template"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/workspace"
	"github.com/spf13/afero"
)

// Host is the set of components built from Settings for one command.
type Host struct {
	Pipeline  *provision.Pipeline
	Services  agent.ServiceRegistrar
	Metrics   *metrics.Metrics
	AgentsDir string
	HostID    string

	closers []func() error
}

// NewHost builds the provisioning pipeline and its collaborators. Close releases them.
func NewHost(ctx context.Context, settings Settings, fs afero.Fs) (*Host, error) {
	agentsDir, err := ResolveDir(settings.Host.AgentsDir)
	if err != nil {
		return nil, fmt.Errorf("resolve agents dir: %w", err)
	}

	hostID, err := ResolveHostID(settings.Host.HostID)
	if err != nil {
		return nil, fmt.Errorf("resolve host id: %w", err)
	}

	registryClient, err := registry.NewClient(settings.Registry.URL, settings.Registry.Token, settings.Registry.Timeout)
	if err != nil {
		return nil, fmt.Errorf("create registry client: %w", err)
	}

	allocator, err := portalloc.NewAllocator(settings.Ports.Host, settings.Ports.Base, settings.Ports.MaxAttempts, nil)
	if err != nil {
		return nil, fmt.Errorf("create port allocator: %w", err)
	}

	templates, err := LoadTemplates(settings.Runtime.TemplatesDir)
	if err != nil {
		return nil, err
	}

	host := &Host{
		Metrics:   metrics.New(),
		AgentsDir: agentsDir,
		HostID:    hostID,
	}

	host.Services, err = host.newServiceRegistrar(settings.Service, fs)
	if err != nil {
		return nil, err
	}

	apiURL := settings.Runtime.APIURL
	if apiURL == "" {
		apiURL = settings.Registry.URL
	}

	host.Pipeline, err = provision.NewPipeline(provision.Dependencies{
		Registry:     registryClient,
		Allocator:    allocator,
		Templates:    templates,
		Settings:     settings.Runtime.ZeroclawSettings(settings.Ports.Host),
		Materializer: workspace.NewMaterializer(fs),
		Services:     host.Services,
		Fs:           fs,
		Observers:    []provision.Observer{host.Metrics},
	}, provision.Config{
		AgentsDir:    agentsDir,
		HostID:       hostID,
		APIURL:       apiURL,
		Executable:   resolveExecutable(ctx, settings),
		RestartDelay: settings.Service.RestartDelay,
	})
	if err != nil {
		_ = host.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return host, nil
}

// Close releases connections held by the host components.
func (host *Host) Close() error {
	for _, closer := range host.closers {
		if err := closer(); err != nil {
			return err
		}
	}

	return nil
}

func (host *Host) newServiceRegistrar(config ServiceConfig, fs afero.Fs) (agent.ServiceRegistrar, error) {
	switch config.ServiceBackend() {
	case agent.ServiceBackendDocker:
		registrar, client, err := docker.NewRegistrar(docker.Config{
			Image:         config.Image,
			StartAttempts: config.StartAttempts,
			StartInterval: config.StartInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("create docker registrar: %w", err)
		}
		host.closers = append(host.closers, client.Close)

		return registrar, nil
	case agent.ServiceBackendSystemd, "":
		unitDir := config.UnitDir
		if unitDir == "" {
			unitDir = systemd.SystemUnitDir
			if config.User {
				unitDir = systemd.UserUnitDir
			}
		}

		unitDir, err := homedir.Expand(unitDir)
		if err != nil {
			return nil, fmt.Errorf("expand unit dir: %w", err)
		}

		return systemd.NewRegistrar(fs, process.NewExecRunner(), systemd.Config{
			UnitDir:       unitDir,
			User:          config.User,
			StartAttempts: config.StartAttempts,
			StartInterval: config.StartInterval,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown service backend %q", agent.ErrValidation, config.Backend)
	}
}

// LoadTemplates returns the built-in templates, or the templates in dir when it is set.
func LoadTemplates(dir string) (template.Set, error) {
	if dir == "" {
		set, err := template.DefaultSet()
		if err != nil {
			return template.Set{}, fmt.Errorf("load built-in templates: %w", err)
		}
		return set, nil
	}

	resolved, err := ResolveDir(dir)
	if err != nil {
		return template.Set{}, fmt.Errorf("resolve templates dir: %w", err)
	}

	set, err := template.LoadSet(os.DirFS(resolved))
	if err != nil {
		return template.Set{}, fmt.Errorf("load templates from %s: %w", resolved, err)
	}

	return set, nil
}

// resolveExecutable returns the runtime binary for systemd units. Docker images carry
// their own entrypoint, and a missing binary only fails the registering stage.
func resolveExecutable(ctx context.Context, settings Settings) string {
	if settings.Runtime.Executable != "" || settings.Service.ServiceBackend() == agent.ServiceBackendDocker {
		return settings.Runtime.Executable
	}

	executable, err := zeroclaw.LocateExecutable(ctx)
	if err != nil {
		slog.Warn("Runtime executable not found.", slog.String("error", err.Error()))
		return ""
	}

	return executable
}
