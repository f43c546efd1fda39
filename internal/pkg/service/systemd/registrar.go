// Package systemd declares seller agents as systemd services.
package systemd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/process"
	"github.com/spf13/afero"
)

const (
	SystemUnitDir = "/etc/systemd/system"
	UserUnitDir   = "~/.config/systemd/user"

	DefaultStartAttempts = 10
	DefaultStartInterval = time.Second

	systemctl = "systemctl"

	loadStateLoaded = "loaded"
)

// Config controls where units are written and how long to wait for them to start.
type Config struct {
	// UnitDir is the directory unit files are written to.
	UnitDir string

	// User manages units with systemctl --user.
	User bool

	// StartAttempts is how many times is-active is polled after a restart.
	StartAttempts uint

	// StartInterval is the delay between is-active polls.
	StartInterval time.Duration

	// Systemctl overrides the systemctl executable.
	Systemctl string
}

// Registrar implements agent.ServiceRegistrar with unit files and systemctl.
type Registrar struct {
	fs     afero.Fs
	runner process.Runner
	config Config
}

var _ agent.ServiceRegistrar = (*Registrar)(nil)

// NewRegistrar creates a systemd registrar. Zero config fields fall back to defaults.
func NewRegistrar(fs afero.Fs, runner process.Runner, config Config) *Registrar {
	if config.UnitDir == "" {
		config.UnitDir = SystemUnitDir
	}
	if config.StartAttempts == 0 {
		config.StartAttempts = DefaultStartAttempts
	}
	if config.StartInterval <= 0 {
		config.StartInterval = DefaultStartInterval
	}
	if config.Systemctl == "" {
		config.Systemctl = systemctl
	}

	return &Registrar{fs: fs, runner: runner, config: config}
}

// Register writes the environment file and the unit, reloads systemd, checks that the unit
// loaded, enables and restarts it, then waits until it is active.
func (registrar *Registrar) Register(ctx context.Context, spec agent.ServiceSpec) error {
	environmentPath := ""
	if len(spec.Environment) > 0 {
		environmentPath = registrar.environmentPath(spec)
	}

	unit, err := RenderUnit(spec, registrar.config.User, environmentPath)
	if err != nil {
		return err
	}

	if environmentPath != "" {
		if _, err := registrar.writeFile(environmentPath, []byte(RenderEnvironment(spec)), 0o600); err != nil {
			return fmt.Errorf("%w: environment file: %w", agent.ErrRegistration, err)
		}
	}

	unitName := UnitFileName(spec.Name)
	unitPath := filepath.Join(registrar.config.UnitDir, unitName)

	changed, err := registrar.writeFile(unitPath, []byte(unit), 0o644)
	if err != nil {
		return fmt.Errorf("%w: unit file: %w", agent.ErrRegistration, err)
	}

	slog.Debug("Unit file written.",
		slog.String("path", unitPath),
		slog.Bool("changed", changed),
	)

	if _, err := registrar.systemctl(ctx, "daemon-reload"); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrRegistration, err)
	}

	if err := registrar.checkLoaded(ctx, unitName); err != nil {
		return err
	}

	if _, err := registrar.systemctl(ctx, "enable", unitName); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrRegistration, err)
	}

	if _, err := registrar.systemctl(ctx, "restart", unitName); err != nil {
		return fmt.Errorf("%w: %w", agent.ErrStart, err)
	}

	if err := registrar.waitActive(ctx, spec.Name); err != nil {
		return err
	}

	slog.Info("Service active.", slog.String("service", string(spec.Name)))

	return nil
}

// Active reports whether systemd considers the unit active.
func (registrar *Registrar) Active(ctx context.Context, name agent.ServiceName) (bool, error) {
	_, err := registrar.systemctl(ctx, "is-active", "--quiet", UnitFileName(name))
	if err == nil {
		return true, nil
	}

	var commandErr *process.CommandError
	if errors.As(err, &commandErr) && commandErr.ExitCode != nil {
		return false, nil
	}

	return false, err
}

// checkLoaded fails with agent.ErrRegistration unless systemd parsed the unit. A unit with a
// bad setting survives daemon-reload and enable and only fails on start.
func (registrar *Registrar) checkLoaded(ctx context.Context, unitName string) error {
	output, err := registrar.systemctl(ctx, "show", "--property=LoadState", "--value", unitName)
	if err != nil {
		return fmt.Errorf("%w: %w", agent.ErrRegistration, err)
	}

	if state := strings.TrimSpace(string(output)); state != loadStateLoaded {
		return fmt.Errorf("%w: unit %s load state is %q", agent.ErrRegistration, unitName, state)
	}

	return nil
}

func (registrar *Registrar) waitActive(ctx context.Context, name agent.ServiceName) error {
	errNotActive := errors.New("unit not active")

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(registrar.config.StartAttempts),
		retry.Delay(registrar.config.StartInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		active, err := registrar.Active(ctx, name)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		if !active {
			return errNotActive
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s not active after %d checks: %w", agent.ErrStart, name, registrar.config.StartAttempts, err)
	}

	return nil
}

func (registrar *Registrar) systemctl(ctx context.Context, args ...string) ([]byte, error) {
	if registrar.config.User {
		args = append([]string{"--user"}, args...)
	}

	return registrar.runner.Run(ctx, registrar.config.Systemctl, args...)
}

// environmentPath places the environment file in the agent root, or next to the unit when
// the service has no working directory.
func (registrar *Registrar) environmentPath(spec agent.ServiceSpec) string {
	if spec.WorkingDirectory != "" {
		return filepath.Join(spec.WorkingDirectory, EnvironmentFileName)
	}

	return filepath.Join(registrar.config.UnitDir, string(spec.Name)+".env")
}

// writeFile replaces the file when its content differs and reports whether it did. The
// mode is applied either way.
func (registrar *Registrar) writeFile(path string, data []byte, perm os.FileMode) (bool, error) {
	existing, err := afero.ReadFile(registrar.fs, path)
	if err == nil && bytes.Equal(existing, data) {
		if err := registrar.fs.Chmod(path, perm); err != nil {
			return false, fmt.Errorf("set mode of %s: %w", path, err)
		}
		return false, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := registrar.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + "~"
	if err := afero.WriteFile(registrar.fs, tmpPath, data, perm); err != nil {
		return false, fmt.Errorf("write temp file: %w", err)
	}

	if err := registrar.fs.Chmod(tmpPath, perm); err != nil {
		_ = registrar.fs.Remove(tmpPath)
		return false, fmt.Errorf("set mode of temp file: %w", err)
	}

	if err := registrar.fs.Rename(tmpPath, path); err != nil {
		_ = registrar.fs.Remove(tmpPath)
		return false, fmt.Errorf("rename temp file: %w", err)
	}

	return true, nil
}
