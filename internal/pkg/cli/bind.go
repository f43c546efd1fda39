package cli

import (
	"context"
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	storefs "github.com/sabamen88/zeroclaw-nemu/internal/pkg/store/fs"
	"github.com/spf13/afero"
)

// Bind makes the command dependencies available to kong Run methods. The host and the
// run repository are built on first use, so commands that need neither never touch the
// service manager. The returned function closes whatever was built.
func Bind(ctx context.Context, kctx *kong.Context, settings *Settings, fs afero.Fs) (func() error, error) {
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.BindTo(fs, (*afero.Fs)(nil))
	kctx.Bind(settings)

	var host *Host
	err := kctx.BindToProvider(func() (*Host, error) {
		if host != nil {
			return host, nil
		}

		built, err := NewHost(ctx, *settings, fs)
		if err != nil {
			return nil, err
		}
		host = built

		return host, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bind host: %w", err)
	}

	var runRepository agent.RunRepository
	err = kctx.BindToProvider(func() (agent.RunRepository, error) {
		if runRepository != nil {
			return runRepository, nil
		}

		runsDir, err := ResolveRunsDir(settings.Host.StateDir)
		if err != nil {
			return nil, err
		}

		repository, err := storefs.NewRunRepository(runsDir, fs)
		if err != nil {
			return nil, fmt.Errorf("create run repository: %w", err)
		}
		runRepository = repository

		return runRepository, nil
	})
	if err != nil {
		return nil, fmt.Errorf("bind run repository: %w", err)
	}

	return func() error {
		if host == nil {
			return nil
		}
		return host.Close()
	}, nil
}
