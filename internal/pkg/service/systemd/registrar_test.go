package systemd

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/process"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/utils"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls []string

	// fail maps a systemctl subcommand to the error it returns.
	fail map[string]error

	// inactiveChecks is how many is-active calls report inactive before turning active.
	inactiveChecks int

	// loadState is what show reports for LoadState; empty means loaded.
	loadState string
}

func (runner *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")
	runner.calls = append(runner.calls, line)

	subcommand := args[0]
	if subcommand == "--user" {
		subcommand = args[1]
	}

	if err, ok := runner.fail[subcommand]; ok {
		return nil, err
	}

	if subcommand == "show" {
		if runner.loadState == "" {
			return []byte("loaded\n"), nil
		}
		return []byte(runner.loadState + "\n"), nil
	}

	if subcommand == "is-active" && runner.inactiveChecks > 0 {
		runner.inactiveChecks--
		return nil, exitError(line, 3)
	}

	return nil, nil
}

func exitError(command string, code int) error {
	return &process.CommandError{Command: command, ExitCode: utils.ToPointer(code), Cause: errors.New("exit status")}
}

func testSpec() agent.ServiceSpec {
	return agent.ServiceSpec{
		Name:             agent.ServiceNameFor("s-42"),
		Description:      "Nemu agent for Toko Kita",
		Executable:       "/usr/local/bin/zeroclaw",
		Arguments:        []string{"daemon"},
		WorkingDirectory: "/var/lib/nemu/agents/s-42",
		Environment: map[string]string{
			"ZEROCLAW_CONFIG":    "/var/lib/nemu/agents/s-42/config.toml",
			"ZEROCLAW_WORKSPACE": "/var/lib/nemu/agents/s-42/workspace",
			"NEMU_AGENT_API_KEY": `key"with%chars`,
		},
		RestartDelay: 5 * time.Second,
	}
}

func testConfig() Config {
	return Config{UnitDir: "/etc/systemd/system", StartAttempts: 3, StartInterval: time.Millisecond}
}

func TestRenderUnit(t *testing.T) {
	unit, err := RenderUnit(testSpec(), false, "/var/lib/nemu/agents/s-42/agent.env")
	require.NoError(t, err)

	assert.Equal(t, `[Unit]
Description=Nemu agent for Toko Kita
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory=/var/lib/nemu/agents/s-42
EnvironmentFile=/var/lib/nemu/agents/s-42/agent.env
ExecStart=/usr/local/bin/zeroclaw daemon
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=agent-s-42

[Install]
WantedBy=multi-user.target
`, unit)

	userUnit, err := RenderUnit(testSpec(), true, "")
	require.NoError(t, err)
	assert.Contains(t, userUnit, "WantedBy=default.target\n")
	assert.NotContains(t, userUnit, "EnvironmentFile=")

	_, err = RenderUnit(agent.ServiceSpec{Name: "agent-x"}, false, "")
	require.ErrorIs(t, err, agent.ErrRegistration)
}

func TestRenderEnvironment(t *testing.T) {
	assert.Equal(t, `NEMU_AGENT_API_KEY="key\"with%chars"
ZEROCLAW_CONFIG="/var/lib/nemu/agents/s-42/config.toml"
ZEROCLAW_WORKSPACE="/var/lib/nemu/agents/s-42/workspace"
`, RenderEnvironment(testSpec()))

	spec := agent.ServiceSpec{Environment: map[string]string{"TOKEN": "a$b\\c`d"}}
	assert.Equal(t, "TOKEN=\"a\\$b\\\\c\\`d\"\n", RenderEnvironment(spec))
}

func TestQuoteArgument(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{arg: "/usr/bin/zeroclaw", want: "/usr/bin/zeroclaw"},
		{arg: "/opt/my agents/zeroclaw", want: `"/opt/my agents/zeroclaw"`},
		{arg: "", want: `""`},
		{arg: "100%", want: "100%%"},
		{arg: "$HOME", want: "$$HOME"},
		{arg: "pay $5; now", want: `"pay $$5; now"`},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteArgument(tt.arg))
		})
	}
}

func TestRegistrar_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("declares and starts", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		runner := &fakeRunner{inactiveChecks: 1}

		require.NoError(t, NewRegistrar(fs, runner, testConfig()).Register(ctx, testSpec()))

		assert.Equal(t, []string{
			"systemctl daemon-reload",
			"systemctl show --property=LoadState --value agent-s-42.service",
			"systemctl enable agent-s-42.service",
			"systemctl restart agent-s-42.service",
			"systemctl is-active --quiet agent-s-42.service",
			"systemctl is-active --quiet agent-s-42.service",
		}, runner.calls)

		unit, err := afero.ReadFile(fs, "/etc/systemd/system/agent-s-42.service")
		require.NoError(t, err)
		assert.Contains(t, string(unit), "Restart=on-failure")
	})

	t.Run("secrets stay out of the unit", func(t *testing.T) {
		fs := afero.NewMemMapFs()

		require.NoError(t, NewRegistrar(fs, &fakeRunner{}, testConfig()).Register(ctx, testSpec()))

		unit, err := afero.ReadFile(fs, "/etc/systemd/system/agent-s-42.service")
		require.NoError(t, err)
		assert.NotContains(t, string(unit), "NEMU_AGENT_API_KEY")
		assert.NotContains(t, string(unit), `key\"with`)
		assert.Contains(t, string(unit), "EnvironmentFile=/var/lib/nemu/agents/s-42/agent.env\n")

		info, err := fs.Stat("/var/lib/nemu/agents/s-42/agent.env")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		env, err := afero.ReadFile(fs, "/var/lib/nemu/agents/s-42/agent.env")
		require.NoError(t, err)
		assert.Contains(t, string(env), `NEMU_AGENT_API_KEY="key\"with%chars"`)
	})

	t.Run("existing environment file is tightened", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		envPath := "/var/lib/nemu/agents/s-42/agent.env"
		require.NoError(t, afero.WriteFile(fs, envPath, []byte(RenderEnvironment(testSpec())), 0o644))

		require.NoError(t, NewRegistrar(fs, &fakeRunner{}, testConfig()).Register(ctx, testSpec()))

		info, err := fs.Stat(envPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("environment file next to unit without working directory", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		spec := testSpec()
		spec.WorkingDirectory = ""

		require.NoError(t, NewRegistrar(fs, &fakeRunner{}, testConfig()).Register(ctx, spec))

		info, err := fs.Stat("/etc/systemd/system/agent-s-42.env")
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("unit with bad setting", func(t *testing.T) {
		runner := &fakeRunner{loadState: "bad-setting"}

		err := NewRegistrar(afero.NewMemMapFs(), runner, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrRegistration)
		assert.NotErrorIs(t, err, agent.ErrStart)
		assert.NotContains(t, runner.calls, "systemctl restart agent-s-42.service")
	})

	t.Run("user scope", func(t *testing.T) {
		runner := &fakeRunner{}
		config := testConfig()
		config.User = true
		config.UnitDir = "/home/nemu/.config/systemd/user"

		require.NoError(t, NewRegistrar(afero.NewMemMapFs(), runner, config).Register(ctx, testSpec()))
		assert.Equal(t, "systemctl --user daemon-reload", runner.calls[0])
	})

	t.Run("re-register keeps a single unit", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		registrar := NewRegistrar(fs, &fakeRunner{}, testConfig())

		require.NoError(t, registrar.Register(ctx, testSpec()))
		first, err := afero.ReadFile(fs, "/etc/systemd/system/agent-s-42.service")
		require.NoError(t, err)

		require.NoError(t, registrar.Register(ctx, testSpec()))
		second, err := afero.ReadFile(fs, "/etc/systemd/system/agent-s-42.service")
		require.NoError(t, err)
		assert.Equal(t, first, second)

		entries, err := afero.ReadDir(fs, "/etc/systemd/system")
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		agentEntries, err := afero.ReadDir(fs, "/var/lib/nemu/agents/s-42")
		require.NoError(t, err)
		assert.Len(t, agentEntries, 1)
	})

	t.Run("daemon-reload rejected", func(t *testing.T) {
		runner := &fakeRunner{fail: map[string]error{"daemon-reload": exitError("systemctl daemon-reload", 1)}}

		err := NewRegistrar(afero.NewMemMapFs(), runner, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrRegistration)
	})

	t.Run("unit directory not writable", func(t *testing.T) {
		fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

		err := NewRegistrar(fs, &fakeRunner{}, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrRegistration)
	})

	t.Run("restart fails", func(t *testing.T) {
		runner := &fakeRunner{fail: map[string]error{"restart": exitError("systemctl restart", 1)}}

		err := NewRegistrar(afero.NewMemMapFs(), runner, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrStart)
	})

	t.Run("never becomes active", func(t *testing.T) {
		runner := &fakeRunner{inactiveChecks: 100}

		err := NewRegistrar(afero.NewMemMapFs(), runner, testConfig()).Register(ctx, testSpec())
		require.ErrorIs(t, err, agent.ErrStart)
		assert.Equal(t, 97, runner.inactiveChecks)
	})
}

func TestRegistrar_Active(t *testing.T) {
	ctx := context.Background()

	active, err := NewRegistrar(afero.NewMemMapFs(), &fakeRunner{}, testConfig()).Active(ctx, "agent-s-42")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = NewRegistrar(afero.NewMemMapFs(), &fakeRunner{inactiveChecks: 1}, testConfig()).Active(ctx, "agent-s-42")
	require.NoError(t, err)
	assert.False(t, active)

	broken := &fakeRunner{fail: map[string]error{"is-active": errors.New("systemctl not found")}}
	_, err = NewRegistrar(afero.NewMemMapFs(), broken, testConfig()).Active(ctx, "agent-s-42")
	require.Error(t, err)
}
