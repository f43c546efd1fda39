package systemd

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

const (
	DefaultRestartDelay = 5 * time.Second

	// EnvironmentFileName is the file in the agent root holding the service environment.
	EnvironmentFileName = "agent.env"
)

var (
	quotedArgEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "%", "%%", "$", "$$", "\n", `\n`)
	bareArgEscaper   = strings.NewReplacer("%", "%%", "$", "$$")
	bareEscaper      = strings.NewReplacer("%", "%%")
	envFileEscaper   = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
)

// UnitFileName returns the unit file name for the service.
func UnitFileName(name agent.ServiceName) string {
	return string(name) + ".service"
}

// RenderUnit produces the unit file for spec. The environment is not part of the unit; it is
// loaded from environmentFile when that is set.
func RenderUnit(spec agent.ServiceSpec, user bool, environmentFile string) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("%w: service name is required", agent.ErrRegistration)
	}

	if spec.Executable == "" {
		return "", fmt.Errorf("%w: executable is required", agent.ErrRegistration)
	}

	restartDelay := spec.RestartDelay
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}

	wantedBy := "multi-user.target"
	if user {
		wantedBy = "default.target"
	}

	var unit strings.Builder

	unit.WriteString("[Unit]\n")
	fmt.Fprintf(&unit, "Description=%s\n", bareEscaper.Replace(oneLine(spec.Description)))
	unit.WriteString("After=network-online.target\n")
	unit.WriteString("Wants=network-online.target\n")
	unit.WriteString("\n[Service]\n")
	unit.WriteString("Type=simple\n")

	if spec.WorkingDirectory != "" {
		fmt.Fprintf(&unit, "WorkingDirectory=%s\n", bareEscaper.Replace(spec.WorkingDirectory))
	}

	if environmentFile != "" {
		fmt.Fprintf(&unit, "EnvironmentFile=%s\n", bareEscaper.Replace(environmentFile))
	}

	command := make([]string, 0, len(spec.Arguments)+1)
	for _, arg := range append([]string{spec.Executable}, spec.Arguments...) {
		command = append(command, quoteArgument(arg))
	}
	fmt.Fprintf(&unit, "ExecStart=%s\n", strings.Join(command, " "))

	unit.WriteString("Restart=on-failure\n")
	fmt.Fprintf(&unit, "RestartSec=%d\n", int(restartDelay.Round(time.Second)/time.Second))
	unit.WriteString("StandardOutput=journal\n")
	unit.WriteString("StandardError=journal\n")
	fmt.Fprintf(&unit, "SyslogIdentifier=%s\n", spec.Name)
	unit.WriteString("\n[Install]\n")
	fmt.Fprintf(&unit, "WantedBy=%s\n", wantedBy)

	return unit.String(), nil
}

// RenderEnvironment produces the environment file for spec, one sorted KEY="value" line
// per variable.
func RenderEnvironment(spec agent.ServiceSpec) string {
	var env strings.Builder

	for _, key := range slices.Sorted(maps.Keys(spec.Environment)) {
		fmt.Fprintf(&env, "%s=\"%s\"\n", key, envFileEscaper.Replace(spec.Environment[key]))
	}

	return env.String()
}

func quoteArgument(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\;") {
		return bareArgEscaper.Replace(arg)
	}

	return `"` + quotedArgEscaper.Replace(arg) + `"`
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
