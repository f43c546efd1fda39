package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner executes host commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError reports a host command that exited unsuccessfully.
type CommandError struct {
	// Command is the command line that was executed.
	Command string

	// Output is the combined stdout and stderr of the command.
	Output string

	// ExitCode is the process exit code when available.
	ExitCode *int

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message for the command error.
func (err *CommandError) Error() string {
	if err == nil {
		return ""
	}

	message := fmt.Sprintf("%s: %v", err.Command, err.Cause)
	if output := strings.TrimSpace(err.Output); output != "" {
		message += ": " + output
	}

	return message
}

// Unwrap returns the underlying error.
func (err *CommandError) Unwrap() error {
	if err == nil {
		return nil
	}

	return err.Cause
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and returns its combined output.
// Returns *CommandError when the command cannot be started or exits non-zero.
func (runner *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	commandLine := strings.TrimSpace(name + " " + strings.Join(args, " "))

	slog.Debug("Running command.", slog.String("command", commandLine))

	// #nosec G204 - name is resolved by LookupExecutable, arguments are constructed internally
	cmd := exec.CommandContext(ctx, name, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		commandErr := &CommandError{
			Command: commandLine,
			Output:  output.String(),
			Cause:   err,
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			commandErr.ExitCode = &code
		}

		return output.Bytes(), commandErr
	}

	return output.Bytes(), nil
}
