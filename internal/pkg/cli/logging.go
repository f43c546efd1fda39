package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MatusOllah/slogcolor"
	"github.com/mattn/go-isatty"
)

const (
	LogFormatAuto        = "auto"
	LogFormatTextColor   = "text-color"
	LogFormatTextNoColor = "text-no-color"
	LogFormatJSON        = "json"
)

type LogConfig struct {
	Level  string `short:"v" help:"Log level" default:"info" enum:"debug,info,warn,error" env:"NEMU_LOG_LEVEL"`
	Format string `help:"Log format (auto, text-color, text-no-color, json); auto drops colors when stderr is not a terminal" default:"auto" env:"NEMU_LOG_FORMAT"`
	Quiet  bool   `help:"Disable logging output" env:"NEMU_LOG_QUIET"`
}

func CreateLoggerFromConfig(config LogConfig) (*slog.Logger, error) {
	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	output := io.Writer(os.Stderr)
	if config.Quiet {
		output = io.Discard
	}

	format := config.Format
	if strings.EqualFold(strings.TrimSpace(format), LogFormatAuto) {
		format = autoLogFormat(os.Stderr)
	}

	handler, err := createLogHandler(format, output, level)
	if err != nil {
		return nil, fmt.Errorf("create log handler: %w", err)
	}

	return slog.New(handler), nil
}

// SetupLogger creates the logger from config and installs it as the slog default.
func SetupLogger(config LogConfig) error {
	logger, err := CreateLoggerFromConfig(config)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	return nil
}

// autoLogFormat uses colors only when file is a terminal.
func autoLogFormat(file *os.File) string {
	if isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd()) {
		return LogFormatTextColor
	}

	return LogFormatTextNoColor
}

func parseLogLevel(value string) (slog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return slog.LevelInfo, errors.New("log level is required")
	}
	switch normalized {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", value)
	}
}

func createLogHandler(format string, output io.Writer, level slog.Level) (slog.Handler, error) {
	normalizedFormat := strings.ToLower(strings.TrimSpace(format))
	if normalizedFormat == "" {
		return nil, errors.New("log format is required")
	}

	switch normalizedFormat {
	case LogFormatTextNoColor:
		return slog.NewTextHandler(output, &slog.HandlerOptions{
			Level: level,
		}), nil
	case LogFormatTextColor:
		options := slogcolor.DefaultOptions
		options.Level = level
		return slogcolor.NewHandler(output, options), nil
	case LogFormatJSON:
		return slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level: level,
		}), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}
