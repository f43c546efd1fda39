package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	nemumcp "github.com/sabamen88/zeroclaw-nemu/internal/app/nemu-mcp"
	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/cli"
	"github.com/spf13/afero"
)

func main() {
	var command nemumcp.Command

	kctx := kong.Parse(&command,
		kong.Name(cli.ExecutableMCP),
		kong.Description("MCP server exposing Nemu seller agent provisioning over stdio."),
		kong.Configuration(cli.YAMLConfigLoader, cli.DefaultConfigPaths...),
	)

	if err := run(kctx, &command); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cli.ExecutableMCP, err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, command *nemumcp.Command) error {
	if err := cli.SetupLogger(command.Log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	closeDeps, err := cli.Bind(ctx, kctx, &command.Settings, afero.NewOsFs())
	if err != nil {
		return err
	}
	defer closeDeps()

	return kctx.Run()
}
