package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/selfca/cmd/selfca/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Root    commands.RootCmd    `cmd:"" help:"Generate a self-signed root authority"`
		Issue   commands.IssueCmd   `cmd:"" help:"Issue a client certificate signed by a root authority"`
		Inspect commands.InspectCmd `cmd:"" help:"Decode and print a certificate"`
		List    commands.ListCmd    `cmd:"" help:"List certificates recorded in the registry"`
		Setup   commands.SetupCmd   `cmd:"" help:"Create the registry table or schema"`
		Debug   bool                `help:"Enable debug mode." env:"SELFCA_DEBUG"`
		Metrics bool                `help:"Export metrics and traces over OTLP." env:"SELFCA_METRICS"`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("selfca"),
		kong.Description("Self-signed certificate authority for client certificates."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	globals := &commands.Globals{Debug: cli.Debug, Metrics: cli.Metrics, Version: version}

	shutdown, err := globals.Setup(ctx)
	cmd.FatalIfErrorf(err)

	err = cmd.Run(globals)
	if serr := shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	cmd.FatalIfErrorf(err)
}
