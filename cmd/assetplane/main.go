package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/assetplane/cmd/assetplane/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug     bool `help:"Enable debug mode."`
		Version   kong.VersionFlag
		Server    commands.ServerCmd    `cmd:"" help:"Start the asset data-plane server"`
		Migrate   commands.MigrateCmd   `cmd:"" help:"Apply directory store migrations and exit"`
		Provision commands.ProvisionCmd `cmd:"" help:"Ensure a tenant store exists for an entity code"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		commands.Vars(),
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
