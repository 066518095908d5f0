package main

import (
	"context"
	"os"
	"os/signal"

	"erpcore/cmd/erpctl/internal/commands"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Backup  commands.BackupCmd `cmd:"" help:"Create, list and restore tenant backups"`
		Seed    commands.SeedCmd   `cmd:"" help:"Seed the permission catalog and built-in roles"`
		Env     string             `help:"Path to the .env file." default:"configs/.env" type:"path"`
		Debug   bool               `help:"Enable debug logging."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("erpctl"),
		kong.Description("Operator tool for the ERP backend."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, EnvFile: cli.Env})
	cmd.FatalIfErrorf(err)
}
