package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/assetpack/cmd/assetpack/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug logging." env:"ASSETPACK_DEBUG"`
		Version kong.VersionFlag
		Build   commands.BuildCmd  `cmd:"" help:"Build theme assets, optionally watching and serving them."`
		Config  commands.ConfigCmd `cmd:"" help:"Print the composed build configuration as YAML."`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("assetpack"),
		kong.Description("Theme asset build tool."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
