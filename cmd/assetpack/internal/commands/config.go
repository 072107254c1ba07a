package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/wolfeidau/assetpack/internal/assets"
	"gopkg.in/yaml.v3"
)

type ConfigCmd struct {
	ModeFlags    `embed:""`
	ProjectFlags `embed:""`
}

func (c *ConfigCmd) Run(ctx context.Context, globals *Globals) error {
	return c.render(os.Stdout)
}

func (c *ConfigCmd) render(out io.Writer) error {
	base, err := c.load()
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(assets.Build(*base, c.flags()).View()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
