package commands

import (
	"fmt"

	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/project"
)

type Globals struct {
	Debug   bool
	Version string
}

// ModeFlags select the build mode, shared by build and config.
type ModeFlags struct {
	Release bool `help:"hashed filenames, asset manifest and minification" env:"ASSETPACK_RELEASE"`
	Watch   bool `help:"rebuild on change and serve outputs with hot reload" env:"ASSETPACK_WATCH"`
}

func (m ModeFlags) flags() assets.Flags {
	return assets.Flags{Release: m.Release, Watch: m.Watch}
}

// ProjectFlags locate the base configuration.
type ProjectFlags struct {
	Root   string `help:"project root, relative paths resolve against it" default:"." env:"ASSETPACK_ROOT"`
	Config string `help:"base configuration file, relative to the root" default:"assets/config.yml" env:"ASSETPACK_CONFIG"`
}

func (p ProjectFlags) load() (*project.Config, error) {
	base, err := project.Load(p.Root, p.Config)
	if err != nil {
		return nil, err
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", p.Config, err)
	}
	return base, nil
}
