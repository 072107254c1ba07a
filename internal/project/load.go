package project

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const envPrefix = "ASSETPACK_"

// Defaults returns the layout of a stock theme.
func Defaults() Config {
	return Config{
		Context: "assets",
		Output: Output{
			Path:       "dist",
			PublicPath: "/dist/",
		},
	}
}

// Load reads a YAML or JSON config file, layers it over Defaults and applies
// ASSETPACK_* environment overrides. A relative path is read from root, and
// root becomes the directory relative context and output paths resolve against.
func Load(root, path string) (*Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.Root = root

	return cfg, nil
}

// Parse decodes config data (YAML, or JSON which is a subset) and applies
// defaults and environment overrides. Root is left empty.
func Parse(data []byte) (*Config, error) {
	fileCfg := Config{}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, err
	}

	envCfg := Config{}
	if err := env.ParseWithOptions(&envCfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}

	cfg := Defaults()
	for _, layer := range []Config{fileCfg, envCfg} {
		if err := mergo.Merge(&cfg, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	return &cfg, nil
}
