package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	ErrNoEntries    = errors.New("no entry points configured")
	ErrNoOutputPath = errors.New("output path is required")
)

// Config is the base project configuration the build configuration is composed from.
type Config struct {
	// Root is the directory relative paths are resolved against, normally the
	// directory holding the config file.
	Root    string `yaml:"-"`
	Context string `yaml:"context" env:"CONTEXT"`
	Entry   Entry  `yaml:"entry"`
	Output  Output `yaml:"output" envPrefix:"OUTPUT_"`
}

type Output struct {
	Path       string `yaml:"path" env:"PATH"`
	PublicPath string `yaml:"publicPath" env:"PUBLIC_PATH"`
}

// Entry maps a bundle name to the source modules it is built from.
type Entry map[string]Sources

// Names returns the bundle names in sorted order.
func (e Entry) Names() []string {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clone returns a deep copy of the entry map.
func (e Entry) Clone() Entry {
	if e == nil {
		return nil
	}
	out := make(Entry, len(e))
	for name, sources := range e {
		out[name] = slices.Clone(sources)
	}
	return out
}

// Sources is one or more module paths. It decodes from either a single string
// or a list of strings.
type Sources []string

func (s *Sources) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var single string
		if err := node.Decode(&single); err != nil {
			return err
		}
		*s = Sources{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("line %d: entry must be a string or a list of strings", node.Line)
	}
}

// ContextDir returns the absolute context directory.
func (c *Config) ContextDir() string {
	return c.resolve(c.Context)
}

// OutputDir returns the absolute output directory.
func (c *Config) OutputDir() string {
	return c.resolve(c.Output.Path)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, p)
}

// Validate reports configuration the build engine cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Entry) == 0 {
		errs = append(errs, ErrNoEntries)
	}
	for _, name := range c.Entry.Names() {
		if len(c.Entry[name]) == 0 {
			errs = append(errs, fmt.Errorf("entry %q: %w", name, ErrNoEntries))
		}
	}
	if c.Output.Path == "" {
		errs = append(errs, ErrNoOutputPath)
	}
	return errors.Join(errs...)
}
