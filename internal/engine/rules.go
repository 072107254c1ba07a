package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
)

var ErrUnknownStep = errors.New("unknown loader step")

// module is a source file on its way through a rule chain.
type module struct {
	path     string
	suffix   string
	contents []byte
	loader   api.Loader

	// sourceMap is the map produced by a compiling step, if any.
	sourceMap string
	// sources are files the module was compiled from besides path.
	sources []string

	errors   []api.Message
	warnings []api.Message
}

var extensionLoaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".mjs":  api.LoaderJS,
	".cjs":  api.LoaderJS,
	".json": api.LoaderJSON,
	".css":  api.LoaderCSS,
	".scss": api.LoaderCSS,
	".sass": api.LoaderCSS,
}

func defaultLoader(path string) api.Loader {
	if l, ok := extensionLoaders[strings.ToLower(filepath.Ext(path))]; ok {
		return l
	}
	return api.LoaderFile
}

// chainFor returns the steps to run for path in execution order: the
// matching pre-rule first, then the matching rule, each last to first.
func chainFor(cfg assets.Config, path string) ([]assets.Step, bool) {
	var steps []assets.Step

	pre, hasPre := cfg.MatchPreRule(path)
	if hasPre {
		steps = append(steps, reversed(pre.Chain)...)
	}
	rule, hasRule := cfg.MatchRule(path)
	if hasRule {
		steps = append(steps, reversed(rule.Chain)...)
	}

	return steps, hasPre || hasRule
}

func reversed(chain []assets.Step) []assets.Step {
	out := slices.Clone(chain)
	slices.Reverse(out)
	return out
}

// rulesPlugin runs files through the configured loader rules. Files no rule
// matches are left to esbuild.
func (e *Engine) rulesPlugin() api.Plugin {
	return api.Plugin{
		Name: "rules",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"}, e.load)
		},
	}
}

func (e *Engine) load(args api.OnLoadArgs) (api.OnLoadResult, error) {
	chain, ok := chainFor(e.cfg, args.Path+args.Suffix)
	if !ok {
		return api.OnLoadResult{}, nil
	}

	data, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("failed to read %s: %w", args.Path, err)
	}

	m := &module{
		path:     args.Path,
		suffix:   args.Suffix,
		contents: data,
		loader:   defaultLoader(args.Path),
	}

	for _, step := range chain {
		if err := e.runStep(step, m); err != nil {
			return api.OnLoadResult{}, fmt.Errorf("%s: %w", step.Name, err)
		}
		if len(m.errors) > 0 {
			break
		}
	}

	contents := string(m.contents)
	return api.OnLoadResult{
		PluginName: "rules",
		Contents:   &contents,
		ResolveDir: filepath.Dir(args.Path),
		Loader:     m.loader,
		WatchFiles: m.sources,
		Errors:     m.errors,
		Warnings:   m.warnings,
	}, nil
}

func (e *Engine) runStep(step assets.Step, m *module) error {
	fn, ok := steps[step.Name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStep, step.Name)
	}
	return fn(e, m, step.Query)
}
