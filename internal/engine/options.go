package engine

import (
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
)

var presetTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"env":    api.ESNext,
}

// buildOptions maps the composed configuration onto esbuild. Plugins are
// attached by the caller, aliases are applied by aliasPlugin. Browser engines only apply to the postcss step,
// scripts are lowered to the babel preset target.
func buildOptions(cfg assets.Config, b behaviour) api.BuildOptions {
	workingDir := cfg.Root
	if workingDir == "" {
		workingDir = cfg.Context
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: entryPoints(cfg.Entry),
		AbsWorkingDir:       workingDir,
		Outdir:              cfg.Output.Path,
		Outbase:             cfg.Context,
		PublicPath:          cfg.Output.PublicPath,
		EntryNames:          "[name]",
		AssetNames:          assetNames(cfg.Rules),
		Bundle:              true,
		Write:               false,
		Metafile:            true,
		Format:              api.FormatIIFE,
		Platform:            api.PlatformBrowser,
		Target:              scriptTarget(cfg.Rules),
		Sourcemap:           sourceMap(cfg),
		ResolveExtensions:   resolveExtensions(cfg.Resolve.Extensions),
		NodePaths:           nodePaths(workingDir, cfg.Resolve.ModulesDirectories),
		LogLevel:            api.LogLevelSilent,
		Color:               cond(cfg.Stats.Colors, api.ColorAlways, api.ColorNever),
	}

	b.applyMinify(&opts)

	return opts
}

func sourceMap(cfg assets.Config) api.SourceMap {
	if cfg.Devtool != "" {
		return api.SourceMapInline
	}
	return cond(cfg.SourceMap == assets.SourceMapExternal, api.SourceMapLinked, api.SourceMapInline)
}

// assetNames converts the file step name template ([path][name].[ext]) into
// esbuild's form. esbuild appends the extension itself.
func assetNames(rules []assets.Rule) string {
	for _, r := range rules {
		for _, step := range r.Chain {
			if step.Name != assets.StepFile && step.Name != assets.StepURL {
				continue
			}
			if name := step.Query.Get("name"); name != "" {
				name = strings.ReplaceAll(name, "[path]", "[dir]/")
				name = strings.TrimSuffix(name, ".[ext]")
				return name
			}
		}
	}
	return "[dir]/[name]"
}

func scriptTarget(rules []assets.Rule) api.Target {
	for _, r := range rules {
		for _, step := range r.Chain {
			if step.Name != assets.StepBabel {
				continue
			}
			if t, ok := presetTargets[step.Query.Get("presets")]; ok {
				return t
			}
		}
	}
	return api.ESNext
}

func resolveExtensions(exts []string) []string {
	// "" means exact paths, which esbuild always tries first
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func nodePaths(root string, dirs []string) []string {
	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if filepath.IsAbs(dir) {
			paths = append(paths, dir)
			continue
		}
		paths = append(paths, filepath.Join(root, dir))
	}
	return paths
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
