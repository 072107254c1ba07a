package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/hotclient"
	"github.com/wolfeidau/assetpack/internal/project"
)

const (
	entryNamespace    = "assetpack-entry"
	hotNamespace      = "assetpack-hot"
	externalNamespace = "assetpack-external"
	provideNamespace  = "assetpack-provide"
	missingNamespace  = "assetpack-missing"
)

var styleSource = regexp.MustCompile(`\.(css|scss|sass)$`)

func entryPoints(entry project.Entry) []api.EntryPoint {
	points := make([]api.EntryPoint, 0, len(entry))
	for _, name := range entry.Names() {
		points = append(points, api.EntryPoint{
			InputPath:  entryNamespace + ":" + name,
			OutputPath: name,
		})
	}
	return points
}

// entryModule is the generated root module of a bundle: one import per source.
// styleHref, when set, links the bundle's stylesheet from the page.
func entryModule(sources []string, styleHref string) string {
	var sb strings.Builder
	for _, src := range sources {
		quoted, _ := json.Marshal(src)
		fmt.Fprintf(&sb, "import %s;\n", quoted)
	}
	if styleHref != "" {
		sb.WriteString(hotclient.StyleLink(styleHref))
	}
	return sb.String()
}

// localSources prefixes bare names that exist in dir with ./ so they are not
// looked up as packages.
func localSources(dir string, sources []string) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = src
		if strings.HasPrefix(src, ".") || filepath.IsAbs(src) {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, src)); err == nil {
			out[i] = "./" + src
		}
	}
	return out
}

func hasStyleSource(sources []string) bool {
	return slices.ContainsFunc(sources, styleSource.MatchString)
}

// entryPlugin serves the generated bundle roots.
func (e *Engine) entryPlugin() api.Plugin {
	return api.Plugin{
		Name: "entries",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + entryNamespace + ":"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{
					Path:      strings.TrimPrefix(args.Path, entryNamespace+":"),
					Namespace: entryNamespace,
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				sources, ok := e.cfg.Entry[args.Path]
				if !ok {
					return api.OnLoadResult{}, fmt.Errorf("unknown entry %q", args.Path)
				}

				href := ""
				if !e.behaviour.extracting() && hasStyleSource(sources) {
					href = e.cfg.Output.PublicPath + assets.RenderFilename(stripHash(e.cfg.Templates.Style), args.Path, "")
				}

				contents := entryModule(localSources(e.cfg.Context, sources), href)
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: e.cfg.Context,
					Loader:     api.LoaderJS,
				}, nil
			})
		},
	}
}

// hotClientPlugin resolves the hot client module and its query.
func (e *Engine) hotClientPlugin() api.Plugin {
	return api.Plugin{
		Name: "hot-client",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(assets.HotClientModule) + `(\?.*)?$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: hotNamespace}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: hotNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				_, query, _ := strings.Cut(args.Path, "?")
				opts, err := hotclient.ParseQuery(query)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				contents, err := hotclient.Source(opts)
				if err != nil {
					return api.OnLoadResult{}, err
				}
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// aliasPlugin replaces aliased import paths and resolves the replacement
// from the importing directory.
func (e *Engine) aliasPlugin() api.Plugin {
	keys := sortedKeys(e.cfg.Resolve.Alias)
	patterns := make([]string, 0, len(keys))
	for _, key := range keys {
		name, exact := strings.CutSuffix(key, "$")
		if exact {
			patterns = append(patterns, regexp.QuoteMeta(name)+"$")
			continue
		}
		patterns = append(patterns, regexp.QuoteMeta(name)+"(/.*)?$")
	}
	filter := "^(" + strings.Join(patterns, "|") + ")"

	return api.Plugin{
		Name: "alias",
		Setup: func(build api.PluginBuild) {
			if len(keys) == 0 {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				target, ok := aliasTarget(e.cfg.Resolve.Alias, args.Path)
				if !ok {
					return api.OnResolveResult{}, nil
				}

				res := build.Resolve(target, api.ResolveOptions{
					ResolveDir: args.ResolveDir,
					Kind:       args.Kind,
					Importer:   args.Importer,
				})
				return api.OnResolveResult{
					Path:      res.Path,
					Namespace: res.Namespace,
					External:  res.External,
					Suffix:    res.Suffix,
					Errors:    res.Errors,
					Warnings:  res.Warnings,
				}, nil
			})
		},
	}
}

// aliasTarget applies the first matching alias to path. Exact keys win over
// prefix keys.
func aliasTarget(aliases map[string]string, path string) (string, bool) {
	if target, ok := aliases[path+"$"]; ok {
		return target, true
	}
	for _, key := range sortedKeys(aliases) {
		if strings.HasSuffix(key, "$") {
			continue
		}
		if path == key {
			return aliases[key], true
		}
		if rest, ok := strings.CutPrefix(path, key+"/"); ok {
			return aliases[key] + "/" + rest, true
		}
	}
	return "", false
}

// externalsPlugin maps imports of configured modules onto browser globals.
func (e *Engine) externalsPlugin() api.Plugin {
	names := make([]string, 0, len(e.cfg.Externals))
	for name := range e.cfg.Externals {
		names = append(names, regexp.QuoteMeta(name))
	}
	slices.Sort(names)
	filter := "^(" + strings.Join(names, "|") + ")$"

	return api.Plugin{
		Name: "externals",
		Setup: func(build api.PluginBuild) {
			if len(names) == 0 {
				return
			}

			build.OnResolve(api.OnResolveOptions{Filter: filter}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				return api.OnResolveResult{Path: args.Path, Namespace: externalNamespace}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: externalNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := externalModule(e.cfg.Externals[args.Path])
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// externalModule reads the global through self so provide defines such as
// window.jQuery never rewrite it into an import of itself.
func externalModule(global string) string {
	quoted, _ := json.Marshal(global)
	return fmt.Sprintf("module.exports = self[%s];\n", quoted)
}

var notIdent = regexp.MustCompile(`[^A-Za-z0-9_$]`)

func provideIdent(module string) string {
	return "__provide_" + notIdent.ReplaceAllString(module, "_")
}

// provideShim builds an inject module exposing each provided module under its
// free variable names, and defines for dotted names such as window.jQuery.
func provideShim(definitions map[string]string) (string, map[string]string) {
	var sb strings.Builder
	defines := map[string]string{}

	modules := map[string][]string{}
	for name, module := range definitions {
		modules[module] = append(modules[module], name)
	}

	for _, module := range sortedKeys(modules) {
		ident := provideIdent(module)
		quoted, _ := json.Marshal(provideNamespace + ":" + module)
		fmt.Fprintf(&sb, "import %s from %s;\n", ident, quoted)

		exports := []string{ident}
		names := modules[module]
		slices.Sort(names)
		for _, name := range names {
			if strings.Contains(name, ".") {
				defines[name] = ident
				continue
			}
			exports = append(exports, ident+" as "+name)
		}
		fmt.Fprintf(&sb, "export { %s };\n", strings.Join(exports, ", "))
	}

	return sb.String(), defines
}

// providePlugin resolves the modules imported by the provide shim. Modules
// that are not installed become undefined with a warning instead of failing
// every build.
func (e *Engine) providePlugin() api.Plugin {
	return api.Plugin{
		Name: "provide",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + provideNamespace + ":"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				module := strings.TrimPrefix(args.Path, provideNamespace+":")

				res := build.Resolve(module, api.ResolveOptions{
					ResolveDir: e.cfg.Context,
					Kind:       api.ResolveJSImportStatement,
				})
				if len(res.Errors) > 0 {
					return api.OnResolveResult{
						Path:      module,
						Namespace: missingNamespace,
						Warnings: []api.Message{{
							Text: fmt.Sprintf("provided module %q could not be resolved", module),
						}},
					}, nil
				}

				return api.OnResolveResult{
					Path:      res.Path,
					Namespace: res.Namespace,
					External:  res.External,
					Suffix:    res.Suffix,
				}, nil
			})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: missingNamespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				contents := "module.exports = undefined;\n"
				return api.OnLoadResult{Contents: &contents, Loader: api.LoaderJS}, nil
			})
		},
	}
}

// writeProvideShim writes the shim to dir and returns its path.
func writeProvideShim(dir string, definitions map[string]string) (string, map[string]string, error) {
	shim, defines := provideShim(definitions)
	path := filepath.Join(dir, "provide.js")
	if err := os.WriteFile(path, []byte(shim), 0o600); err != nil {
		return "", nil, fmt.Errorf("failed to write provide shim: %w", err)
	}
	return path, defines, nil
}

func stripHash(template string) string {
	return strings.NewReplacer("_[hash]", "", "-[hash]", "", ".[hash]", "", "[hash]", "").Replace(template)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
