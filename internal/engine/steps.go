package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/hotclient"
	"github.com/wolfeidau/assetpack/internal/imageopt"
	"github.com/wolfeidau/assetpack/internal/lint"
	"github.com/wolfeidau/assetpack/internal/telemetry"
)

type stepFunc func(e *Engine, m *module, query url.Values) error

var steps = map[string]stepFunc{
	assets.StepESLint:       (*Engine).eslintStep,
	assets.StepBabel:        (*Engine).babelStep,
	assets.StepMonkeyHot:    (*Engine).monkeyHotStep,
	assets.StepCSS:          (*Engine).cssStep,
	assets.StepPostCSS:      (*Engine).postcssStep,
	assets.StepResolveURL:   (*Engine).resolveURLStep,
	assets.StepSass:         (*Engine).sassStep,
	assets.StepFile:         (*Engine).fileStep,
	assets.StepImageWebpack: (*Engine).imageStep,
	assets.StepURL:          (*Engine).urlStep,
	assets.StepModernizr:    (*Engine).modernizrStep,
}

func (e *Engine) eslintStep(m *module, _ url.Values) error {
	report := lint.Check(m.path, string(m.contents))
	failures, notes := report.Apply(lint.Options(e.cfg.Lint))

	m.errors = append(m.errors, failures...)
	m.warnings = append(m.warnings, notes...)
	return nil
}

// babelStep lowers scripts to the preset target. With cacheDirectory set,
// results are reused for unchanged sources across rebuilds.
func (e *Engine) babelStep(m *module, query url.Values) error {
	target, ok := presetTargets[query.Get("presets")]
	if !ok {
		target = api.ESNext
	}

	cache := query.Get("cacheDirectory") == "true"
	key := babelKey(m.path, m.contents)
	if cache {
		if code, ok := e.babelCache.Load(key); ok {
			m.contents = code.([]byte)
			telemetry.GetMetrics().BuildCacheHits.Add(context.Background(), 1)
			return nil
		}
	}

	res := api.Transform(string(m.contents), api.TransformOptions{
		Loader:     api.LoaderJS,
		Target:     target,
		Sourcefile: m.path,
		Sourcemap:  api.SourceMapInline,
		LogLevel:   api.LogLevelSilent,
	})
	m.warnings = append(m.warnings, res.Warnings...)
	if len(res.Errors) > 0 {
		m.errors = append(m.errors, res.Errors...)
		return nil
	}

	m.contents = res.Code
	m.loader = api.LoaderJS
	if cache {
		e.babelCache.Store(key, res.Code)
	}
	return nil
}

func babelKey(path string, source []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(source)
	return d.Sum64()
}

func (e *Engine) monkeyHotStep(m *module, _ url.Values) error {
	name := m.path
	if rel, err := filepath.Rel(e.cfg.Context, m.path); err == nil {
		name = filepath.ToSlash(rel)
	}
	m.contents = append(m.contents, hotclient.Register(name)...)
	return nil
}

func (e *Engine) cssStep(m *module, query url.Values) error {
	m.loader = api.LoaderCSS
	m.contents = e.inlineURLs(m.path, m.contents)
	if query.Get("sourceMap") != "" && m.sourceMap != "" {
		m.contents = append(m.contents, inlineCSSMap(m.sourceMap)...)
	}
	return nil
}

// postcssStep applies vendor prefixes and syntax lowering for the browser list.
func (e *Engine) postcssStep(m *module, _ url.Values) error {
	source := string(m.contents)
	sourceMap := api.SourceMapNone
	if m.sourceMap != "" {
		source += inlineCSSMap(m.sourceMap)
		sourceMap = api.SourceMapExternal
	}

	res := api.Transform(source, api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    e.engines,
		Sourcefile: m.path,
		Sourcemap:  sourceMap,
		LogLevel:   api.LogLevelSilent,
	})
	m.warnings = append(m.warnings, res.Warnings...)
	if len(res.Errors) > 0 {
		m.errors = append(m.errors, res.Errors...)
		return nil
	}

	m.contents = res.Code
	if m.sourceMap != "" {
		m.sourceMap = string(res.Map)
	}
	m.loader = api.LoaderCSS
	return nil
}

var cssURL = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)(['"]?)\s*\)`)

// resolveURLStep rewrites relative url() references that were written
// relative to an imported partial so they resolve from the compiled file.
func (e *Engine) resolveURLStep(m *module, _ url.Values) error {
	dir := filepath.Dir(m.path)

	m.contents = cssURL.ReplaceAllFunc(m.contents, func(match []byte) []byte {
		parts := cssURL.FindSubmatch(match)
		ref := string(parts[2])
		if !isRelativeURL(ref) {
			return match
		}

		file, rest := splitURL(ref)
		if exists(filepath.Join(dir, file)) {
			return match
		}

		for _, src := range m.sources {
			candidate := filepath.Join(filepath.Dir(src), file)
			if !exists(candidate) {
				continue
			}
			rel, err := filepath.Rel(dir, candidate)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if !strings.HasPrefix(rel, ".") {
				rel = "./" + rel
			}
			return fmt.Appendf(nil, "url(%s%s%s%s)", parts[1], rel, rest, parts[3])
		}

		return match
	})
	return nil
}

func isRelativeURL(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "#") {
		return false
	}
	u, err := url.Parse(ref)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func splitURL(ref string) (file, rest string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (e *Engine) sassStep(m *module, query url.Values) error {
	res, err := e.sass.Compile(m.path, string(m.contents), query.Get("sourceMap") != "")
	if err != nil {
		return err
	}

	m.contents = []byte(res.CSS)
	m.sourceMap = res.SourceMap
	m.sources = res.Sources
	m.loader = api.LoaderCSS
	return nil
}

func (e *Engine) fileStep(m *module, _ url.Values) error {
	m.loader = api.LoaderFile
	return nil
}

func (e *Engine) imageStep(m *module, query url.Values) error {
	out, err := imageopt.Optimize(m.contents, filepath.Ext(m.path), imageopt.Options{
		BypassOnDebug: query.Get("bypassOnDebug") == "true",
		Debug:         e.cfg.Debug,
	})
	if err != nil {
		return err
	}
	m.contents = out
	return nil
}

// urlStep inlines files smaller than limit as data URLs and emits the rest.
// References from stylesheets are inlined by the css step with the
// configured mimetype; esbuild infers it for everything else.
func (e *Engine) urlStep(m *module, query url.Values) error {
	limit, err := urlLimit(query)
	if err != nil {
		return err
	}

	m.loader = cond(len(m.contents) < limit, api.LoaderDataURL, api.LoaderFile)
	return nil
}

func urlLimit(query url.Values) (int, error) {
	v := query.Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid limit %q: %w", v, err)
	}
	return n, nil
}

// inlineURLs replaces relative url() references handled by a url step with a
// mimetype option by data URLs, when the file is below the step's limit.
func (e *Engine) inlineURLs(path string, contents []byte) []byte {
	dir := filepath.Dir(path)

	return cssURL.ReplaceAllFunc(contents, func(match []byte) []byte {
		parts := cssURL.FindSubmatch(match)
		ref := string(parts[2])
		if !isRelativeURL(ref) {
			return match
		}

		file, _ := splitURL(ref)
		target := filepath.Join(dir, file)

		step, ok := e.urlStepFor(target)
		if !ok || step.Query.Get("mimetype") == "" {
			return match
		}
		limit, err := urlLimit(step.Query)
		if err != nil {
			return match
		}
		data, err := os.ReadFile(target)
		if err != nil || len(data) >= limit {
			return match
		}

		return fmt.Appendf(nil, "url(%sdata:%s;base64,%s%s)",
			parts[1], step.Query.Get("mimetype"), base64.StdEncoding.EncodeToString(data), parts[3])
	})
}

func (e *Engine) urlStepFor(path string) (assets.Step, bool) {
	chain, _ := chainFor(e.cfg, path)
	for _, step := range chain {
		if step.Name == assets.StepURL {
			return step, true
		}
	}
	return assets.Step{}, false
}

func inlineCSSMap(sourceMap string) string {
	return "\n/*# sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte(sourceMap)) + " */\n"
}
