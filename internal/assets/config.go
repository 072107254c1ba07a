package assets

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/wolfeidau/assetpack/internal/project"
)

// Flags select the build mode.
type Flags struct {
	// Release enables hashed filenames, the asset manifest and minification.
	Release bool
	// Watch enables hot reloading and in-memory styles.
	Watch bool
}

// SourceMap is where source maps are written.
type SourceMap string

const (
	SourceMapInline   SourceMap = "inline"
	SourceMapExternal SourceMap = "external"
)

// DevtoolCheapModuleInline is the low fidelity inline source map used while watching.
const DevtoolCheapModuleInline = "cheap-module-inline-source-map"

// Templates are the output filename patterns. [name] is the bundle name and
// [hash] the content hash of the emitted file.
type Templates struct {
	Script string
	Style  string
}

// HasHash reports whether the templates embed a content hash.
func (t Templates) HasHash() bool {
	return strings.Contains(t.Script, "[hash]") && strings.Contains(t.Style, "[hash]")
}

// RenderFilename fills the [name] and [hash] placeholders of template.
func RenderFilename(template, name, hash string) string {
	return strings.NewReplacer("[name]", name, "[hash]", hash).Replace(template)
}

// Step names understood by the engine.
const (
	StepESLint       = "eslint"
	StepBabel        = "babel"
	StepMonkeyHot    = "monkey-hot"
	StepCSS          = "css"
	StepPostCSS      = "postcss"
	StepResolveURL   = "resolve-url"
	StepSass         = "sass"
	StepFile         = "file"
	StepImageWebpack = "image-webpack"
	StepURL          = "url"
	StepModernizr    = "modernizr"
)

// Step is one stage of a processing chain, written as name?query.
type Step struct {
	Name  string
	Query url.Values
}

// NewStep returns a step with the given options.
func NewStep(name string, query url.Values) Step {
	return Step{Name: name, Query: query}
}

func (s Step) String() string {
	if len(s.Query) == 0 {
		return s.Name
	}
	return s.Name + "?" + s.Query.Encode()
}

// Rule routes files matching Test (and not Exclude) through Chain. Steps are
// listed in declaration order and run last to first.
type Rule struct {
	Test    *regexp.Regexp
	Exclude *regexp.Regexp
	Chain   []Step
	// Extract marks style chains whose output is pulled into a separate
	// stylesheet by the extract-text plugin.
	Extract bool
}

// Matches reports whether the rule applies to path. path may carry a query suffix.
func (r Rule) Matches(path string) bool {
	if r.Test == nil || !r.Test.MatchString(path) {
		return false
	}
	return r.Exclude == nil || !r.Exclude.MatchString(path)
}

// Output describes where and how bundles are written.
type Output struct {
	Path       string
	PublicPath string
	Filename   string
	// PathInfo keeps module path comments in the emitted bundles.
	PathInfo bool
}

type Resolve struct {
	Extensions         []string
	ModulesDirectories []string
	// Alias replaces import paths. A key ending in $ only matches the exact
	// path, other keys also match paths below them.
	Alias map[string]string
}

type PostCSS struct {
	Browsers []string
}

type Lint struct {
	FailOnWarning bool
	FailOnError   bool
}

type Stats struct {
	Colors bool
}

// Config is the composed build configuration handed to the engine.
type Config struct {
	Flags     Flags
	Root      string
	Context   string
	Entry     project.Entry
	Output    Output
	Templates Templates
	// SourceMap is the style chain source map directive, also used for
	// scripts when no Devtool is set.
	SourceMap SourceMap
	Devtool   string
	Debug     bool
	PreRules  []Rule
	Rules     []Rule
	Resolve   Resolve
	Externals map[string]string
	Plugins   []Plugin
	PostCSS   PostCSS
	Lint      Lint
	Stats     Stats
}

// Plugin returns the first plugin with the given name.
func (c Config) Plugin(name string) (Plugin, bool) {
	for _, p := range c.Plugins {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// HasPlugin reports whether a plugin with the given name is present.
func (c Config) HasPlugin(name string) bool {
	_, ok := c.Plugin(name)
	return ok
}

// PluginNames lists plugin names in order.
func (c Config) PluginNames() []string {
	names := make([]string, len(c.Plugins))
	for i, p := range c.Plugins {
		names[i] = p.Name()
	}
	return names
}

// MatchRule returns the first rule matching path.
func (c Config) MatchRule(path string) (Rule, bool) {
	return firstMatch(c.Rules, path)
}

// MatchPreRule returns the first pre-rule matching path.
func (c Config) MatchPreRule(path string) (Rule, bool) {
	return firstMatch(c.PreRules, path)
}

func firstMatch(rules []Rule, path string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(path) {
			return r, true
		}
	}
	return Rule{}, false
}
