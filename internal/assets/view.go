package assets

import "slices"

// View is a serialisable rendering of Config, used to inspect what a mode
// composes.
type View struct {
	Flags     Flags               `yaml:"flags"`
	Context   string              `yaml:"context"`
	Entry     map[string][]string `yaml:"entry"`
	Output    Output              `yaml:"output"`
	Templates Templates           `yaml:"templates"`
	SourceMap SourceMap           `yaml:"sourceMap"`
	Devtool   string              `yaml:"devtool,omitempty"`
	Debug     bool                `yaml:"debug,omitempty"`
	PreRules  []RuleView          `yaml:"preRules"`
	Rules     []RuleView          `yaml:"rules"`
	Resolve   Resolve             `yaml:"resolve"`
	Externals map[string]string   `yaml:"externals"`
	Plugins   []PluginView        `yaml:"plugins"`
	Browsers  []string            `yaml:"browsers"`
	Lint      Lint                `yaml:"lint"`
}

type RuleView struct {
	Test    string   `yaml:"test"`
	Exclude string   `yaml:"exclude,omitempty"`
	Chain   []string `yaml:"chain"`
	Extract bool     `yaml:"extract,omitempty"`
}

type PluginView struct {
	Name    string `yaml:"name"`
	Options any    `yaml:"options,omitempty"`
}

// View renders the configuration for display.
func (c Config) View() View {
	entry := make(map[string][]string, len(c.Entry))
	for name, sources := range c.Entry {
		entry[name] = slices.Clone(sources)
	}

	plugins := make([]PluginView, len(c.Plugins))
	for i, p := range c.Plugins {
		plugins[i] = PluginView{Name: p.Name(), Options: pluginOptions(p)}
	}

	return View{
		Flags:     c.Flags,
		Context:   c.Context,
		Entry:     entry,
		Output:    c.Output,
		Templates: c.Templates,
		SourceMap: c.SourceMap,
		Devtool:   c.Devtool,
		Debug:     c.Debug,
		PreRules:  ruleViews(c.PreRules),
		Rules:     ruleViews(c.Rules),
		Resolve:   c.Resolve,
		Externals: c.Externals,
		Plugins:   plugins,
		Browsers:  c.PostCSS.Browsers,
		Lint:      c.Lint,
	}
}

func ruleViews(rules []Rule) []RuleView {
	views := make([]RuleView, len(rules))
	for i, r := range rules {
		v := RuleView{Test: r.Test.String(), Extract: r.Extract}
		if r.Exclude != nil {
			v.Exclude = r.Exclude.String()
		}
		for _, step := range r.Chain {
			v.Chain = append(v.Chain, step.String())
		}
		views[i] = v
	}
	return views
}

func pluginOptions(p Plugin) any {
	switch v := p.(type) {
	case CleanPlugin:
		return map[string]any{"paths": v.Paths}
	case ExtractTextPlugin:
		return map[string]any{"filename": v.Filename, "allChunks": v.AllChunks, "disable": v.Disable}
	case ProvidePlugin:
		return v.Definitions
	case AssetsManifestPlugin:
		return map[string]any{"path": v.Path, "filename": v.Filename, "fullPath": v.FullPath}
	case UglifyJSPlugin:
		return map[string]any{"dropDebugger": v.DropDebugger}
	case OptimizeCSSPlugin:
		return map[string]any{"discardComments": v.DiscardComments}
	default:
		return nil
	}
}
