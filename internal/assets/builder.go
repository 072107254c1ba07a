package assets

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/wolfeidau/assetpack/internal/project"
)

// URLInlineLimit is the size below which web fonts are inlined as data URLs.
const URLInlineLimit = 10000

// ModernizrConfig is the Modernizr build configuration in the project root,
// imported as "modernizr".
const ModernizrConfig = ".modernizrrc"

const assetName = "[path][name].[ext]"

var vendorDirs = regexp.MustCompile(`(node_modules|bower_components)`)

// Build composes the build configuration for base and flags. It performs no
// I/O and does not validate base.
func Build(base project.Config, flags Flags) Config {
	outputPath := base.OutputDir()

	templates := Templates{
		Script: cond(flags.Release, "scripts/[name]_[hash].js", "scripts/[name].js"),
		Style:  cond(flags.Release, "styles/[name]_[hash].css", "styles/[name].css"),
	}
	sourceMap := cond(flags.Release, SourceMapExternal, SourceMapInline)

	cfg := Config{
		Flags:   flags,
		Root:    base.Root,
		Context: base.ContextDir(),
		Entry:   base.Entry,
		Output: Output{
			Path:       outputPath,
			PublicPath: base.Output.PublicPath,
			Filename:   templates.Script,
		},
		Templates: templates,
		SourceMap: sourceMap,
		PreRules: []Rule{
			{
				Test:    regexp.MustCompile(`\.js?$`),
				Exclude: vendorDirs,
				Chain:   []Step{{Name: StepESLint}},
			},
		},
		Rules: rules(flags, sourceMap),
		Resolve: Resolve{
			Extensions:         []string{"", ".js", ".json"},
			ModulesDirectories: []string{"node_modules", "bower_components"},
			Alias: map[string]string{
				"modernizr$": filepath.Join(base.Root, ModernizrConfig),
			},
		},
		Externals: map[string]string{
			"jquery": "jQuery",
		},
		Plugins: []Plugin{
			CleanPlugin{Paths: []string{outputPath}, Root: base.Root},
			ExtractTextPlugin{
				Filename:  templates.Style,
				AllChunks: true,
				Disable:   flags.Watch,
			},
			ProvidePlugin{Definitions: map[string]string{
				"$":             "jquery",
				"jQuery":        "jquery",
				"window.jQuery": "jquery",
				"window.Tether": "tether",
			}},
		},
		PostCSS: PostCSS{
			Browsers: []string{"last 2 versions", "android 4", "opera 12"},
		},
		Lint: Lint{
			FailOnWarning: false,
			FailOnError:   true,
		},
		Stats: Stats{Colors: true},
	}

	if flags.Watch {
		cfg.Entry = AddHotMiddleware(cfg.Entry)
		cfg.Output.PathInfo = true
		cfg.Debug = true
		cfg.Devtool = DevtoolCheapModuleInline
		cfg.Plugins = append(cfg.Plugins,
			OccurrenceOrderPlugin{},
			HotModuleReplacementPlugin{},
			NoErrorsPlugin{},
		)
	}

	if flags.Release {
		cfg.Plugins = append(cfg.Plugins,
			AssetsManifestPlugin{
				Path:          outputPath,
				Filename:      "assets.json",
				FullPath:      false,
				ProcessOutput: ProcessManifest,
			},
			UglifyJSPlugin{DropDebugger: true},
			OptimizeCSSPlugin{DiscardComments: true},
		)
	}

	return cfg
}

func rules(flags Flags, sourceMap SourceMap) []Rule {
	sourceMapQuery := url.Values{"sourceMap": {string(sourceMap)}}
	fileQuery := url.Values{"name": {assetName}}

	scripts := Rule{
		Test:    regexp.MustCompile(`\.js$`),
		Exclude: vendorDirs,
		Chain: []Step{
			NewStep(StepBabel, url.Values{"presets": {"es2015"}, "cacheDirectory": {"true"}}),
		},
	}
	if flags.Watch {
		scripts.Chain = append([]Step{{Name: StepMonkeyHot}}, scripts.Chain...)
	}

	return []Rule{
		{
			Test:  regexp.MustCompile(`\.modernizrrc$`),
			Chain: []Step{{Name: StepModernizr}},
		},
		scripts,
		{
			Test: regexp.MustCompile(`\.css$`),
			Chain: []Step{
				NewStep(StepCSS, sourceMapQuery),
				{Name: StepPostCSS},
			},
			Extract: true,
		},
		{
			Test: regexp.MustCompile(`\.scss$`),
			Chain: []Step{
				NewStep(StepCSS, sourceMapQuery),
				{Name: StepPostCSS},
				NewStep(StepResolveURL, sourceMapQuery),
				NewStep(StepSass, sourceMapQuery),
			},
			Extract: true,
		},
		{
			Test: regexp.MustCompile(`\.(png|jpg|jpeg|gif)(\?.*)?$`),
			Chain: []Step{
				NewStep(StepFile, fileQuery),
				NewStep(StepImageWebpack, url.Values{
					"bypassOnDebug":     {"true"},
					"progressive":       {"true"},
					"optimizationLevel": {"7"},
					"interlaced":        {"true"},
					"pngquantQuality":   {"65-90"},
					"pngquantSpeed":     {"4"},
				}),
			},
		},
		{
			Test:  regexp.MustCompile(`\.(ttf|eot|svg)(\?.*)?$`),
			Chain: []Step{NewStep(StepFile, fileQuery)},
		},
		{
			Test: regexp.MustCompile(`\.woff(2)?(\?.*)?$`),
			Chain: []Step{
				NewStep(StepURL, url.Values{
					"limit":    {strconv.Itoa(URLInlineLimit)},
					"mimetype": {"application/font-woff"},
					"name":     {assetName},
				}),
			},
		},
	}
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
