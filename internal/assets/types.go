package assets

// Plugin names.
const (
	PluginClean                = "clean"
	PluginExtractText          = "extract-text"
	PluginProvide              = "provide"
	PluginOccurrenceOrder      = "occurrence-order"
	PluginHotModuleReplacement = "hot-module-replacement"
	PluginNoErrors             = "no-errors"
	PluginAssetsManifest       = "assets-manifest"
	PluginUglifyJS             = "uglify-js"
	PluginOptimizeCSS          = "optimize-css-assets"
)

// Plugin is a build engine plugin declaration. The engine interprets each
// concrete type.
type Plugin interface {
	Name() string
}

// CleanPlugin removes Paths before the first build.
type CleanPlugin struct {
	Paths []string
	// Root bounds what may be removed.
	Root string
}

func (CleanPlugin) Name() string { return PluginClean }

// ExtractTextPlugin writes style chains to their own stylesheet named by
// Filename. When Disable is set styles stay in memory and are injected by the
// script bundle.
type ExtractTextPlugin struct {
	Filename  string
	AllChunks bool
	Disable   bool
}

func (ExtractTextPlugin) Name() string { return PluginExtractText }

// ProvidePlugin exposes modules as free variables, e.g. $ -> jquery.
type ProvidePlugin struct {
	Definitions map[string]string
}

func (ProvidePlugin) Name() string { return PluginProvide }

// OccurrenceOrderPlugin keeps output ordering stable across rebuilds.
type OccurrenceOrderPlugin struct{}

func (OccurrenceOrderPlugin) Name() string { return PluginOccurrenceOrder }

// HotModuleReplacementPlugin pushes rebuilds to connected hot clients.
type HotModuleReplacementPlugin struct{}

func (HotModuleReplacementPlugin) Name() string { return PluginHotModuleReplacement }

// NoErrorsPlugin skips emitting when a build has errors.
type NoErrorsPlugin struct{}

func (NoErrorsPlugin) Name() string { return PluginNoErrors }

// AssetsManifestPlugin writes a manifest of emitted files to Path/Filename.
// ProcessOutput receives the raw manifest, name -> extension -> file.
type AssetsManifestPlugin struct {
	Path          string
	Filename      string
	FullPath      bool
	ProcessOutput func(map[string]any) ([]byte, error)
}

func (AssetsManifestPlugin) Name() string { return PluginAssetsManifest }

// UglifyJSPlugin minifies scripts.
type UglifyJSPlugin struct {
	DropDebugger bool
}

func (UglifyJSPlugin) Name() string { return PluginUglifyJS }

// OptimizeCSSPlugin minifies stylesheets.
type OptimizeCSSPlugin struct {
	DiscardComments bool
}

func (OptimizeCSSPlugin) Name() string { return PluginOptimizeCSS }
