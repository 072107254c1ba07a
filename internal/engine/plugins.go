package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
)

var ErrUnsafeCleanPath = errors.New("refusing to clean path outside the project root")

// behaviour is what the declared plugins ask of the engine.
type behaviour struct {
	clean       *assets.CleanPlugin
	extract     *assets.ExtractTextPlugin
	provide     map[string]string
	stableOrder bool
	hot         bool
	noErrors    bool
	manifest    *assets.AssetsManifestPlugin
	uglify      *assets.UglifyJSPlugin
	optimizeCSS *assets.OptimizeCSSPlugin
}

func interpret(plugins []assets.Plugin) (behaviour, error) {
	var b behaviour

	for _, p := range plugins {
		switch v := p.(type) {
		case assets.CleanPlugin:
			b.clean = &v
		case assets.ExtractTextPlugin:
			b.extract = &v
		case assets.ProvidePlugin:
			b.provide = v.Definitions
		case assets.OccurrenceOrderPlugin:
			b.stableOrder = true
		case assets.HotModuleReplacementPlugin:
			b.hot = true
		case assets.NoErrorsPlugin:
			b.noErrors = true
		case assets.AssetsManifestPlugin:
			b.manifest = &v
		case assets.UglifyJSPlugin:
			b.uglify = &v
		case assets.OptimizeCSSPlugin:
			b.optimizeCSS = &v
		default:
			return behaviour{}, fmt.Errorf("unsupported plugin %q", p.Name())
		}
	}

	return b, nil
}

// extracting reports whether styles are written as their own stylesheets
// rather than linked from memory by the script bundle.
func (b behaviour) extracting() bool {
	return b.extract != nil && !b.extract.Disable
}

// applyMinify sets the esbuild switches for the minifier plugins.
func (b behaviour) applyMinify(opts *api.BuildOptions) {
	if b.uglify != nil {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
		if b.uglify.DropDebugger {
			opts.Drop |= api.DropDebugger
		}
	}
	if b.optimizeCSS != nil {
		// esbuild shares these switches between scripts and styles
		opts.MinifyWhitespace = true
		opts.MinifySyntax = true
		if b.optimizeCSS.DiscardComments {
			opts.LegalComments = api.LegalCommentsNone
		}
	}
}

// cleanPaths removes the configured paths. Each must sit inside Root.
func cleanPaths(p *assets.CleanPlugin) error {
	root := filepath.Clean(p.Root)

	for _, path := range p.Paths {
		path = filepath.Clean(path)
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("%w: %s", ErrUnsafeCleanPath, path)
		}
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to clean %s: %w", path, err)
		}
	}

	return nil
}
