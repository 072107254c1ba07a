package engine

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/assets"
)

// fakeModernizr writes a CLI that emits a build setting the detects it was
// configured with, counting its runs in calls.
func fakeModernizr(t *testing.T, dir string) (binary, calls string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}

	binary = filepath.Join(dir, ".bin", "modernizr")
	calls = filepath.Join(t.TempDir(), "calls")
	script := `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -c) config="$2"; shift ;;
    -d) dest="$2"; shift ;;
  esac
  shift
done
echo run >> "` + calls + `"
grep -q flexbox "$config" || { echo "unexpected config" >&2; exit 1; }
echo 'window.Modernizr = { flexbox: true };' > "$dest"
`
	writeFiles(t, filepath.Dir(binary), map[string]string{"modernizr": script})
	require.NoError(t, os.Chmod(binary, 0o755)) //nolint:gosec
	return binary, calls
}

func TestAliasTarget(t *testing.T) {
	aliases := map[string]string{
		"modernizr$": "/srv/theme/.modernizrrc",
		"vendor":     "/srv/theme/assets/vendor",
	}

	tests := []struct {
		path   string
		target string
		ok     bool
	}{
		{"modernizr", "/srv/theme/.modernizrrc", true},
		{"modernizr/feature-detects/css/flexbox", "", false},
		{"vendor", "/srv/theme/assets/vendor", true},
		{"vendor/slider.js", "/srv/theme/assets/vendor/slider.js", true},
		{"vendors", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			target, ok := aliasTarget(aliases, tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestModernizrStep(t *testing.T) {
	root := t.TempDir()
	_, calls := fakeModernizr(t, filepath.Join(root, "node_modules"))

	e := &Engine{
		log:       zerolog.Nop(),
		opts:      Options{ModernizrBinary: "modernizr"},
		nodePaths: []string{filepath.Join(root, "node_modules")},
	}

	config := []byte(`{"minify": false, "feature-detects": ["css/flexbox"]}`)
	for range 2 {
		m := &module{path: filepath.Join(root, ".modernizrrc"), contents: config}
		require.NoError(t, e.modernizrStep(m, nil))
		assert.Contains(t, string(m.contents), "window.Modernizr = { flexbox: true };")
		assert.Contains(t, string(m.contents), "module.exports = window.Modernizr;")
	}

	runs, err := os.ReadFile(calls)
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(runs), "an unchanged config is built once")

	m := &module{path: filepath.Join(root, ".modernizrrc"), contents: []byte(`{"feature-detects": []}`)}
	require.ErrorContains(t, e.modernizrStep(m, nil), "unexpected config")
}

func TestModernizrStep_MissingBinary(t *testing.T) {
	e := &Engine{opts: Options{ModernizrBinary: "assetpack-no-such-modernizr"}}

	err := e.modernizrStep(&module{contents: []byte("{}")}, nil)
	require.ErrorIs(t, err, ErrNoModernizr)
}

func TestBuild_ModernizrAlias(t *testing.T) {
	base := testProject(t, map[string]string{
		"main.js": "import Modernizr from 'modernizr';\nconsole.log('flexbox', Modernizr.flexbox, typeof window.Modernizr);\n",
	})
	writeFiles(t, base.Root, map[string]string{
		assets.ModernizrConfig: `{"feature-detects": ["css/flexbox"]}`,
	})
	fakeModernizr(t, filepath.Join(base.Root, "node_modules"))

	cfg := assets.Build(base, assets.Flags{})
	e := newEngine(t, cfg, Options{})
	_, err := e.Build(context.Background())
	require.NoError(t, err)

	script, err := os.ReadFile(filepath.Join(cfg.Output.Path, "scripts", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "flexbox: true")

	// the build's global is restored once the module has read it
	assert.Contains(t, nodeRun(t, script), "flexbox true undefined")
}
