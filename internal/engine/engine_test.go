package engine

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/project"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
}

func testProject(t *testing.T, files map[string]string) project.Config {
	t.Helper()

	root := t.TempDir()
	writeFiles(t, filepath.Join(root, "assets"), files)

	return project.Config{
		Root:    root,
		Context: "assets",
		Entry:   project.Entry{"main": {"./main.js"}},
		Output:  project.Output{Path: "dist", PublicPath: "/dist/"},
	}
}

var basicProject = map[string]string{
	"main.js":   "import './style.css';\nconsole.log('hello from main');\n",
	"style.css": "body { color: red; }\n",
}

func newEngine(t *testing.T, cfg assets.Config, opts Options) *Engine {
	t.Helper()
	opts.Logger = zerolog.Nop()
	e, err := New(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func fileNames(files []File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func TestBuild_Default(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{})

	// stale output is removed by the clean plugin
	writeFiles(t, cfg.Output.Path, map[string]string{"stale.js": "old"})

	e := newEngine(t, cfg, Options{})
	res, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"scripts/main.js", "styles/main.css"}, fileNames(res.Files))
	assert.Nil(t, res.Manifest)

	script, err := os.ReadFile(filepath.Join(cfg.Output.Path, "scripts", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "hello from main")
	assert.Contains(t, string(script), "sourceMappingURL=data:")

	style, err := os.ReadFile(filepath.Join(cfg.Output.Path, "styles", "main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(style), "color: red")

	assert.NoFileExists(t, filepath.Join(cfg.Output.Path, "stale.js"))
}

var hashedName = regexp.MustCompile(`^main_[0-9a-f]{16}\.(js|css)$`)

func TestBuild_Release(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{Release: true})

	e := newEngine(t, cfg, Options{})
	res, err := e.Build(context.Background())
	require.NoError(t, err)

	var script, style string
	for _, f := range res.Files {
		switch {
		case strings.HasPrefix(f.Name, "scripts/") && !strings.HasSuffix(f.Name, ".map"):
			script = f.Name
		case strings.HasPrefix(f.Name, "styles/") && !strings.HasSuffix(f.Name, ".map"):
			style = f.Name
		}
	}
	require.Regexp(t, hashedName, filepath.Base(script))
	require.Regexp(t, hashedName, filepath.Base(style))
	assert.Contains(t, fileNames(res.Files), script+".map")

	data, err := os.ReadFile(filepath.Join(cfg.Output.Path, "assets.json"))
	require.NoError(t, err)

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, map[string]string{
		"main.js":  filepath.Base(script),
		"main.css": filepath.Base(style),
	}, manifest)

	contents, err := os.ReadFile(filepath.Join(cfg.Output.Path, filepath.FromSlash(script)))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "sourceMappingURL="+filepath.Base(script)+".map")
	assert.NotContains(t, string(contents), "/dist/main.js.map")
	assert.NotContains(t, string(contents), "\n  ", "scripts are minified")
	assert.FileExists(t, filepath.Join(cfg.Output.Path, filepath.FromSlash(script)+".map"))

	contents, err = os.ReadFile(filepath.Join(cfg.Output.Path, filepath.FromSlash(style)))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "sourceMappingURL="+filepath.Base(style)+".map")
	assert.FileExists(t, filepath.Join(cfg.Output.Path, filepath.FromSlash(style)+".map"))
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Notify(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func TestBuild_WatchInMemory(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{Watch: true})

	mem := NewMemoryFS()
	rec := &recorder{}
	e := newEngine(t, cfg, Options{Sink: mem, Notifier: rec})

	_, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"scripts/main.js", "styles/main.css"}, mem.Names())
	assert.NoDirExists(t, filepath.Join(cfg.Output.Path, "scripts"))

	script, ok := mem.ReadFile("scripts/main.js")
	require.True(t, ok)
	assert.Contains(t, string(script), `"/dist/styles/main.css"`)
	assert.Contains(t, string(script), "__assetpack_hot")

	require.Len(t, rec.updates, 1)
	assert.False(t, rec.updates[0].StylesOnly)

	writeFiles(t, cfg.Context, map[string]string{"style.css": "body { color: blue; }\n"})
	_, err = e.Rebuild(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.updates, 2)
	assert.Equal(t, []string{"styles/main.css"}, rec.updates[1].Files)
	assert.True(t, rec.updates[1].StylesOnly)

	// nothing changed, nothing to tell
	_, err = e.Rebuild(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.updates, 2)
}

func TestBuild_ErrorsKeepPreviousOutputs(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{Watch: true})

	mem := NewMemoryFS()
	e := newEngine(t, cfg, Options{Sink: mem})

	_, err := e.Build(context.Background())
	require.NoError(t, err)
	before, _ := mem.ReadFile("scripts/main.js")

	writeFiles(t, cfg.Context, map[string]string{"main.js": "import './style.css';\nconst = ;\n"})
	_, err = e.Rebuild(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)

	after, _ := mem.ReadFile("scripts/main.js")
	assert.Equal(t, before, after)
}

func TestBuild_ErrorsReachHotClients(t *testing.T) {
	tests := []struct {
		name     string
		noErrors bool
		reported bool
	}{
		{name: "reported without no-errors", noErrors: false, reported: true},
		{name: "suppressed by no-errors", noErrors: true, reported: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := testProject(t, basicProject)
			cfg := assets.Build(base, assets.Flags{Watch: true})
			if !tt.noErrors {
				cfg.Plugins = slices.DeleteFunc(cfg.Plugins, func(p assets.Plugin) bool {
					return p.Name() == assets.PluginNoErrors
				})
			}

			rec := &recorder{}
			e := newEngine(t, cfg, Options{Sink: NewMemoryFS(), Notifier: rec})

			_, err := e.Build(context.Background())
			require.NoError(t, err)
			require.Len(t, rec.updates, 1)

			writeFiles(t, cfg.Context, map[string]string{"main.js": "import './style.css';\nconst = ;\n"})
			_, err = e.Rebuild(context.Background())
			require.ErrorIs(t, err, ErrBuildFailed)

			if !tt.reported {
				require.Len(t, rec.updates, 1)
				return
			}

			require.Len(t, rec.updates, 2)
			assert.NotEmpty(t, rec.updates[1].Errors)
			assert.Empty(t, rec.updates[1].Files)

			// fixing the source brings clients back even though outputs match
			writeFiles(t, cfg.Context, basicProject)
			_, err = e.Rebuild(context.Background())
			require.NoError(t, err)
			require.Len(t, rec.updates, 3)
			assert.Empty(t, rec.updates[2].Errors)
			assert.NotEmpty(t, rec.updates[2].Files)
			assert.False(t, rec.updates[2].StylesOnly)
		})
	}
}

func TestBuild_URLStepLimit(t *testing.T) {
	base := testProject(t, map[string]string{
		"main.js":          "import './style.css';\n",
		"style.css":        "@font-face { font-family: a; src: url(./fonts/small.woff); }\n@font-face { font-family: b; src: url(./fonts/big.woff); }\n",
		"fonts/small.woff": strings.Repeat("s", 100),
		"fonts/big.woff":   strings.Repeat("b", assets.URLInlineLimit),
	})
	cfg := assets.Build(base, assets.Flags{})

	e := newEngine(t, cfg, Options{})
	res, err := e.Build(context.Background())
	require.NoError(t, err)

	assert.Contains(t, fileNames(res.Files), "fonts/big.woff")
	assert.NotContains(t, fileNames(res.Files), "fonts/small.woff")

	style, err := os.ReadFile(filepath.Join(cfg.Output.Path, "styles", "main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(style), "/dist/fonts/big.woff")
	assert.Contains(t, string(style), "data:application/font-woff;base64,")
}

func TestBuild_Externals(t *testing.T) {
	base := testProject(t, map[string]string{
		"main.js": "import $ from 'jquery';\n$(function () { console.log('ready'); });\n",
	})
	cfg := assets.Build(base, assets.Flags{})

	e := newEngine(t, cfg, Options{})
	_, err := e.Build(context.Background())
	require.NoError(t, err)

	script, err := os.ReadFile(filepath.Join(cfg.Output.Path, "scripts", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), `self["jQuery"]`)
}

// nodeRun executes script after a minimal browser prelude.
func nodeRun(t *testing.T, script []byte) string {
	t.Helper()

	node, err := exec.LookPath("node")
	if err != nil {
		t.Skip("node is not installed")
	}

	prelude := "globalThis.window = globalThis;\nglobalThis.self = globalThis;\nglobalThis.jQuery = function jQuery() {};\n"
	path := filepath.Join(t.TempDir(), "run.js")
	require.NoError(t, os.WriteFile(path, append([]byte(prelude), script...), 0o600))

	out, err := exec.Command(node, path).CombinedOutput() //nolint:gosec
	require.NoError(t, err, string(out))
	return string(out)
}

func TestBuild_ProvidedBundleRuns(t *testing.T) {
	tests := []struct {
		name string
		main string
		want string
	}{
		{
			name: "plain script",
			main: "console.log('plain');\n",
			want: "plain",
		},
		{
			name: "provided and imported jquery",
			main: "import jq from 'jquery';\nconsole.log('same', jq === $, window.jQuery === jq, typeof window.Tether);\n",
			want: "same true true undefined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := testProject(t, map[string]string{"main.js": tt.main})
			cfg := assets.Build(base, assets.Flags{})

			e := newEngine(t, cfg, Options{})
			_, err := e.Build(context.Background())
			require.NoError(t, err)

			script, err := os.ReadFile(filepath.Join(cfg.Output.Path, "scripts", "main.js"))
			require.NoError(t, err)
			assert.Contains(t, nodeRun(t, script), tt.want)
		})
	}
}

func TestBuild_UnknownStep(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{})
	cfg.Rules = []assets.Rule{{
		Test:  regexp.MustCompile(`\.js$`),
		Chain: []assets.Step{{Name: "coffee"}},
	}}

	e := newEngine(t, cfg, Options{})
	_, err := e.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, err.Error(), ErrUnknownStep.Error())
}

func TestBuild_LintFailure(t *testing.T) {
	base := testProject(t, map[string]string{
		"main.js": "let x = ;\n",
	})
	cfg := assets.Build(base, assets.Flags{})

	e := newEngine(t, cfg, Options{})
	_, err := e.Build(context.Background())
	require.ErrorIs(t, err, ErrBuildFailed)
}

func TestBuild_CancelledContext(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{})

	e := newEngine(t, cfg, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Build(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_UnsupportedPlugin(t *testing.T) {
	base := testProject(t, basicProject)
	cfg := assets.Build(base, assets.Flags{})
	cfg.Plugins = append(cfg.Plugins, fakePlugin{})

	_, err := New(cfg, Options{Logger: zerolog.Nop()})
	require.ErrorContains(t, err, `unsupported plugin "fake"`)
}

type fakePlugin struct{}

func (fakePlugin) Name() string { return "fake" }
