package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpack/internal/devserver"
	"github.com/wolfeidau/assetpack/internal/engine"
	"github.com/wolfeidau/assetpack/internal/project"
	"gopkg.in/yaml.v3"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range map[string]string{
		"assets/config.yml": "entry:\n  main: ./main.js\n",
		"assets/main.js":    "import './main.css';\nconsole.log('theme');\n",
		"assets/main.css":   "body { margin: 0; }\n",
	} {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	return root
}

func TestConfigCmd_Render(t *testing.T) {
	root := writeProject(t)
	cmd := &ConfigCmd{
		ModeFlags:    ModeFlags{Release: true},
		ProjectFlags: ProjectFlags{Root: root, Config: "assets/config.yml"},
	}

	var buf bytes.Buffer
	require.NoError(t, cmd.render(&buf))

	var view map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, filepath.Join(root, "assets"), view["context"])

	templates := view["templates"].(map[string]any)
	assert.Equal(t, "scripts/[name]_[hash].js", templates["script"])
}

func TestConfigCmd_InvalidConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "assets", "config.yml"), []byte("context: assets\n"), 0o600))

	cmd := &ConfigCmd{ProjectFlags: ProjectFlags{Root: root, Config: "assets/config.yml"}}
	err := cmd.render(&bytes.Buffer{})
	require.ErrorIs(t, err, project.ErrNoEntries)
}

func TestBuildCmd_ReleasePrecompress(t *testing.T) {
	root := writeProject(t)
	cmd := &BuildCmd{
		ModeFlags:    ModeFlags{Release: true},
		ProjectFlags: ProjectFlags{Root: root, Config: "assets/config.yml"},
		Precompress:  true,
		SassBinary:   "sass",
	}

	base, err := cmd.load()
	require.NoError(t, err)
	require.NoError(t, cmd.buildOnce(context.Background(), zerolog.Nop(), base))

	data, err := os.ReadFile(filepath.Join(root, "dist", "assets.json"))
	require.NoError(t, err)

	var manifest map[string]string
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Contains(t, manifest, "main.js")
	require.Contains(t, manifest, "main.css")

	script := filepath.Join(root, "dist", "scripts", manifest["main.js"])
	assert.FileExists(t, script)
	assert.FileExists(t, script+".gz")
	assert.FileExists(t, script+".br")
	assert.NoFileExists(t, script+".map.gz")
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestSession_ConfigReloadMovesWatcher(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "config.yml")
	writeFile(t, configPath, "context: assets\nentry:\n  main: ./main.js\n")
	writeFile(t, filepath.Join(root, "assets", "main.js"), "console.log('from assets');\n")
	writeFile(t, filepath.Join(root, "theme", "main.js"), "console.log('from theme');\n")

	cmd := &BuildCmd{
		ModeFlags:    ModeFlags{Watch: true},
		ProjectFlags: ProjectFlags{Root: root, Config: "config.yml"},
		SassBinary:   "sass",
	}
	base, err := cmd.load()
	require.NoError(t, err)

	files := engine.NewMemoryFS()
	s := &session{
		cmd:   cmd,
		log:   zerolog.Nop(),
		files: files,
		server: devserver.New(devserver.Options{
			Addr:       "127.0.0.1:0",
			PublicPath: base.Output.PublicPath,
			Files:      files,
			Logger:     zerolog.Nop(),
		}),
		configPath: configPath,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.start(ctx, base))

	done := make(chan error, 1)
	go func() { done <- s.watch(ctx) }()

	script := func() string {
		data, _ := files.ReadFile("scripts/main.js")
		return string(data)
	}
	require.Contains(t, script(), "from assets")

	// writes before the watcher is ready are missed, so keep writing
	require.Eventually(t, func() bool {
		_ = os.WriteFile(configPath, []byte("context: theme\nentry:\n  main: ./main.js\n"), 0o600)
		return strings.Contains(script(), "from theme")
	}, 5*time.Second, 200*time.Millisecond)

	// only seen if the watcher followed the context to theme/
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "theme", "main.js"), []byte("console.log('edited theme');\n"), 0o600)
		return strings.Contains(script(), "edited theme")
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, s.engine.Close())
}
