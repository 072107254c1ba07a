package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParse_YAML(t *testing.T) {
	cfg, err := Parse([]byte(`
context: src
entry:
  main:
    - ./scripts/main.js
    - ./styles/main.scss
  customizer: ./scripts/customizer.js
output:
  path: build
  publicPath: /app/themes/sage/build/
`))
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.Context)
	assert.Equal(t, Sources{"./scripts/main.js", "./styles/main.scss"}, cfg.Entry["main"])
	assert.Equal(t, Sources{"./scripts/customizer.js"}, cfg.Entry["customizer"])
	assert.Equal(t, "build", cfg.Output.Path)
	assert.Equal(t, "/app/themes/sage/build/", cfg.Output.PublicPath)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{
  "context": "assets",
  "entry": {"main": ["./scripts/main.js", "./styles/main.scss"]},
  "output": {"path": "dist", "publicPath": "/dist/"}
}`))
	require.NoError(t, err)
	assert.Equal(t, Sources{"./scripts/main.js", "./styles/main.scss"}, cfg.Entry["main"])
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`entry: {main: ./scripts/main.js}`))
	require.NoError(t, err)

	assert.Equal(t, "assets", cfg.Context)
	assert.Equal(t, "dist", cfg.Output.Path)
	assert.Equal(t, "/dist/", cfg.Output.PublicPath)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("ASSETPACK_OUTPUT_PATH", "public")
	t.Setenv("ASSETPACK_OUTPUT_PUBLIC_PATH", "https://cdn.example.com/")

	cfg, err := Parse([]byte(`{"entry": {"main": "./scripts/main.js"}, "output": {"path": "dist"}}`))
	require.NoError(t, err)

	assert.Equal(t, "public", cfg.Output.Path)
	assert.Equal(t, "https://cdn.example.com/", cfg.Output.PublicPath)
}

func TestParse_InvalidEntry(t *testing.T) {
	_, err := Parse([]byte(`entry: {main: {nested: true}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry must be a string or a list of strings")
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "assets/config.json", `{"entry": {"main": "./scripts/main.js"}}`)

	cfg, err := Load(root, "assets/config.json")
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, filepath.Join(root, "assets"), cfg.ContextDir())
	assert.Equal(t, filepath.Join(root, "dist"), cfg.OutputDir())
}

func TestLoad_AbsoluteOutput(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	path := writeConfig(t, root, "config.yml", "entry: {main: ./main.js}\noutput: {path: "+out+"}\n")

	cfg, err := Load(root, path)
	require.NoError(t, err)
	assert.Equal(t, out, cfg.OutputDir())
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(t.TempDir(), "nope.yml")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEntries)
	assert.ErrorIs(t, err, ErrNoOutputPath)

	cfg = &Config{Entry: Entry{"main": {}}, Output: Output{Path: "dist"}}
	err = cfg.Validate()
	require.ErrorIs(t, err, ErrNoEntries)
	assert.Contains(t, err.Error(), `entry "main"`)

	cfg = &Config{Entry: Entry{"main": {"./main.js"}}, Output: Output{Path: "dist"}}
	require.NoError(t, cfg.Validate())
}

func TestEntry_Clone(t *testing.T) {
	e := Entry{"b": {"./b.js"}, "a": {"./a.js", "./a.scss"}}
	c := e.Clone()
	c["a"][0] = "changed"

	assert.Equal(t, "./a.js", e["a"][0])
	assert.Equal(t, []string{"a", "b"}, e.Names())
}
