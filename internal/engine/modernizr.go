package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
)

var ErrNoModernizr = errors.New("modernizr binary not found")

const modernizrTimeout = 60 * time.Second

// modernizrStep builds Modernizr with the options and feature detects listed
// in the loaded config and exports the resulting object. Builds are reused
// while the config is unchanged.
func (e *Engine) modernizrStep(m *module, _ url.Values) error {
	key := xxhash.Sum64(m.contents)
	if code, ok := e.modernizrCache.Load(key); ok {
		m.contents = code.([]byte)
		m.loader = api.LoaderJS
		return nil
	}

	binary, err := e.modernizrBinary()
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "assetpack-modernizr-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	// the CLI requires a .json config
	config := filepath.Join(dir, "config.json")
	if err := os.WriteFile(config, m.contents, 0o600); err != nil {
		return fmt.Errorf("failed to write modernizr config: %w", err)
	}
	dest := filepath.Join(dir, "modernizr.js")

	ctx, cancel := context.WithTimeout(context.Background(), modernizrTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-c", config, "-d", dest).CombinedOutput() //nolint:gosec
	if err != nil {
		return fmt.Errorf("modernizr build failed: %w: %s", err, bytes.TrimSpace(out))
	}

	build, err := os.ReadFile(dest)
	if err != nil {
		return fmt.Errorf("failed to read modernizr build: %w", err)
	}

	code := wrapModernizr(build)
	e.modernizrCache.Store(key, code)
	e.log.Debug().Str("config", m.path).Int("bytes", len(code)).Msg("Built modernizr")

	m.contents = code
	m.loader = api.LoaderJS
	return nil
}

// modernizrBinary prefers a locally installed CLI over one in PATH.
func (e *Engine) modernizrBinary() (string, error) {
	name := e.opts.ModernizrBinary
	if filepath.IsAbs(name) {
		return name, nil
	}

	for _, dir := range e.nodePaths {
		local := filepath.Join(dir, ".bin", name)
		if info, err := os.Stat(local); err == nil && !info.IsDir() {
			return local, nil
		}
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoModernizr, name)
	}
	return path, nil
}

// wrapModernizr turns the global-assigning build into a module and restores
// whatever Modernizr global was there before.
func wrapModernizr(build []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(";(function (window) {\n")
	buf.WriteString("var hadGlobal = 'Modernizr' in window;\n")
	buf.WriteString("var oldGlobal = window.Modernizr;\n")
	buf.Write(build)
	buf.WriteString("\nmodule.exports = window.Modernizr;\n")
	buf.WriteString("if (hadGlobal) { window.Modernizr = oldGlobal; }\n")
	buf.WriteString("else { delete window.Modernizr; }\n")
	buf.WriteString("})(window);\n")
	return buf.Bytes()
}
