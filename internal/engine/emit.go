package engine

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/assetpack/internal/assets"
)

// File is one emitted output.
type File struct {
	// Name is relative to the output path, slash separated.
	Name string
	// Bundle is the entry name for bundle outputs, empty for copied assets.
	Bundle   string
	Contents []byte
	Hash     string
}

// Sink receives emitted files.
type Sink interface {
	WriteFile(name string, data []byte) error
}

// DirSink writes files below Dir.
type DirSink struct {
	Dir string
}

func (s DirSink) WriteFile(name string, data []byte) error {
	path := filepath.Join(s.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec
}

// MemoryFS keeps emitted files in memory for the dev server.
type MemoryFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryFS() *MemoryFS {
	return &MemoryFS{files: map[string][]byte{}}
}

func (m *MemoryFS) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

// ReadFile returns the contents of name.
func (m *MemoryFS) ReadFile(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	return data, ok
}

// Names lists stored files in order.
func (m *MemoryFS) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.files)
}

func contentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// rename maps esbuild outputs onto the filename templates. Bundle outputs and
// their source maps are renamed, assets keep the name esbuild gave them.
func (e *Engine) rename(outputs []api.OutputFile, bundles map[string]string) ([]File, error) {
	styleTemplate := e.cfg.Templates.Style
	if !e.behaviour.extracting() {
		styleTemplate = stripHash(styleTemplate)
	}

	files := make([]File, 0, len(outputs))
	renamed := map[string]string{}
	var maps []api.OutputFile

	for _, of := range outputs {
		rel, err := filepath.Rel(e.cfg.Output.Path, of.Path)
		if err != nil {
			return nil, fmt.Errorf("output %s is outside %s: %w", of.Path, e.cfg.Output.Path, err)
		}
		rel = filepath.ToSlash(rel)

		if strings.HasSuffix(rel, ".map") {
			if _, ok := bundles[strings.TrimSuffix(of.Path, ".map")]; ok {
				maps = append(maps, of)
				continue
			}
		}

		hash := contentHash(of.Contents)
		name, ok := bundles[of.Path]
		if !ok {
			files = append(files, File{Name: rel, Contents: of.Contents, Hash: hash})
			continue
		}

		template := ""
		switch path.Ext(rel) {
		case ".js":
			template = e.cfg.Templates.Script
		case ".css":
			template = styleTemplate
		default:
			return nil, fmt.Errorf("unexpected bundle output %s", rel)
		}

		target := assets.RenderFilename(template, name, hash)
		renamed[rel] = target
		files = append(files, File{Name: target, Bundle: name, Contents: of.Contents, Hash: hash})
	}

	for _, of := range maps {
		rel, _ := filepath.Rel(e.cfg.Output.Path, of.Path)
		parent := strings.TrimSuffix(filepath.ToSlash(rel), ".map")
		target, ok := renamed[parent]
		if !ok {
			continue
		}
		files = append(files, File{
			Name:     target + ".map",
			Bundle:   bundles[strings.TrimSuffix(of.Path, ".map")],
			Contents: of.Contents,
			Hash:     contentHash(of.Contents),
		})
		for i := range files {
			if files[i].Name == target {
				files[i].Contents = rewriteMapURL(files[i].Contents, path.Base(target)+".map")
			}
		}
	}

	if e.behaviour.stableOrder {
		slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Name, b.Name) })
	}

	return files, nil
}

const mapMarker = "sourceMappingURL="

// rewriteMapURL points the trailing sourceMappingURL comment at to, which sits
// next to the file. esbuild writes the original name behind the public path.
func rewriteMapURL(contents []byte, to string) []byte {
	i := bytes.LastIndex(contents, []byte(mapMarker))
	if i < 0 {
		return contents
	}
	start := i + len(mapMarker)
	end := start
	for end < len(contents) && !isSpace(contents[end]) {
		end++
	}

	out := make([]byte, 0, len(contents)-(end-start)+len(to))
	out = append(out, contents[:start]...)
	out = append(out, to...)
	return append(out, contents[end:]...)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// manifest builds the raw asset manifest: bundle name -> extension -> file.
func manifest(files []File, publicPath string, fullPath bool) map[string]any {
	raw := map[string]any{}

	for _, f := range files {
		if f.Bundle == "" || strings.HasSuffix(f.Name, ".map") {
			continue
		}
		exts, ok := raw[f.Bundle].(map[string]string)
		if !ok {
			exts = map[string]string{}
			raw[f.Bundle] = exts
		}
		exts[strings.TrimPrefix(path.Ext(f.Name), ".")] = cond(fullPath, publicPath+f.Name, f.Name)
	}

	return raw
}

// buildHash identifies a set of outputs.
func buildHash(files []File) string {
	d := xxhash.New()
	for _, f := range files {
		_, _ = d.WriteString(f.Name)
		_, _ = d.WriteString(f.Hash)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
