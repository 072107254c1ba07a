package engine

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

type buildMetadata struct {
	Outputs map[string]outputInfo `json:"outputs"`
}

type outputInfo struct {
	EntryPoint string `json:"entryPoint"`
	CSSBundle  string `json:"cssBundle"`
	Bytes      int    `json:"bytes"`
}

func parseMetadata(metafile string) (*buildMetadata, error) {
	var meta buildMetadata
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// bundles maps the absolute path of every entry output, and the stylesheet
// esbuild split from it, to the bundle name.
func (m *buildMetadata) bundles(workingDir string) map[string]string {
	out := map[string]string{}

	for path, info := range m.Outputs {
		name, ok := strings.CutPrefix(info.EntryPoint, entryNamespace+":")
		if !ok {
			continue
		}
		out[absPath(workingDir, path)] = name
		if info.CSSBundle != "" {
			out[absPath(workingDir, info.CSSBundle)] = name
		}
	}

	return out
}

func absPath(workingDir, path string) string {
	path = filepath.FromSlash(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(workingDir, path)
}
