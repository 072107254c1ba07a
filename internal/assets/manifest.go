package assets

import (
	"encoding/json"
	"path"
	"slices"
)

// FlattenManifest reshapes a manifest of name -> extension -> file into
// name.extension -> file basename. Names whose value is already a plain
// filename are skipped.
//
// When two names flatten to the same key the result follows sorted name and
// extension order, last wins.
func FlattenManifest(assets map[string]any) map[string]string {
	results := make(map[string]string)

	for _, name := range sortedKeys(assets) {
		var files map[string]string

		switch v := assets[name].(type) {
		case map[string]string:
			files = v
		case map[string]any:
			files = make(map[string]string, len(v))
			for ext, file := range v {
				if s, ok := file.(string); ok {
					files[ext] = s
				}
			}
		default:
			// plain filenames and anything else are not bundles
			continue
		}

		for _, ext := range sortedKeys(files) {
			results[name+"."+ext] = path.Base(files[ext])
		}
	}

	return results
}

// ProcessManifest renders the flattened manifest as JSON.
func ProcessManifest(assets map[string]any) ([]byte, error) {
	return json.Marshal(FlattenManifest(assets))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
