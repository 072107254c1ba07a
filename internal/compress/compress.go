// Package compress writes precompressed siblings of release outputs.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Extensions that are worth precompressing.
var Extensions = []string{".js", ".css", ".svg", ".json"}

// Sink receives compressed files.
type Sink interface {
	WriteFile(name string, data []byte) error
}

// Eligible reports whether name should get compressed siblings.
func Eligible(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	return finish(&buf, w, data)
}

func Brotli(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	return finish(&buf, brotli.NewWriterLevel(&buf, brotli.BestCompression), data)
}

func finish(buf *bytes.Buffer, w io.WriteCloser, data []byte) ([]byte, error) {
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write stores name.gz and name.br next to name when name is eligible. It
// returns the number of compressed bytes written.
func Write(sink Sink, name string, data []byte) (int, error) {
	if !Eligible(name) {
		return 0, nil
	}

	gz, err := Gzip(data)
	if err != nil {
		return 0, fmt.Errorf("failed to gzip %s: %w", name, err)
	}
	br, err := Brotli(data)
	if err != nil {
		return 0, fmt.Errorf("failed to brotli %s: %w", name, err)
	}

	if err := sink.WriteFile(name+".gz", gz); err != nil {
		return 0, err
	}
	if err := sink.WriteFile(name+".br", br); err != nil {
		return 0, err
	}
	return len(gz) + len(br), nil
}
