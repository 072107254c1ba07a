// Package imageopt recompresses images losslessly before they are emitted.
package imageopt

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/png"
	"strings"
)

// Options mirror the image loader query.
type Options struct {
	// BypassOnDebug skips optimisation for debug builds.
	BypassOnDebug bool
	// Debug is set for watch builds.
	Debug bool
}

// Optimize returns a smaller encoding of data when it can find one, otherwise
// data unchanged. ext selects the format.
func Optimize(data []byte, ext string, opts Options) ([]byte, error) {
	if opts.BypassOnDebug && opts.Debug {
		return data, nil
	}

	var (
		out []byte
		err error
	)

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "png":
		out, err = optimizePNG(data)
	case "gif":
		out, err = optimizeGIF(data)
	default:
		// jpeg needs a lossless transcoder, leave as is
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to optimise %s image: %w", ext, err)
	}

	if len(out) >= len(data) {
		return data, nil
	}
	return out, nil
}

func optimizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := gif.EncodeAll(buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
