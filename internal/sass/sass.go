// Package sass compiles SCSS through the dart-sass embedded protocol.
package sass

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	godartsass "github.com/bep/godartsass/v2"
	"github.com/rs/zerolog"
)

var ErrNoBinary = errors.New("dart-sass binary not found")

// Result is compiled CSS and the files it was compiled from.
type Result struct {
	CSS       string
	SourceMap string
	Sources   []string
}

// Compiler starts the dart-sass process on first use and shares it.
type Compiler struct {
	binary       string
	includePaths []string
	log          zerolog.Logger

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// New returns a compiler that runs binary (a path or a name looked up in
// PATH) with includePaths as load paths.
func New(binary string, includePaths []string, log zerolog.Logger) *Compiler {
	return &Compiler{
		binary:       binary,
		includePaths: includePaths,
		log:          log,
	}
}

func (c *Compiler) start() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler != nil {
		return c.transpiler, nil
	}

	binary, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBinary, c.binary)
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: binary,
		Timeout:                  60 * time.Second,
		LogEventHandler: func(e godartsass.LogEvent) {
			c.log.Warn().Str("sass", e.Message).Msg("Sass log event")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start dart-sass: %w", err)
	}

	c.transpiler = t
	return t, nil
}

// Compile compiles the SCSS source read from path.
func (c *Compiler) Compile(path, source string, sourceMap bool) (Result, error) {
	t, err := c.start()
	if err != nil {
		return Result{}, err
	}

	result, err := t.Execute(godartsass.Args{
		URL:             "file://" + path,
		Source:          source,
		SourceSyntax:    godartsass.SourceSyntaxSCSS,
		OutputStyle:     godartsass.OutputStyleExpanded,
		IncludePaths:    c.includePaths,
		EnableSourceMap: true,
	})
	if err != nil {
		return Result{}, err
	}

	sources, err := mapSources(result.SourceMap)
	if err != nil {
		return Result{}, err
	}

	out := Result{CSS: result.CSS, Sources: sources}
	if sourceMap {
		out.SourceMap = result.SourceMap
	}
	return out, nil
}

// Close stops the dart-sass process if it was started.
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	return err
}

// mapSources lists the local files named by a source map.
func mapSources(sourceMap string) ([]string, error) {
	if sourceMap == "" {
		return nil, nil
	}

	var sm struct {
		Sources []string `json:"sources"`
	}
	if err := json.Unmarshal([]byte(sourceMap), &sm); err != nil {
		return nil, fmt.Errorf("failed to read sass source map: %w", err)
	}

	files := make([]string, 0, len(sm.Sources))
	for _, s := range sm.Sources {
		if !strings.HasPrefix(s, "file://") {
			continue
		}
		u, err := url.Parse(s)
		if err != nil {
			continue
		}
		if _, err := os.Stat(u.Path); err == nil {
			files = append(files, u.Path)
		}
	}
	return files, nil
}
