// Package engine runs composed build configurations through esbuild.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/logger"
	"github.com/wolfeidau/assetpack/internal/sass"
	"github.com/wolfeidau/assetpack/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const tracerName = "github.com/wolfeidau/assetpack/internal/engine"

var ErrBuildFailed = errors.New("build failed")

// Update describes a successful rebuild to hot clients.
type Update struct {
	Hash string
	// Files changed since the previous build, relative to the output path.
	Files []string
	// StylesOnly is set when only stylesheets changed.
	StylesOnly bool
	// Errors holds the formatted messages of a failed build. Files is empty.
	Errors []string
}

// Notifier is told about rebuilds when hot replacement is enabled. Failed
// builds are only reported without the no-errors plugin.
type Notifier interface {
	Notify(Update)
}

type Options struct {
	Logger zerolog.Logger
	// SassBinary is the dart-sass executable, looked up in PATH.
	SassBinary string
	// ModernizrBinary is the Modernizr CLI, looked up in the module
	// directories' .bin and then PATH.
	ModernizrBinary string
	// Sink receives emitted files, defaults to the output directory.
	Sink     Sink
	Notifier Notifier
}

// Result is the outcome of a successful build.
type Result struct {
	Hash     string
	Files    []File
	Manifest map[string]any
	Warnings []api.Message
}

// Engine owns an esbuild build context for one composed configuration.
type Engine struct {
	cfg       assets.Config
	opts      Options
	log       zerolog.Logger
	behaviour behaviour
	engines   []api.Engine
	sass      *sass.Compiler

	build          api.BuildContext
	workingDir     string
	nodePaths      []string
	tmpDir         string
	babelCache     sync.Map
	modernizrCache sync.Map

	mu      sync.Mutex
	cleaned bool
	hashes  map[string]string
}

// New prepares an engine for cfg. Nothing is built until Build is called.
func New(cfg assets.Config, opts Options) (*Engine, error) {
	b, err := interpret(cfg.Plugins)
	if err != nil {
		return nil, err
	}

	engines, err := Engines(cfg.PostCSS.Browsers)
	if err != nil {
		return nil, err
	}

	if opts.Sink == nil {
		opts.Sink = DirSink{Dir: cfg.Output.Path}
	}
	if opts.SassBinary == "" {
		opts.SassBinary = "sass"
	}
	if opts.ModernizrBinary == "" {
		opts.ModernizrBinary = "modernizr"
	}

	e := &Engine{
		cfg:       cfg,
		opts:      opts,
		log:       opts.Logger,
		behaviour: b,
		engines:   engines,
	}

	build := buildOptions(cfg, b)
	e.workingDir = build.AbsWorkingDir
	e.nodePaths = build.NodePaths
	e.sass = sass.New(opts.SassBinary, append([]string{cfg.Context}, build.NodePaths...), e.log)

	plugins := []api.Plugin{e.entryPlugin(), e.hotClientPlugin(), e.aliasPlugin(), e.externalsPlugin()}

	if len(b.provide) > 0 {
		e.tmpDir, err = os.MkdirTemp("", "assetpack-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		shim, defines, err := writeProvideShim(e.tmpDir, b.provide)
		if err != nil {
			_ = os.RemoveAll(e.tmpDir)
			return nil, err
		}
		build.Inject = []string{shim}
		build.Define = defines
		plugins = append(plugins, e.providePlugin())
	}

	build.Plugins = append(plugins, e.rulesPlugin())

	ctx, ctxErr := api.Context(build)
	if ctxErr != nil {
		e.cleanup()
		return nil, fmt.Errorf("failed to create build context: %w", ctxErr)
	}
	e.build = ctx

	return e, nil
}

// Build runs the clean plugin on first use and then builds.
func (e *Engine) Build(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cleaned && e.behaviour.clean != nil {
		if err := cleanPaths(e.behaviour.clean); err != nil {
			return nil, err
		}
		e.log.Debug().Strs("paths", e.behaviour.clean.Paths).Msg("Cleaned output")
	}
	e.cleaned = true

	return e.run(ctx)
}

// Rebuild builds incrementally, reusing the work of earlier builds.
func (e *Engine) Rebuild(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.run(ctx)
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.build")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metrics := telemetry.GetMetrics()
	start := time.Now()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.build.Cancel()
		case <-done:
		}
	}()

	result := e.build.Rebuild()

	attrs := metric.WithAttributes(
		attribute.Bool("release", e.cfg.Flags.Release),
		attribute.Bool("watch", e.cfg.Flags.Watch),
	)
	metrics.BuildsTotal.Add(ctx, 1, attrs)

	logger.Messages(e.log, result.Errors, result.Warnings)

	if len(result.Errors) > 0 {
		metrics.BuildErrorsTotal.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, "build failed")

		formatted := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})

		switch {
		case e.behaviour.noErrors:
			e.log.Warn().Msg("Build failed, keeping previous outputs")
		case e.behaviour.hot && e.opts.Notifier != nil:
			e.opts.Notifier.Notify(Update{Errors: formatted})
			// the next good build reloads clients out of the error state
			e.hashes = nil
		}

		return nil, fmt.Errorf("%w: %s", ErrBuildFailed, strings.TrimSpace(strings.Join(formatted, "")))
	}

	meta, err := parseMetadata(result.Metafile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	files, err := e.rename(result.OutputFiles, meta.bundles(e.workingDir))
	if err != nil {
		return nil, err
	}

	var size int64
	for _, f := range files {
		if err := e.opts.Sink.WriteFile(f.Name, f.Contents); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
		size += int64(len(f.Contents))
	}

	res := &Result{
		Hash:     buildHash(files),
		Files:    files,
		Warnings: result.Warnings,
	}

	if m := e.behaviour.manifest; m != nil {
		res.Manifest = manifest(files, e.cfg.Output.PublicPath, m.FullPath)
		if err := e.writeManifest(m, res.Manifest); err != nil {
			return nil, err
		}
	}

	update := e.diff(res)
	if e.behaviour.hot && e.opts.Notifier != nil && len(update.Files) > 0 {
		e.opts.Notifier.Notify(update)
	}

	elapsed := time.Since(start)
	metrics.BuildDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	metrics.OutputFilesTotal.Add(ctx, int64(len(files)), attrs)
	metrics.OutputBytesTotal.Add(ctx, size, attrs)
	span.SetAttributes(
		attribute.String("build.hash", res.Hash),
		attribute.Int("build.files", len(files)),
	)

	e.log.Info().
		Str("hash", res.Hash).
		Int("files", len(files)).
		Int("changed", len(update.Files)).
		Dur("duration", elapsed).
		Msg("Built assets")

	return res, nil
}

func (e *Engine) writeManifest(m *assets.AssetsManifestPlugin, raw map[string]any) error {
	process := m.ProcessOutput
	if process == nil {
		process = assets.ProcessManifest
	}

	data, err := process(raw)
	if err != nil {
		return fmt.Errorf("failed to render manifest: %w", err)
	}

	target := filepath.Join(m.Path, m.Filename)
	rel, err := filepath.Rel(e.cfg.Output.Path, target)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return e.opts.Sink.WriteFile(filepath.ToSlash(rel), data)
	}

	if err := os.MkdirAll(m.Path, 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644) //nolint:gosec
}

// diff records the output hashes of res and returns what changed since the
// previous build.
func (e *Engine) diff(res *Result) Update {
	next := make(map[string]string, len(res.Files))
	update := Update{Hash: res.Hash, StylesOnly: true}

	for _, f := range res.Files {
		next[f.Name] = f.Hash
		if e.hashes[f.Name] == f.Hash {
			continue
		}
		update.Files = append(update.Files, f.Name)
		if !isStyle(f.Name) {
			update.StylesOnly = false
		}
	}
	e.hashes = next

	if len(update.Files) == 0 {
		update.StylesOnly = false
	}
	return update
}

func isStyle(name string) bool {
	return strings.HasSuffix(name, ".css") || strings.HasSuffix(name, ".css.map")
}

// Close releases the build context and the sass process.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.build != nil {
		e.build.Dispose()
		e.build = nil
	}
	return e.cleanup()
}

func (e *Engine) cleanup() error {
	var errs []error
	if e.sass != nil {
		errs = append(errs, e.sass.Close())
	}
	if e.tmpDir != "" {
		errs = append(errs, os.RemoveAll(e.tmpDir))
		e.tmpDir = ""
	}
	return errors.Join(errs...)
}
