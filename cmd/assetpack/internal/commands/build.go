package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpack/internal/assets"
	"github.com/wolfeidau/assetpack/internal/compress"
	"github.com/wolfeidau/assetpack/internal/devserver"
	"github.com/wolfeidau/assetpack/internal/engine"
	"github.com/wolfeidau/assetpack/internal/logger"
	"github.com/wolfeidau/assetpack/internal/project"
	"github.com/wolfeidau/assetpack/internal/telemetry"
	"github.com/wolfeidau/assetpack/internal/watcher"
	"golang.org/x/sync/errgroup"
)

type BuildCmd struct {
	ModeFlags    `embed:""`
	ProjectFlags `embed:""`

	Listen      string `help:"dev server listen address (watch mode)" default:"localhost:3000" env:"ASSETPACK_LISTEN"`
	Precompress bool   `help:"write .gz and .br siblings of release outputs" default:"false" env:"ASSETPACK_PRECOMPRESS"`
	SassBinary  string `help:"dart-sass executable" default:"sass" env:"ASSETPACK_SASS_BINARY"`
	Modernizr   string `help:"Modernizr CLI, node_modules/.bin is searched first" default:"modernizr" env:"ASSETPACK_MODERNIZR_BINARY"`
	Tracing     bool   `help:"export traces and metrics over OTLP" default:"false" env:"ASSETPACK_TRACING"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Tracing {
		shutdown, err := telemetry.InitTelemetry(ctx, "assetpack", globals.Version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to shut down telemetry")
			}
		}()
	}

	base, err := c.load()
	if err != nil {
		return err
	}

	if c.Precompress && !c.Release {
		log.Warn().Msg("--precompress only applies to release builds, ignoring")
	}

	log.Info().
		Str("version", globals.Version).
		Bool("release", c.Release).
		Bool("watch", c.Watch).
		Str("context", base.ContextDir()).
		Msg("Building assets")

	if c.Watch {
		return c.watch(ctx, log, base)
	}
	return c.buildOnce(ctx, log, base)
}

func (c *BuildCmd) buildOnce(ctx context.Context, log zerolog.Logger, base *project.Config) error {
	cfg := assets.Build(*base, c.flags())
	sink := engine.DirSink{Dir: cfg.Output.Path}

	eng, err := engine.New(cfg, engine.Options{
		Logger:          log,
		SassBinary:      c.SassBinary,
		ModernizrBinary: c.Modernizr,
		Sink:            sink,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Build(ctx)
	if err != nil {
		return err
	}

	if c.Precompress && c.Release {
		if err := precompress(ctx, sink, res.Files); err != nil {
			return err
		}
	}

	return nil
}

func precompress(ctx context.Context, sink compress.Sink, files []engine.File) error {
	var total int64
	for _, f := range files {
		n, err := compress.Write(sink, f.Name, f.Contents)
		if err != nil {
			return err
		}
		total += int64(n)
	}
	telemetry.GetMetrics().PrecompressedSize.Add(ctx, total)
	return nil
}

// session is the engine for the current base configuration. It is replaced
// when the configuration file changes.
type session struct {
	cmd        *BuildCmd
	log        zerolog.Logger
	files      *engine.MemoryFS
	server     *devserver.Server
	configPath string

	engine *engine.Engine
	base   *project.Config
	// rewatch stops the current watcher so it is recreated for base.
	rewatch context.CancelFunc
}

func (s *session) start(ctx context.Context, base *project.Config) error {
	eng, err := engine.New(assets.Build(*base, s.cmd.flags()), engine.Options{
		Logger:          s.log,
		SassBinary:      s.cmd.SassBinary,
		ModernizrBinary: s.cmd.Modernizr,
		Sink:            s.files,
		Notifier:        s.server,
	})
	if err != nil {
		return err
	}

	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to close previous engine")
		}
	}
	s.engine = eng
	s.base = base

	return s.report(eng.Build(ctx))
}

// report logs build failures, which do not stop a watch session.
func (s *session) report(_ *engine.Result, err error) error {
	if errors.Is(err, engine.ErrBuildFailed) {
		s.log.Error().Msg("Build failed, waiting for changes")
		return nil
	}
	return err
}

// watchOptions watches the context directory of the current base, skipping
// its output directory.
func (s *session) watchOptions() watcher.Options {
	return watcher.Options{
		Root:   s.base.ContextDir(),
		Files:  []string{s.configPath},
		Skip:   []string{s.base.OutputDir()},
		Logger: s.log,
	}
}

// watch runs watchers until ctx is done, recreating the watcher whenever a
// configuration change moves the context or output directory.
func (s *session) watch(ctx context.Context) error {
	for {
		w, err := watcher.New(s.watchOptions())
		if err != nil {
			return err
		}

		wctx, cancel := context.WithCancel(ctx)
		s.rewatch = cancel
		err = w.Run(wctx, func(changed []string) {
			if err := s.onChange(ctx, changed); err != nil {
				s.log.Error().Err(err).Msg("Rebuild failed")
			}
		})
		cancel()

		if err != nil || ctx.Err() != nil {
			return err
		}
		s.log.Info().Str("root", s.base.ContextDir()).Msg("Watching new context")
	}
}

func (s *session) onChange(ctx context.Context, changed []string) error {
	if !slices.Contains(changed, s.configPath) {
		return s.report(s.engine.Rebuild(ctx))
	}

	next, err := s.cmd.load()
	if err != nil {
		return fmt.Errorf("keeping previous configuration: %w", err)
	}

	prev := s.base
	if next.Output.PublicPath != prev.Output.PublicPath {
		s.log.Warn().Msg("Public path changed, restart to serve it")
	}

	s.log.Info().Str("config", s.configPath).Msg("Configuration changed, restarting engine")
	if err := s.start(ctx, next); err != nil {
		return err
	}

	if next.ContextDir() != prev.ContextDir() || next.OutputDir() != prev.OutputDir() {
		s.rewatch()
	}
	return nil
}

func (c *BuildCmd) watch(ctx context.Context, log zerolog.Logger, base *project.Config) error {
	configPath := c.Config
	if !filepath.IsAbs(configPath) {
		configPath = filepath.Join(base.Root, configPath)
	}

	files := engine.NewMemoryFS()
	server := devserver.New(devserver.Options{
		Addr:       c.Listen,
		PublicPath: base.Output.PublicPath,
		Files:      files,
		Logger:     log,
	})

	s := &session{cmd: c, log: log, files: files, server: server, configPath: configPath}
	if err := s.start(ctx, base); err != nil {
		return err
	}
	defer func() { _ = s.engine.Close() }()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(ctx)
	})

	g.Go(func() error {
		return s.watch(ctx)
	})

	return g.Wait()
}
