// Package devserver serves watch builds from memory and pushes rebuilds to
// hot clients.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetpack/internal/engine"
	"github.com/wolfeidau/assetpack/internal/hotclient"
)

const (
	defaultPingInterval = 10 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Files is the in-memory output of the engine.
type Files interface {
	ReadFile(name string) ([]byte, bool)
}

type Options struct {
	Addr       string
	PublicPath string
	Files      Files
	Logger     zerolog.Logger
	// PingInterval defaults to 10 seconds.
	PingInterval time.Duration
}

// Server is the watch mode HTTP server. It implements engine.Notifier.
type Server struct {
	opts   Options
	prefix string
	hub    *Hub
	router chi.Router
}

func New(opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}

	s := &Server{
		opts:   opts,
		prefix: publicPrefix(opts.PublicPath),
		hub:    NewHub(opts.Logger, opts.PingInterval),
	}
	s.router = s.routes()
	return s
}

// publicPrefix returns the URL path of publicPath, which may be a full URL.
func publicPrefix(publicPath string) string {
	p := publicPath
	if u, err := url.Parse(publicPath); err == nil && u.Host != "" {
		p = u.Path
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(s.opts.Logger))

	r.Get(hotclient.SocketPath, s.hub.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodHead},
		}).Handler)
		r.Use(func(next http.Handler) http.Handler {
			return gzhttp.GzipHandler(next)
		})
		r.Get(s.prefix+"*", s.serveFile)
		r.Head(s.prefix+"*", s.serveFile)
	})

	return r
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, s.prefix)
	data, ok := s.opts.Files.ReadFile(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, path.Base(name), time.Time{}, bytes.NewReader(data))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the hot client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Notify tells connected clients about a rebuild.
func (s *Server) Notify(u engine.Update) {
	if len(u.Errors) > 0 {
		s.hub.Broadcast(Message{Type: MessageErrors, Errors: u.Errors})
		return
	}
	s.hub.Broadcast(Message{
		Type:       MessageBuilt,
		Hash:       u.Hash,
		Files:      u.Files,
		StylesOnly: u.StylesOnly,
	})
}

// Serve listens on Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: time.Second,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.opts.Logger.Info().
		Str("addr", ln.Addr().String()).
		Str("public_path", s.prefix).
		Msg("Dev server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dev server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
