// Package server serves the built site for local preview and pushes reload
// notifications to connected browsers after every build.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/conneroisu/weave/internal/build"
	"github.com/conneroisu/weave/internal/config"
	"github.com/conneroisu/weave/internal/logging"
)

// Internal routes live under this prefix so they never shadow site files.
const (
	RoutePrefix    = "/_weave"
	RouteWebSocket = RoutePrefix + "/ws"
	RouteScript    = RoutePrefix + "/livereload.js"
	RouteStatus    = RoutePrefix + "/status"
	RouteHealth    = RoutePrefix + "/health"
	RouteMetrics   = "/metrics"
)

// PreviewServer serves the output directory and drives live reload.
type PreviewServer struct {
	config     *config.Config
	builder    *build.Builder
	logger     logging.Logger
	hub        *Hub
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	startedAt  time.Time

	shutdownOnce sync.Once
	mutex        sync.Mutex
}

// New creates a preview server for the builder's output. gatherer backs the
// /metrics endpoint; nil uses the default Prometheus gatherer.
func New(cfg *config.Config, builder *build.Builder, logger logging.Logger, gatherer prometheus.Gatherer) *PreviewServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	logger = logger.WithComponent("server")

	s := &PreviewServer{
		config:    cfg,
		builder:   builder,
		logger:    logger,
		hub:       NewHub(logger),
		gatherer:  gatherer,
		startedAt: time.Now(),
	}
	builder.AddCallback(s.onBuild)

	return s
}

// Hub returns the live-reload hub.
func (s *PreviewServer) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler for the server.
func (s *PreviewServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Handle(RouteWebSocket, s.hub)
	r.Get(RouteScript, handleScript)
	r.Get(RouteHealth, s.handleHealth)
	r.Method(http.MethodGet, RouteStatus, gzhttp.GzipHandler(http.HandlerFunc(s.handleStatus)))
	r.Method(http.MethodGet, RouteMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Method(http.MethodGet, "/*", gzhttp.GzipHandler(s.fileHandler()))
	r.Method(http.MethodHead, "/*", gzhttp.GzipHandler(s.fileHandler()))

	return r
}

// Start runs the hub and serves HTTP until ctx is cancelled or Shutdown is
// called. It returns nil on a clean shutdown.
func (s *PreviewServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Address(), err)
	}

	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *PreviewServer) Serve(ctx context.Context, listener net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.hub.Run(hubCtx)

	s.mutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer done()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "serving", "url", "http://"+listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	return nil
}

// Shutdown gracefully stops the HTTP server. Calling it more than once is
// safe.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.mutex.Lock()
		srv := s.httpServer
		s.mutex.Unlock()
		if srv == nil {
			return
		}
		s.logger.Info(ctx, "shutting down server")
		err = srv.Shutdown(ctx)
	})

	return err
}

// onBuild turns build events into reload messages.
func (s *PreviewServer) onBuild(event build.Event) {
	message := ReloadMessage{Type: "reload", Path: "*"}
	if event.Kind == build.EventFile && event.Path != "" {
		message.Path = reloadPath(event.Path)
	}
	s.hub.Broadcast(message)
}

// reloadPath maps an output-relative file to the URL path a browser shows
// for it. Directory index files map to their directory.
func reloadPath(rel string) string {
	p := path.Clean("/" + filepath.ToSlash(rel))
	if slices.Contains(indexFiles, path.Base(p)) {
		dir := path.Dir(p)
		if dir == "/" {
			return "/"
		}

		return dir + "/"
	}

	return p
}
