package dev

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/internal/native"
	"github.com/vango-dev/hotshim/pkg/handoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Logger receives server output.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics is the prometheus registry served on /metrics.
	// Default: a fresh registry with the Go and process collectors.
	Metrics *prometheus.Registry

	// Catalog resolves native module factories.
	// Default: native.NewCatalog()
	Catalog *native.Catalog

	// Handoff carries module registrations across rebuilds.
	// Default: a FileStore under dev.handoffDir when set, else in memory.
	Handoff handoff.Store

	// Tracer records a span per HTTP request.
	// Default: otel.Tracer for this package.
	Tracer trace.Tracer

	// OnBuildComplete is called after every build.
	OnBuildComplete func(result BuildResult)

	// OnReload is called when browsers are told to reload.
	OnReload func(clients int)
}

// Server is the development server.
type Server struct {
	config  *config.Config
	options ServerOptions
	logger  *slog.Logger

	bundler      *Bundler
	watcher      *Watcher
	reloadServer *ReloadServer
	modules      *ModuleHost
	metrics      *devMetrics
	gatherer     prometheus.Gatherer
	tracer       trace.Tracer
	router       chi.Router

	changeCh   chan []Change
	httpServer *http.Server
	listenAddr string

	mu        sync.Mutex
	running   bool
	hotReload bool
}

// NewServer creates a new development server.
func NewServer(options ServerOptions) (*Server, error) {
	cfg := options.Config
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := options.Metrics
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	store := options.Handoff
	if store == nil && cfg.Dev.HandoffDir != "" {
		fs := handoff.NewFileStore(cfg.HandoffPath())
		logger.Info("module registrations persist across restarts", "dir", fs.Dir())
		store = fs
	}

	tracer := options.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/vango-dev/hotshim/internal/dev")
	}

	s := &Server{
		config:    cfg,
		options:   options,
		logger:    logger,
		gatherer:  reg,
		tracer:    tracer,
		hotReload: cfg.Dev.HotReload,
	}

	s.bundler = NewBundler(BundlerConfig{
		ProjectPath: cfg.Dir(),
		Entry:       cfg.EntryPaths(),
		Bundle:      cfg.Bundle,
		Outdir:      cfg.OutdirPath(),
		PublicPath:  cfg.PublicPath,
		Sourcemap:   true,
	})

	s.watcher = NewWatcher(WatcherConfig{
		Paths:  collectWatchPaths(cfg.WatchPaths(), cfg.EntryPaths(), cfg.IndexPath()),
		Ignore: append(append([]string(nil), DefaultIgnore...), cfg.Dev.Ignore...),
	})

	if s.hotReload {
		s.reloadServer = NewReloadServer()
	}

	s.metrics = newDevMetrics(reg, func() float64 {
		if s.reloadServer == nil {
			return 0
		}
		return float64(s.reloadServer.ClientCount())
	})

	s.modules = NewModuleHost(ModuleHostConfig{
		Modules:    cfg.Modules,
		Catalog:    options.Catalog,
		AppName:    cfg.AppName,
		Mode:       cfg.Mode(),
		Delay:      cfg.InitDelay(),
		Handoff:    store,
		Logger:     logger,
		Registerer: reg,
		OnMissedInit: func(identity string) {
			s.metrics.recordMissedInit(identity)
		},
	})

	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler of the dev server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Modules returns the module host.
func (s *Server) Modules() *ModuleHost {
	return s.modules
}

// Bundler returns the bundler.
func (s *Server) Bundler() *Bundler {
	return s.bundler
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Prepare runs the initial build and registers the native modules. A
// failed build is reported but does not stop the server.
func (s *Server) Prepare(ctx context.Context) (BuildResult, error) {
	result := s.build(ctx)
	if err := s.modules.Start(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Start prepares the server, listens and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if _, err := s.Prepare(ctx); err != nil {
		s.Stop()
		return err
	}

	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		s.Stop()
		return errors.New("H200").WithDetail("listen on " + s.config.Address()).Wrap(err)
	}

	s.changeCh = make(chan []Change, 16)
	s.watcher.OnChange(func(changes []Change) {
		select {
		case s.changeCh <- changes:
		default:
			s.logger.Debug("change batch dropped", "changes", len(changes))
		}
	})
	go s.watcher.Start(ctx)
	go s.processChanges(ctx)

	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("server running", "url", "http://"+ln.Addr().String(), "hotReload", s.hotReload)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		if err != nil {
			return errors.New("H200").Wrap(err)
		}
		return nil
	}
}

// Stop stops the development server. It is safe to call on a server that
// was only prepared.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.watcher.Stop()
	s.bundler.Stop()
	if err := s.modules.Suspend(); err != nil {
		s.logger.Warn("native module state not saved", "error", err)
	}
	if s.reloadServer != nil {
		s.reloadServer.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(traceRequests(s.tracer, skipUntraced))
	r.Use(s.requestLogger)

	r.Get("/", s.handleIndex)
	r.Route("/_hotshim", func(r chi.Router) {
		if s.reloadEnabled() {
			r.Get("/reload", s.reloadServer.HandleWebSocket)
		}
		r.Get("/modules", s.handleModules)
		r.Get("/modules/{key}", s.handleModule)
		r.Get("/shims", s.handleShims)
		r.Post("/init", s.handleInit)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	static := s.bundler.Middleware(http.FileServer(http.Dir(s.config.OutdirPath())))
	r.NotFound(static.ServeHTTP)

	return r
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// processChanges serializes change handling and coalesces bursts.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.changeCh:
			changes := append([]Change(nil), batch...)
			draining := true
			for draining {
				select {
				case next := <-s.changeCh:
					changes = append(changes, next...)
				default:
					draining = false
				}
			}
			s.handleChanges(ctx, changes)
		}
	}
}

// handleChanges handles a batch of file changes. A script change wins over
// a stylesheet change, which wins over anything else.
func (s *Server) handleChanges(ctx context.Context, changes []Change) {
	if len(changes) == 0 {
		return
	}

	var script, css, other bool
	var cssPath string
	for _, change := range changes {
		s.logger.Info("changed", "path", change.Path, "type", change.Type.String(), "removed", change.Removed)
		switch change.Type {
		case ChangeScript:
			script = true
		case ChangeCSS:
			css = true
			if cssPath == "" {
				cssPath = change.Path
			}
		default:
			other = true
		}
	}

	switch {
	case script:
		s.handleScriptChange(ctx)
	case css:
		s.notify(ReloadTypeCSS, func() int { return s.reloadServer.NotifyCSS(cssPath) })
	case other:
		s.notifyReload()
	}
}

func (s *Server) handleScriptChange(ctx context.Context) {
	result := s.build(ctx)
	if !result.Success {
		s.notify(ReloadTypeError, func() int { return s.reloadServer.NotifyError(result.Output) })
		return
	}

	if err := s.modules.Cycle(); err != nil {
		s.logger.Warn("native module replacement incomplete", "error", err)
	}
	s.metrics.recordCycle()

	s.notify(ReloadTypeClear, func() int { return s.reloadServer.ClearError() })
	s.notifyReload()
}

// build runs the bundler and reports the result.
func (s *Server) build(ctx context.Context) BuildResult {
	s.logger.Info("building", "entry", s.config.Entry)
	result := s.bundler.Build(ctx)
	s.metrics.recordBuild(result)

	if result.Success {
		s.logger.Info("built",
			"duration", result.Duration.Round(time.Millisecond),
			"files", len(result.Files),
			"bytes", result.Stats.OutputBytes,
			"warnings", result.Warnings,
		)
	} else {
		msg := result.Error.Error()
		var herr *errors.Error
		if stderrors.As(result.Error, &herr) {
			msg = herr.FormatCompact()
		}
		s.logger.Error("build failed", "error", msg)
		errors.Print(os.Stderr, result.Error)
	}

	if s.options.OnBuildComplete != nil {
		s.options.OnBuildComplete(result)
	}
	return result
}

func (s *Server) reloadEnabled() bool {
	return s.hotReload && s.reloadServer != nil
}

// notify broadcasts through send when live reload is enabled.
func (s *Server) notify(kind ReloadMessageType, send func() int) int {
	if !s.reloadEnabled() {
		return 0
	}
	delivered := send()
	s.metrics.recordReload(kind)
	return delivered
}

func (s *Server) notifyReload() {
	if !s.reloadEnabled() {
		s.logger.Info("rebuild complete; live reload disabled")
		return
	}

	clients := s.notify(ReloadTypeFull, func() int {
		return s.reloadServer.NotifyReload(s.modules.Cycles())
	})
	if s.options.OnReload != nil {
		s.options.OnReload(clients)
	}
	s.logger.Info("reloaded browsers", "clients", clients)
}

// bundleURL is where the first entry point's output is served.
func (s *Server) bundleURL() string {
	return path.Join("/", s.config.PublicPath, s.config.Bundle)
}
