// Package server exposes a session over an HTTP JSON API and streams its
// events to WebSocket clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/teranos/strata/canvas"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/interact"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/session"
)

// MetricsNamespace prefixes every metric the server registers.
const MetricsNamespace = "strata"

// Server is the HTTP surface over one session.
type Server struct {
	session        *session.Session
	registry       *prometheus.Registry
	allowedOrigins []string
	logger         *zap.SugaredLogger

	hub         *Hub
	upgrader    websocket.Upgrader
	router      chi.Router
	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRegistry serves reg on /metrics and registers HTTP metrics on it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithAllowedOrigins sets the origin prefixes accepted for CORS and WebSocket upgrades.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithLogger sets the server logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) { s.logger = logger.OrNop(l) }
}

// New creates a server for sess and starts its event hub.
func New(sess *session.Session, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		session: sess,
		logger:  logger.ComponentLogger("server"),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	s.upgrader = newUpgrader(s.allowedOrigins)
	s.hub = newHub(s.view, s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(ctx)
	}()
	s.unsubscribe = sess.Subscribe(s.hub.publish)
	s.router = s.routes(newHTTPMetrics(MetricsNamespace, s.registry))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes(m *httpMetrics) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument(s.logger, m))

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", s.handleCanvas)
			r.Put("/title", s.handleRename)
			r.Post("/save", s.handleSave)
			r.Get("/export", s.handleExport)
		})
		r.Get("/canvases", s.handleListCanvases)

		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", s.handlePlace)
			r.Patch("/{nodeID}", s.handleEdit)
			r.Delete("/{nodeID}", s.handleDelete)
			r.Post("/{nodeID}/select", s.handleSelect)
			r.Post("/{nodeID}/activate", s.handleActivate)
			r.Post("/{nodeID}/open", s.handleOpen)
			r.Post("/{nodeID}/connect", s.handleConnect)
			r.Post("/{nodeID}/status", s.handleAdvanceStatus)
		})
		r.Post("/selection/clear", s.handleClearSelection)
		r.Post("/connection/cancel", s.handleCancelConnection)

		r.Route("/pointer", func(r chi.Router) {
			r.Post("/down", s.handlePointerDown)
			r.Post("/move", s.handlePointerMove)
			r.Post("/up", s.handlePointerUp)
		})

		r.Route("/edges", func(r chi.Router) {
			r.Patch("/{edgeID}", s.handleSetAmount)
			r.Delete("/{edgeID}", s.handleDisconnect)
		})
		r.Put("/edge-kind", s.handleEdgeKind)

		r.Route("/nav", func(r chi.Router) {
			r.Post("/back", s.handleBack)
			r.Post("/forward", s.handleForward)
			r.Post("/goto", s.handleGoTo)
		})

		r.Get("/catalog", s.handleCatalog)
		r.Get("/catalog/{kind}", s.handleCatalogEntry)
		r.Get("/palette", s.handlePalette)
	})
	return r
}

// view builds the active canvas view.
func (s *Server) view() *CanvasView {
	var v *CanvasView
	s.session.View(func(ctl *interact.Controller, stack *canvas.Stack) {
		v = buildView(ctl, stack, s.session.Catalog())
	})
	return v
}

// Start listens on port, or the next free port after it, until Shutdown.
func (s *Server) Start(port int) error {
	actual, err := findAvailablePort(port)
	if err != nil {
		return err
	}
	if actual != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actual,
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", actual),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Infow("Server ready", "url", fmt.Sprintf("http://localhost:%d", actual), "port", actual)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "listen on port %d", actual)
	}
	return nil
}

// Shutdown stops accepting requests, disconnects clients and detaches from
// the session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Initiating server shutdown")

	var err error
	s.mu.Lock()
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
	return errors.Wrap(err, "shutdown http server")
}
