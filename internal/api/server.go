// Package api serves sessions and invocation definitions over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/infra/metrics"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

type Server struct {
	sessions *usecase.Sessions
	metrics  *metrics.Metrics
	cfg      domain.ServerConfig
	log      *slog.Logger
	limiter  *limiter
	router   *httprouter.Router
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

func NewServer(sessions *usecase.Sessions, m *metrics.Metrics, cfg domain.ServerConfig, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		metrics:  m,
		cfg:      cfg,
		log:      slog.Default(),
		limiter:  newLimiter(cfg.Rate, cfg.Burst),
		router:   httprouter.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleMethodNotAllowed = true
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})

	s.handle(http.MethodGet, "/api/v1/invocations", s.listInvocations)

	s.handle(http.MethodPost, "/api/v1/sessions", s.createSession)
	s.handle(http.MethodGet, "/api/v1/sessions", s.listSessions)
	s.handle(http.MethodGet, "/api/v1/sessions/:id", s.getSession)

	s.handle(http.MethodPost, "/api/v1/sessions/:id/nodes", s.addNode)
	s.handle(http.MethodPut, "/api/v1/sessions/:id/nodes/:path", s.updateNode)
	s.handle(http.MethodDelete, "/api/v1/sessions/:id/nodes/:path", s.deleteNode)

	s.handle(http.MethodPost, "/api/v1/sessions/:id/edges", s.addEdge)
	s.handle(http.MethodDelete, "/api/v1/sessions/:id/edges/:from_node/:from_field/:to_node/:to_field", s.deleteEdge)

	s.handle(http.MethodPut, "/api/v1/sessions/:id/invoke", s.invoke)

	if s.metrics != nil {
		r.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

// handle registers h behind the rate limiter and records the route
// pattern, not the concrete path, as the metrics label.
func (s *Server) handle(method, route string, h httprouter.Handle) {
	s.router.Handle(method, route, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		if !s.limiter.allow(clientKey(r)) {
			writeJSON(rec, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
		} else {
			h(rec, r, ps)
		}

		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, statusLabel(rec.status)).Inc()
		}
		s.log.Debug("api.request",
			"method", method,
			"route", route,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then shuts down with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api.listen", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if lerr := <-errCh; lerr != nil && !errors.Is(lerr, http.ErrServerClosed) {
		err = errors.Join(err, lerr)
	}
	s.log.Info("api.stopped")
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
