package dev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snowball-c3/c3-scripts/internal/logging"
	"github.com/snowball-c3/c3-scripts/internal/reload"
)

// HandlerOptions configures NewHandler.
type HandlerOptions struct {
	// Dir is served as static files.
	Dir string
	// Reload handles websocket upgrade requests on any path.
	Reload http.Handler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewHandler builds the development router. Every response allows any
// origin and disables caching so the host application always loads the
// latest bundle.
func NewHandler(opts HandlerOptions) http.Handler {
	logger := logging.OrDefault(opts.Logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.SetHeader("Access-Control-Allow-Origin", "*"))
	r.Use(requestLogger(logger))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	static := http.FileServer(http.Dir(opts.Dir))

	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if opts.Reload != nil && reload.IsUpgrade(req) {
			opts.Reload.ServeHTTP(w, req)
			return
		}

		static.ServeHTTP(w, req)
	}))

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, req)

			logger.Debug("http request",
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// HTTPServer is the production Server.
type HTTPServer struct {
	srv    *http.Server
	logger *slog.Logger

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

var _ Server = (*HTTPServer)(nil)

// NewHTTPServer creates a server for handler on addr, e.g. ":9090".
func NewHTTPServer(addr string, handler http.Handler, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.OrDefault(logger),
	}
}

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("dev server stopped", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addr
}

// Shutdown stops accepting connections and waits for active requests.
// Hijacked websocket connections are not waited for.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return err
}
