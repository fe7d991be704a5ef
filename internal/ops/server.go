package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultShutdownTimeout = 5 * time.Second

// StatusResponse is the liveness payload served on / and /api/webhook.
type StatusResponse struct {
	Status string `json:"status"`
}

// Server serves liveness, health and metrics endpoints.
type Server struct {
	addr            string
	logger          *slog.Logger
	shutdownTimeout time.Duration
	echo            *echo.Echo
}

// ServerOption mutates ops server configuration.
type ServerOption func(*Server)

// WithLogger configures request and lifecycle logging.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown after the run context ends.
func WithShutdownTimeout(timeout time.Duration) ServerOption {
	return func(server *Server) {
		if timeout > 0 {
			server.shutdownTimeout = timeout
		}
	}
}

// NewServer builds an ops server listening on addr.
func NewServer(addr string, metrics *Metrics, options ...ServerOption) (*Server, error) {
	if addr == "" {
		return nil, fmt.Errorf("new ops server: empty listen address")
	}
	if metrics == nil {
		return nil, fmt.Errorf("new ops server: nil metrics")
	}

	server := &Server{
		addr:            addr,
		logger:          slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, option := range options {
		option(server)
	}
	server.echo = server.routes(metrics)

	return server, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes(metrics *Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				s.logger.ErrorContext(c.Request().Context(), "ops request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.DebugContext(c.Request().Context(), "ops request completed", attrs...)
			return nil
		},
	}))

	running := func(c echo.Context) error {
		return c.JSON(http.StatusOK, StatusResponse{Status: "Bot is running"})
	}
	e.GET("/", running)
	e.GET("/api/webhook", running)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	return e
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ops server listen %s: %w", s.addr, err)
	}

	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	s.echo.Listener = listener

	serveErr := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "ops server listening", "addr", listener.Addr().String())
		serveErr <- s.echo.Start("")
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ops server serve: %w", err)
	}

	return nil
}
