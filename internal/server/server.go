package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"trend-data/internal/sink"
)

// APIResponse is the envelope of every JSON answer.
type APIResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// SignalList is the body of GET /api/signals.
type SignalList struct {
	Date    string       `json:"date"`
	Total   int          `json:"total"`
	Signals []sink.Entry `json:"signals"`
}

// Server exposes the published signals and the metrics over HTTP.
type Server struct {
	echo   *echo.Echo
	source sink.Source
	log    *slog.Logger
}

// Option configures Server.
type Option func(*Server)

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.echo.GET("/metrics", echo.WrapHandler(h))
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates the server and registers its routes.
func New(src sink.Source, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, source: src, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogging)

	e.GET("/healthz", s.health)
	g := e.Group("/api")
	g.GET("/signals", s.listSignals)
	g.GET("/signals/:code", s.getSignal)
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown. It blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		s.log.Debug("http request", "method", req.Method, "uri", req.RequestURI,
			"status", c.Response().Status, "latency", time.Since(start))
		return err
	}
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func (s *Server) health(c echo.Context) error {
	return respond(c, http.StatusOK, map[string]string{"status": "ok"})
}

// listSignals answers the latest report. ?signal=N keeps only entries with that code.
func (s *Server) listSignals(c echo.Context) error {
	date, es, err := s.source.Latest(c.Request().Context())
	if err != nil {
		return s.sourceError(c, err)
	}
	if q := c.QueryParam("signal"); q != "" {
		want, err := strconv.Atoi(q)
		if err != nil {
			return respond(c, http.StatusBadRequest, "signal must be an integer")
		}
		filtered := es[:0]
		for _, e := range es {
			if e.Signal.Valid && e.Signal.Code == want {
				filtered = append(filtered, e)
			}
		}
		es = filtered
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
	return respond(c, http.StatusOK, SignalList{Date: date.Format("2006-01-02"), Total: len(es), Signals: es})
}

func (s *Server) getSignal(c echo.Context) error {
	e, err := s.source.Lookup(c.Request().Context(), c.Param("code"))
	if err != nil {
		return s.sourceError(c, err)
	}
	return respond(c, http.StatusOK, e)
}

func (s *Server) sourceError(c echo.Context, err error) error {
	if errors.Is(err, sink.ErrNotFound) {
		return respond(c, http.StatusNotFound, err.Error())
	}
	s.log.Error("signal source error", "error", err)
	return respond(c, http.StatusInternalServerError, "Something went wrong")
}
