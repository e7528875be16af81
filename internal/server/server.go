// Package server exposes firstrecord operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matsen/firstrecord/internal/app"
	"github.com/matsen/firstrecord/internal/literature"
)

const (
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// multipartOverhead is the slack allowed on top of the upload ceiling for
	// multipart framing and headers.
	multipartOverhead = 64 << 10

	// jsonBodyLimit caps JSON request bodies on the intake routes.
	jsonBodyLimit = 64 << 10
)

// Server is the HTTP front end over an App.
type Server struct {
	app  *app.App
	echo *echo.Echo
	log  *slog.Logger
}

// requestValidator adapts the shared struct validator to echo.
type requestValidator struct{}

func (requestValidator) Validate(i any) error {
	return literature.ValidateStruct(i)
}

// New builds the echo instance and registers every route.
func New(a *app.App) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = requestValidator{}

	s := &Server{app: a, echo: e, log: a.Logger}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/healthz" || p == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				s.log.Warn("request_failed", append(attrs, "error", v.Error.Error())...)
				return nil
			}
			s.log.Info("request_completed", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/literature/collect", s.collect)
	api.GET("/literature/collections/:id", s.getCollection)
	api.GET("/taxa/resolve", s.resolve)

	api.POST("/pdfs", s.upload, bodyLimit(s.app.Intake.MaxBytes()+multipartOverhead))
	api.POST("/pdfs/fetch", s.fetch, bodyLimit(jsonBodyLimit))
	api.GET("/pdfs", s.listPDFs)
	api.POST("/pdfs/:id/analyze", s.analyze)
	api.GET("/pdfs/:id/analysis", s.getAnalysis)
	api.POST("/analysis/batch", s.analyzeAll)

	api.GET("/quota", s.quotaStatus)
	api.POST("/quota/reset", s.resetQuota)
}

// bodyLimit rejects request bodies over n bytes with 413 before they are
// parsed or spooled to disk.
func bodyLimit(n int64) echo.MiddlewareFunc {
	return middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: fmt.Sprintf("%dB", n),
	})
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server_started", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		s.log.Info("server_stopping")
		return s.echo.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
