// Package server exposes the chat service over HTTP.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/comigor/twin/internal/chat"
	"github.com/comigor/twin/internal/config"
	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
	"github.com/comigor/twin/internal/logger"
)

// Option adds optional routes to the server.
type Option func(*options)

type options struct {
	metrics http.Handler
	mcp     http.Handler
}

// WithMetrics mounts h at GET /metrics.
func WithMetrics(h http.Handler) Option { return func(o *options) { o.metrics = h } }

// WithMCP mounts h at /mcp for every method.
func WithMCP(h http.Handler) Option { return func(o *options) { o.mcp = h } }

// New creates the echo instance with middleware and routes registered.
func New(svc ChatService, cfg config.ServerConfig, opts ...Option) *echo.Echo {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	// Middleware
	e.Use(requestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	h := NewHandler(svc, cfg.RequestTimeout)
	h.RegisterRoutes(e)

	if o.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(o.metrics))
	}
	if o.mcp != nil {
		e.Any("/mcp", echo.WrapHandler(o.mcp))
	}
	return e
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.L.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, detail := classify(err)
	if code >= http.StatusInternalServerError {
		logger.L.Error("request failed", "path", c.Path(), "error", err)
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Detail: detail})
	}
	if err != nil {
		logger.L.Error("write error response", "error", err)
	}
}

// classify maps an error to its status code and client-facing detail.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}

	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "Message must not be empty"
	case errors.Is(err, history.ErrInvalidSessionID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, llm.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid message format for model"
	case errors.Is(err, llm.ErrAccessDenied):
		return http.StatusForbidden, "Access denied to model"
	}
	return http.StatusInternalServerError, err.Error()
}

// timeout bounds the request context of a single route.
func timeout(d time.Duration) echo.MiddlewareFunc {
	if d <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: d,
		// Keep the handler's error so classify sees the provider failure.
		ErrorHandler: func(err error, _ echo.Context) error { return err },
	})
}
