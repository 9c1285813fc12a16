package api

import (
	"time"

	"projectflow/backend/internal/logging"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

// NewEcho returns an echo instance with the problem+json error handler and
// the common middleware chain: recovery, request ids, tracing and request
// logging.
func NewEcho(logger *logging.Logger) *echo.Echo {
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(otelecho.Middleware(serviceName))
	e.Use(RequestLogger(logger.Named("http")))
	return e
}

// RequestLogger logs one line per request.
func RequestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"duration", v.Latency.Round(time.Microsecond).String(),
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			logger.Info("request", args...)
			return nil
		},
	})
}

// Mount registers the REST API under /api/v1 behind the given middleware,
// plus the unauthenticated health check.
func (s *Server) Mount(e *echo.Echo, mw ...echo.MiddlewareFunc) *echo.Group {
	e.GET("/health", s.HandleHealth)
	g := e.Group("/api/v1", mw...)
	RegisterHandlers(g, s)
	return g
}
