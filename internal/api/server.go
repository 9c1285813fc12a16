// Package api contains the HTTP handlers for the workflow service
package api

import (
	"context"
	"net/http"
	"time"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/labstack/echo/v4"
)

const (
	serviceName    = "projectflow"
	serviceVersion = "1.0.0"

	defaultLimit = 100
)

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the API server.
type Server struct {
	Workflows *services.WorkflowService
	Instances *services.InstanceService
	Rules     *services.RuleService

	store  Pinger
	logger *logging.Logger
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates a new Server.
func NewServer(workflows *services.WorkflowService, instances *services.InstanceService, rules *services.RuleService, store Pinger, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		Workflows: workflows,
		Instances: instances,
		Rules:     rules,
		store:     store,
		logger:    logger,
	}
}

// HandleHealth reports liveness along with the store status. A failed ping
// answers 503.
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{"store": "ok"},
	}
	code := http.StatusOK
	if s.store != nil {
		if err := s.store.Ping(c.Request().Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}

// page resolves skip/limit, applying the defaults.
func page(p PageParams) (skip, limit int, err error) {
	limit = defaultLimit
	if p.Skip != nil {
		skip = *p.Skip
	}
	if p.Limit != nil {
		limit = *p.Limit
	}
	if skip < 0 {
		return 0, 0, services.Validation("skip must not be negative")
	}
	if limit < 1 {
		return 0, 0, services.Validation("limit must be at least 1")
	}
	return skip, limit, nil
}

// bindBody decodes the request body into dest, answering 400 on malformed
// input.
func bindBody(c echo.Context, dest any) error {
	if err := c.Bind(dest); err != nil {
		if he, ok := err.(*echo.HTTPError); ok {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

func actor(c echo.Context) *int64 {
	return auth.ActorID(c.Request().Context())
}
