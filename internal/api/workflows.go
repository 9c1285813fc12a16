package api

import (
	"net/http"

	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/labstack/echo/v4"
)

// ListWorkflows returns active workflows, optionally of one type
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context, params ListWorkflowsParams) error {
	skip, limit, err := page(params.PageParams)
	if err != nil {
		return err
	}

	raw := params.Type
	if raw == nil {
		raw = params.WorkflowType
	}
	var typ *models.WorkflowType
	if raw != nil && *raw != "" {
		t, err := services.ParseWorkflowType(*raw)
		if err != nil {
			return err
		}
		typ = &t
	}

	workflows, err := s.Workflows.List(c.Request().Context(), typ, true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.Paginate(workflows, skip, limit))
}

// CreateWorkflow defines a new workflow
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var in models.WorkflowCreate
	if err := bindBody(c, &in); err != nil {
		return err
	}
	workflow, err := s.Workflows.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, workflow)
}

// (GET /api/v1/workflows/statistics/overview)
func (s *Server) GetWorkflowStatistics(c echo.Context) error {
	stats, err := s.Workflows.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context, id int64) error {
	workflow, err := s.Workflows.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflow)
}

// UpdateWorkflow applies a partial patch
// (PUT /api/v1/workflows/{id})
func (s *Server) UpdateWorkflow(c echo.Context, id int64) error {
	var patch models.WorkflowUpdate
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	workflow, err := s.Workflows.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflow)
}

// DeleteWorkflow removes the definition; instances are left in place
// (DELETE /api/v1/workflows/{id})
func (s *Server) DeleteWorkflow(c echo.Context, id int64) error {
	if err := s.Workflows.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
