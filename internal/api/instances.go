package api

import (
	"net/http"

	"projectflow/backend/pkg/models"

	"github.com/labstack/echo/v4"
)

// ListInstances returns instances filtered by project, workflow or stage,
// whichever is given first
// (GET /api/v1/workflows/instances)
func (s *Server) ListInstances(c echo.Context, params ListInstancesParams) error {
	skip, limit, err := page(params.PageParams)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	var instances []*models.WorkflowInstance
	switch {
	case params.ProjectID != nil:
		instances, err = s.Instances.ListByProject(ctx, *params.ProjectID)
	case params.WorkflowID != nil:
		instances, err = s.Instances.ListByWorkflow(ctx, *params.WorkflowID)
	case params.Stage != nil && *params.Stage != "":
		instances, err = s.Instances.ListByStage(ctx, *params.Stage)
	default:
		instances, err = s.Instances.ListAll(ctx)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.Paginate(instances, skip, limit))
}

// CreateInstance binds a workflow to a project
// (POST /api/v1/workflows/instances)
func (s *Server) CreateInstance(c echo.Context) error {
	var in models.InstanceCreate
	if err := bindBody(c, &in); err != nil {
		return err
	}
	inst, err := s.Instances.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inst)
}

// (GET /api/v1/workflows/instances/statistics/overview)
func (s *Server) GetInstanceStatistics(c echo.Context) error {
	stats, err := s.Instances.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// (GET /api/v1/workflows/instances/{id})
func (s *Server) GetInstance(c echo.Context, id int64) error {
	inst, err := s.Instances.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

// UpdateInstance patches fields without recording a transition
// (PUT /api/v1/workflows/instances/{id})
func (s *Server) UpdateInstance(c echo.Context, id int64) error {
	var patch models.InstanceUpdate
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	inst, err := s.Instances.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

// TransitionInstance moves an instance to another stage on behalf of the
// authenticated user
// (POST /api/v1/workflows/instances/{id}/transition)
func (s *Server) TransitionInstance(c echo.Context, id int64) error {
	var req models.StageTransition
	if err := bindBody(c, &req); err != nil {
		return err
	}
	inst, err := s.Instances.Transition(c.Request().Context(), id, req, actor(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}
