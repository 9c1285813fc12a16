package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// PageParams are the skip/limit query parameters shared by every listing.
type PageParams struct {
	Skip  *int `form:"skip,omitempty" json:"skip,omitempty"`
	Limit *int `form:"limit,omitempty" json:"limit,omitempty"`
}

// ListWorkflowsParams defines parameters for ListWorkflows.
type ListWorkflowsParams struct {
	PageParams
	Type *string `form:"type,omitempty" json:"type,omitempty"`
	// WorkflowType is accepted as an alias of Type.
	WorkflowType *string `form:"workflow_type,omitempty" json:"workflow_type,omitempty"`
}

// ListInstancesParams defines parameters for ListInstances. The filters are
// mutually exclusive; the first one set wins.
type ListInstancesParams struct {
	PageParams
	ProjectID  *int64  `form:"project_id,omitempty" json:"project_id,omitempty"`
	WorkflowID *int64  `form:"workflow_id,omitempty" json:"workflow_id,omitempty"`
	Stage      *string `form:"stage,omitempty" json:"stage,omitempty"`
}

// ListRulesParams defines parameters for ListRules.
type ListRulesParams struct {
	PageParams
	RuleType *string `form:"rule_type,omitempty" json:"rule_type,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /workflows)
	ListWorkflows(ctx echo.Context, params ListWorkflowsParams) error
	// (POST /workflows)
	CreateWorkflow(ctx echo.Context) error
	// (GET /workflows/statistics/overview)
	GetWorkflowStatistics(ctx echo.Context) error
	// (GET /workflows/{id})
	GetWorkflow(ctx echo.Context, id int64) error
	// (PUT /workflows/{id})
	UpdateWorkflow(ctx echo.Context, id int64) error
	// (DELETE /workflows/{id})
	DeleteWorkflow(ctx echo.Context, id int64) error

	// (GET /workflows/instances)
	ListInstances(ctx echo.Context, params ListInstancesParams) error
	// (POST /workflows/instances)
	CreateInstance(ctx echo.Context) error
	// (GET /workflows/instances/statistics/overview)
	GetInstanceStatistics(ctx echo.Context) error
	// (GET /workflows/instances/{id})
	GetInstance(ctx echo.Context, id int64) error
	// (PUT /workflows/instances/{id})
	UpdateInstance(ctx echo.Context, id int64) error
	// (POST /workflows/instances/{id}/transition)
	TransitionInstance(ctx echo.Context, id int64) error

	// (GET /workflows/rules)
	ListRules(ctx echo.Context, params ListRulesParams) error
	// (POST /workflows/rules)
	CreateRule(ctx echo.Context) error
	// (POST /workflows/rules/evaluate)
	EvaluateRules(ctx echo.Context) error
	// (GET /workflows/rules/{id})
	GetRule(ctx echo.Context, id int64) error
	// (PUT /workflows/rules/{id})
	UpdateRule(ctx echo.Context, id int64) error
	// (DELETE /workflows/rules/{id})
	DeleteRule(ctx echo.Context, id int64) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

func bindID(ctx echo.Context) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter id: %s", err))
	}
	return id, nil
}

func bindQuery(ctx echo.Context, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, ctx.QueryParams(), dest); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter %s: %s", name, err))
	}
	return nil
}

func bindPage(ctx echo.Context, p *PageParams) error {
	if err := bindQuery(ctx, "skip", &p.Skip); err != nil {
		return err
	}
	return bindQuery(ctx, "limit", &p.Limit)
}

// ListWorkflows converts echo context to params.
func (w *ServerInterfaceWrapper) ListWorkflows(ctx echo.Context) error {
	var params ListWorkflowsParams
	if err := bindPage(ctx, &params.PageParams); err != nil {
		return err
	}
	if err := bindQuery(ctx, "type", &params.Type); err != nil {
		return err
	}
	if err := bindQuery(ctx, "workflow_type", &params.WorkflowType); err != nil {
		return err
	}
	return w.Handler.ListWorkflows(ctx, params)
}

func (w *ServerInterfaceWrapper) CreateWorkflow(ctx echo.Context) error {
	return w.Handler.CreateWorkflow(ctx)
}

func (w *ServerInterfaceWrapper) GetWorkflowStatistics(ctx echo.Context) error {
	return w.Handler.GetWorkflowStatistics(ctx)
}

func (w *ServerInterfaceWrapper) GetWorkflow(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetWorkflow(ctx, id)
}

func (w *ServerInterfaceWrapper) UpdateWorkflow(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.UpdateWorkflow(ctx, id)
}

func (w *ServerInterfaceWrapper) DeleteWorkflow(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.DeleteWorkflow(ctx, id)
}

// ListInstances converts echo context to params.
func (w *ServerInterfaceWrapper) ListInstances(ctx echo.Context) error {
	var params ListInstancesParams
	if err := bindPage(ctx, &params.PageParams); err != nil {
		return err
	}
	if err := bindQuery(ctx, "project_id", &params.ProjectID); err != nil {
		return err
	}
	if err := bindQuery(ctx, "workflow_id", &params.WorkflowID); err != nil {
		return err
	}
	if err := bindQuery(ctx, "stage", &params.Stage); err != nil {
		return err
	}
	return w.Handler.ListInstances(ctx, params)
}

func (w *ServerInterfaceWrapper) CreateInstance(ctx echo.Context) error {
	return w.Handler.CreateInstance(ctx)
}

func (w *ServerInterfaceWrapper) GetInstanceStatistics(ctx echo.Context) error {
	return w.Handler.GetInstanceStatistics(ctx)
}

func (w *ServerInterfaceWrapper) GetInstance(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetInstance(ctx, id)
}

func (w *ServerInterfaceWrapper) UpdateInstance(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.UpdateInstance(ctx, id)
}

func (w *ServerInterfaceWrapper) TransitionInstance(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.TransitionInstance(ctx, id)
}

// ListRules converts echo context to params.
func (w *ServerInterfaceWrapper) ListRules(ctx echo.Context) error {
	var params ListRulesParams
	if err := bindPage(ctx, &params.PageParams); err != nil {
		return err
	}
	if err := bindQuery(ctx, "rule_type", &params.RuleType); err != nil {
		return err
	}
	return w.Handler.ListRules(ctx, params)
}

func (w *ServerInterfaceWrapper) CreateRule(ctx echo.Context) error {
	return w.Handler.CreateRule(ctx)
}

func (w *ServerInterfaceWrapper) EvaluateRules(ctx echo.Context) error {
	return w.Handler.EvaluateRules(ctx)
}

func (w *ServerInterfaceWrapper) GetRule(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetRule(ctx, id)
}

func (w *ServerInterfaceWrapper) UpdateRule(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.UpdateRule(ctx, id)
}

func (w *ServerInterfaceWrapper) DeleteRule(ctx echo.Context) error {
	id, err := bindID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.DeleteRule(ctx, id)
}

// EchoRouter is implemented by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter. Static
// segments take precedence over {id} in echo's router, so
// /workflows/instances never reaches GetWorkflow.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.GET("/workflows", wrapper.ListWorkflows)
	router.POST("/workflows", wrapper.CreateWorkflow)
	router.GET("/workflows/statistics/overview", wrapper.GetWorkflowStatistics)

	router.GET("/workflows/instances", wrapper.ListInstances)
	router.POST("/workflows/instances", wrapper.CreateInstance)
	router.GET("/workflows/instances/statistics/overview", wrapper.GetInstanceStatistics)
	router.GET("/workflows/instances/:id", wrapper.GetInstance)
	router.PUT("/workflows/instances/:id", wrapper.UpdateInstance)
	router.POST("/workflows/instances/:id/transition", wrapper.TransitionInstance)

	router.GET("/workflows/rules", wrapper.ListRules)
	router.POST("/workflows/rules", wrapper.CreateRule)
	router.POST("/workflows/rules/evaluate", wrapper.EvaluateRules)
	router.GET("/workflows/rules/:id", wrapper.GetRule)
	router.PUT("/workflows/rules/:id", wrapper.UpdateRule)
	router.DELETE("/workflows/rules/:id", wrapper.DeleteRule)

	router.GET("/workflows/:id", wrapper.GetWorkflow)
	router.PUT("/workflows/:id", wrapper.UpdateWorkflow)
	router.DELETE("/workflows/:id", wrapper.DeleteWorkflow)
}
