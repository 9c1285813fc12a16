package api

import (
	"net/http"

	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/labstack/echo/v4"
)

// ListRules returns active business rules, optionally of one type
// (GET /api/v1/workflows/rules)
func (s *Server) ListRules(c echo.Context, params ListRulesParams) error {
	skip, limit, err := page(params.PageParams)
	if err != nil {
		return err
	}

	var typ *models.RuleType
	if params.RuleType != nil && *params.RuleType != "" {
		t, err := services.ParseRuleType(*params.RuleType)
		if err != nil {
			return err
		}
		typ = &t
	}

	rules, err := s.Rules.List(c.Request().Context(), typ, true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.Paginate(rules, skip, limit))
}

// (POST /api/v1/workflows/rules)
func (s *Server) CreateRule(c echo.Context) error {
	var in models.RuleCreate
	if err := bindBody(c, &in); err != nil {
		return err
	}
	rule, err := s.Rules.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

// EvaluateRules matches the request body against every active rule. The
// actions of matching rules are returned, not executed.
// (POST /api/v1/workflows/rules/evaluate)
func (s *Server) EvaluateRules(c echo.Context) error {
	var evalCtx models.Map
	if err := bindBody(c, &evalCtx); err != nil {
		return err
	}
	triggered, err := s.Rules.Evaluate(c.Request().Context(), evalCtx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.NewRuleEvaluation(triggered))
}

// (GET /api/v1/workflows/rules/{id})
func (s *Server) GetRule(c echo.Context, id int64) error {
	rule, err := s.Rules.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// (PUT /api/v1/workflows/rules/{id})
func (s *Server) UpdateRule(c echo.Context, id int64) error {
	var patch models.RuleUpdate
	if err := bindBody(c, &patch); err != nil {
		return err
	}
	rule, err := s.Rules.Update(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// (DELETE /api/v1/workflows/rules/{id})
func (s *Server) DeleteRule(c echo.Context, id int64) error {
	if err := s.Rules.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
