package services

import (
	"context"

	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

// RuleService manages business rules and evaluates them against a context.
type RuleService struct {
	rules   repository.RuleStore
	metrics *Metrics
	logger  *logging.Logger
}

// NewRuleService creates a new RuleService.
func NewRuleService(rules repository.RuleStore, metrics *Metrics, logger *logging.Logger) *RuleService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RuleService{rules: rules, metrics: metrics, logger: logger.Named("rules")}
}

func (s *RuleService) Create(ctx context.Context, in models.RuleCreate) (*models.BusinessRule, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.RuleType.Valid() {
		return nil, Validation("unsupported rule type %q", in.RuleType)
	}
	if in.Conditions == nil {
		return nil, Validation("conditions must be a mapping")
	}
	if in.Actions == nil {
		return nil, Validation("actions must be a mapping")
	}

	r := &models.BusinessRule{
		Name:        name,
		Description: in.Description,
		RuleType:    in.RuleType,
		Conditions:  in.Conditions.Clone(),
		Actions:     in.Actions.Clone(),
		IsActive:    true,
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if err := s.rules.CreateRule(ctx, r); err != nil {
		return nil, storeErr("business_rule", err)
	}
	s.logger.Info("business rule created", "rule_id", r.ID, "rule_type", r.RuleType)
	return r, nil
}

func (s *RuleService) Get(ctx context.Context, id int64) (*models.BusinessRule, error) {
	r, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, storeErr("business_rule", err)
	}
	return r, nil
}

// List returns rules newest first. As with workflows, a type filter only
// returns active rules.
func (s *RuleService) List(ctx context.Context, typ *models.RuleType, activeOnly bool) ([]*models.BusinessRule, error) {
	if typ != nil {
		if !typ.Valid() {
			return nil, Validation("unsupported rule type %q", *typ)
		}
		activeOnly = true
	}
	list, err := s.rules.ListRules(ctx, repository.RuleFilter{Type: typ, ActiveOnly: activeOnly})
	if err != nil {
		return nil, storeErr("business_rule", err)
	}
	return list, nil
}

func (s *RuleService) Update(ctx context.Context, id int64, patch models.RuleUpdate) (*models.BusinessRule, error) {
	r, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, storeErr("business_rule", err)
	}

	if patch.Name != nil {
		name, err := cleanName(*patch.Name)
		if err != nil {
			return nil, err
		}
		r.Name = name
	}
	if patch.Description != nil {
		r.Description = patch.Description
	}
	if patch.RuleType != nil {
		if !patch.RuleType.Valid() {
			return nil, Validation("unsupported rule type %q", *patch.RuleType)
		}
		r.RuleType = *patch.RuleType
	}
	if patch.Conditions != nil {
		r.Conditions = patch.Conditions.Clone()
	}
	if patch.Actions != nil {
		r.Actions = patch.Actions.Clone()
	}
	if patch.IsActive != nil {
		r.IsActive = *patch.IsActive
	}

	if err := s.rules.UpdateRule(ctx, r); err != nil {
		return nil, storeErr("business_rule", err)
	}
	return r, nil
}

func (s *RuleService) Delete(ctx context.Context, id int64) error {
	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return storeErr("business_rule", err)
	}
	return nil
}

// Evaluate returns every active rule whose conditions all hold in evalCtx,
// in rule listing order. The actions are returned, not executed.
func (s *RuleService) Evaluate(ctx context.Context, evalCtx models.Map) ([]models.TriggeredRule, error) {
	active, err := s.rules.ListRules(ctx, repository.RuleFilter{ActiveOnly: true})
	if err != nil {
		return nil, storeErr("business_rule", err)
	}

	triggered := []models.TriggeredRule{}
	for _, r := range active {
		if !r.IsActive || !r.Conditions.Matches(evalCtx) {
			continue
		}
		triggered = append(triggered, models.TriggeredRule{
			RuleID:   r.ID,
			RuleName: r.Name,
			RuleType: r.RuleType,
			Actions:  r.Actions.Clone(),
		})
	}

	s.metrics.recordEvaluation(ctx, triggered)
	s.logger.Debug("rules evaluated", "active", len(active), "triggered", len(triggered))
	return triggered, nil
}
