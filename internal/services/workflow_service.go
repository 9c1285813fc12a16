package services

import (
	"context"

	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

const recentWorkflowLimit = 5

// WorkflowService is the workflow definition registry.
type WorkflowService struct {
	workflows repository.WorkflowStore
	instances repository.InstanceStore
	logger    *logging.Logger
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(workflows repository.WorkflowStore, instances repository.InstanceStore, logger *logging.Logger) *WorkflowService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkflowService{
		workflows: workflows,
		instances: instances,
		logger:    logger.Named("workflows"),
	}
}

// Create validates and persists a new workflow definition.
func (s *WorkflowService) Create(ctx context.Context, in models.WorkflowCreate) (*models.Workflow, error) {
	name, err := cleanName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, Validation("unsupported workflow type %q", in.Type)
	}
	if err := validateStages(in.Stages); err != nil {
		return nil, err
	}

	w := &models.Workflow{
		Name:        name,
		Description: in.Description,
		Type:        in.Type,
		Stages:      in.Stages.Clone(),
		Rules:       in.Rules.Clone(),
		IsActive:    true,
	}
	if w.Rules == nil {
		w.Rules = models.Map{}
	}
	if in.IsActive != nil {
		w.IsActive = *in.IsActive
	}

	if err := s.workflows.CreateWorkflow(ctx, w); err != nil {
		return nil, storeErr("workflow", err)
	}
	s.logger.Info("workflow created", "workflow_id", w.ID, "type", w.Type, "stages", len(w.Stages))
	return w, nil
}

// Get returns a workflow by ID, active or not.
func (s *WorkflowService) Get(ctx context.Context, id int64) (*models.Workflow, error) {
	w, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, storeErr("workflow", err)
	}
	return w, nil
}

// List returns workflows newest first. Filtering by type always restricts
// the result to active workflows.
func (s *WorkflowService) List(ctx context.Context, typ *models.WorkflowType, activeOnly bool) ([]*models.Workflow, error) {
	if typ != nil {
		if !typ.Valid() {
			return nil, Validation("unsupported workflow type %q", *typ)
		}
		activeOnly = true
	}
	list, err := s.workflows.ListWorkflows(ctx, repository.WorkflowFilter{Type: typ, ActiveOnly: activeOnly})
	if err != nil {
		return nil, storeErr("workflow", err)
	}
	return list, nil
}

// Update applies the supplied fields only.
func (s *WorkflowService) Update(ctx context.Context, id int64, patch models.WorkflowUpdate) (*models.Workflow, error) {
	w, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, storeErr("workflow", err)
	}

	if patch.Name != nil {
		name, err := cleanName(*patch.Name)
		if err != nil {
			return nil, err
		}
		w.Name = name
	}
	if patch.Description != nil {
		w.Description = patch.Description
	}
	if patch.Type != nil {
		if !patch.Type.Valid() {
			return nil, Validation("unsupported workflow type %q", *patch.Type)
		}
		w.Type = *patch.Type
	}
	if patch.Stages != nil {
		if err := validateStages(patch.Stages); err != nil {
			return nil, err
		}
		w.Stages = patch.Stages.Clone()
	}
	if patch.Rules != nil {
		w.Rules = patch.Rules.Clone()
	}
	if patch.IsActive != nil {
		w.IsActive = *patch.IsActive
	}

	if err := s.workflows.UpdateWorkflow(ctx, w); err != nil {
		return nil, storeErr("workflow", err)
	}
	return w, nil
}

// Delete removes a workflow. Its instances are left in place.
func (s *WorkflowService) Delete(ctx context.Context, id int64) error {
	if err := s.workflows.DeleteWorkflow(ctx, id); err != nil {
		return storeErr("workflow", err)
	}
	s.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}

// Statistics summarises the registry. Completion and per-stage figures are
// taken from live instances.
func (s *WorkflowService) Statistics(ctx context.Context) (*models.WorkflowStatistics, error) {
	wc, err := s.workflows.CountWorkflows(ctx)
	if err != nil {
		return nil, storeErr("workflow", err)
	}
	ic, err := s.instances.CountInstances(ctx)
	if err != nil {
		return nil, storeErr("workflow_instance", err)
	}
	recent, err := s.workflows.ListWorkflows(ctx, repository.WorkflowFilter{ActiveOnly: true, Limit: recentWorkflowLimit})
	if err != nil {
		return nil, storeErr("workflow", err)
	}

	stats := &models.WorkflowStatistics{
		TotalWorkflows:     wc.Total,
		ActiveWorkflows:    wc.Active,
		CompletedWorkflows: ic.Completed,
		WorkflowsByType:    make(map[string]int, len(models.WorkflowTypes)),
		WorkflowsByStage:   make(map[string]int, len(ic.ByStage)),
		RecentWorkflows:    recent,
	}
	for _, t := range models.WorkflowTypes {
		stats.WorkflowsByType[string(t)] = wc.ByType[t]
	}
	for stage, n := range ic.ByStage {
		stats.WorkflowsByStage[stage] = n
	}
	return stats, nil
}
