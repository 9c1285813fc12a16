package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

// InstanceService is the workflow instance state machine.
//
// Every instance write is a compare-and-swap on the instance version. A lost
// race re-reads the instance and re-applies the change, up to
// EngineConfig.TransitionRetries extra attempts, before failing with a
// conflict.
type InstanceService struct {
	store    repository.Repository
	engine   config.EngineConfig
	notifier Notifier
	metrics  *Metrics
	logger   *logging.Logger
	now      func() time.Time

	notifyMu      sync.Mutex
	closed        bool
	notifications sync.WaitGroup
}

// NewInstanceService creates a new InstanceService. A nil notifier disables
// notifications and nil metrics record nothing.
func NewInstanceService(store repository.Repository, engine config.EngineConfig, notifier Notifier, metrics *Metrics, logger *logging.Logger) *InstanceService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &InstanceService{
		store:    store,
		engine:   engine,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.Named("instances"),
		now:      time.Now,
	}
}

// Create starts a workflow instance for a project.
func (s *InstanceService) Create(ctx context.Context, in models.InstanceCreate) (*models.WorkflowInstance, error) {
	workflow, err := s.store.GetWorkflow(ctx, in.WorkflowID)
	if err != nil {
		return nil, storeErr("workflow", err)
	}
	project, err := s.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		return nil, storeErr("project", err)
	}
	stage, err := cleanStage("current_stage", in.CurrentStage)
	if err != nil {
		return nil, err
	}
	if err := s.checkStage(workflow, stage); err != nil {
		return nil, err
	}

	inst := &models.WorkflowInstance{
		WorkflowID:   workflow.ID,
		ProjectID:    project.ID,
		CurrentStage: stage,
		StageData:    in.StageData.Clone(),
		History:      cloneHistory(in.History),
	}
	if inst.StageData == nil {
		inst.StageData = models.Map{}
	}
	if in.IsCompleted != nil {
		inst.IsCompleted = *in.IsCompleted
	}

	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, storeErr("workflow_instance", err)
	}
	inst.Workflow = workflow
	inst.Project = project

	s.logger.Info("workflow instance created",
		"instance_id", inst.ID,
		"workflow_id", inst.WorkflowID,
		"project_id", inst.ProjectID,
		"stage", inst.CurrentStage,
	)
	return inst, nil
}

// Get returns an instance with its workflow and project loaded. A relation
// that no longer exists is left nil.
func (s *InstanceService) Get(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	inst, err := s.store.GetInstance(ctx, id)
	if err != nil {
		return nil, storeErr("workflow_instance", err)
	}
	if err := s.hydrate(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Update patches the instance directly. No transition is recorded.
func (s *InstanceService) Update(ctx context.Context, id int64, patch models.InstanceUpdate) (*models.WorkflowInstance, error) {
	var stage string
	if patch.CurrentStage != nil {
		var err error
		if stage, err = cleanStage("current_stage", *patch.CurrentStage); err != nil {
			return nil, err
		}
	}

	inst, err := s.mutate(ctx, id, func(inst *models.WorkflowInstance) error {
		if patch.CurrentStage != nil {
			workflow, err := s.stageSource(ctx, inst)
			if err != nil {
				return err
			}
			if err := s.checkStage(workflow, stage); err != nil {
				return err
			}
			inst.CurrentStage = stage
		}
		if patch.StageData != nil {
			inst.StageData = patch.StageData.Clone()
		}
		if patch.History != nil {
			inst.History = cloneHistory(patch.History)
		}
		if patch.IsCompleted != nil {
			inst.IsCompleted = *patch.IsCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Transition moves the instance to req.ToStage and appends a history record.
// actor, when set, takes precedence over req.TriggeredBy.
func (s *InstanceService) Transition(ctx context.Context, id int64, req models.StageTransition, actor *int64) (*models.WorkflowInstance, error) {
	toStage, err := cleanStage("to_stage", req.ToStage)
	if err != nil {
		return nil, err
	}
	fromStage := strings.TrimSpace(req.FromStage)
	triggeredBy := req.TriggeredBy
	if actor != nil {
		triggeredBy = actor
	}

	var record models.Transition
	inst, err := s.mutate(ctx, id, func(inst *models.WorkflowInstance) error {
		if s.engine.CheckFromStage && fromStage != "" && fromStage != inst.CurrentStage {
			return Conflict("workflow instance %d is at stage %q, not %q", inst.ID, inst.CurrentStage, fromStage)
		}
		workflow, err := s.stageSource(ctx, inst)
		if err != nil {
			return err
		}
		if err := s.checkStage(workflow, toStage); err != nil {
			return err
		}
		record = inst.Transition(toStage, req.TransitionData, triggeredBy, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.recordTransition(ctx, inst.WorkflowID, toStage)
	s.logger.Info("workflow instance transitioned",
		"instance_id", inst.ID,
		"from", record.FromStage,
		"to", record.ToStage,
		"version", inst.Version,
	)

	if err := s.hydrate(ctx, inst); err != nil {
		return nil, err
	}
	s.notify(ctx, inst, record, req.Notes)
	return inst, nil
}

// ListByProject returns the project's instances newest first.
func (s *InstanceService) ListByProject(ctx context.Context, projectID int64) ([]*models.WorkflowInstance, error) {
	return s.list(ctx, repository.InstanceFilter{ProjectID: &projectID})
}

// ListByWorkflow returns the workflow's instances newest first.
func (s *InstanceService) ListByWorkflow(ctx context.Context, workflowID int64) ([]*models.WorkflowInstance, error) {
	return s.list(ctx, repository.InstanceFilter{WorkflowID: &workflowID})
}

// ListByStage returns instances currently at stage, newest first.
func (s *InstanceService) ListByStage(ctx context.Context, stage string) ([]*models.WorkflowInstance, error) {
	return s.list(ctx, repository.InstanceFilter{Stage: &stage})
}

// ListAll returns every instance newest first.
func (s *InstanceService) ListAll(ctx context.Context) ([]*models.WorkflowInstance, error) {
	return s.list(ctx, repository.InstanceFilter{})
}

func (s *InstanceService) list(ctx context.Context, filter repository.InstanceFilter) ([]*models.WorkflowInstance, error) {
	list, err := s.store.ListInstances(ctx, filter)
	if err != nil {
		return nil, storeErr("workflow_instance", err)
	}
	return list, nil
}

// Statistics counts instances by completion and current stage. Every
// reference stage is reported, zero if unused, alongside any custom stage
// that instances currently occupy.
func (s *InstanceService) Statistics(ctx context.Context) (*models.InstanceStatistics, error) {
	counts, err := s.store.CountInstances(ctx)
	if err != nil {
		return nil, storeErr("workflow_instance", err)
	}
	stats := &models.InstanceStatistics{
		TotalInstances:     counts.Total,
		CompletedInstances: counts.Completed,
		InstancesByStage:   make(map[string]int, len(models.WorkflowStages)+len(counts.ByStage)),
	}
	for _, stage := range models.WorkflowStages {
		stats.InstancesByStage[string(stage)] = 0
	}
	for stage, n := range counts.ByStage {
		stats.InstancesByStage[stage] = n
	}
	return stats, nil
}

// Wait blocks until in-flight notifications have finished. Transitions made
// concurrently with Wait may still dispatch; use Close at shutdown.
func (s *InstanceService) Wait() {
	s.notifications.Wait()
}

// Close stops dispatching notifications and waits for the in-flight ones.
// Transitions keep working after Close but are no longer announced.
func (s *InstanceService) Close() {
	s.notifyMu.Lock()
	s.closed = true
	s.notifyMu.Unlock()
	s.notifications.Wait()
}

func (s *InstanceService) mutate(ctx context.Context, id int64, apply func(*models.WorkflowInstance) error) (*models.WorkflowInstance, error) {
	for attempt := 0; ; attempt++ {
		inst, err := s.store.GetInstance(ctx, id)
		if err != nil {
			return nil, storeErr("workflow_instance", err)
		}
		if err := apply(inst); err != nil {
			return nil, err
		}

		err = s.store.UpdateInstance(ctx, inst)
		if err == nil {
			return inst, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, storeErr("workflow_instance", err)
		}

		s.metrics.recordConflict(ctx)
		if attempt >= s.engine.TransitionRetries {
			return nil, Conflict("workflow instance %d was modified concurrently, retry the request", id)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.logger.Warn("instance version conflict, retrying", "instance_id", id, "attempt", attempt+1)
	}
}

// stageSource returns the workflow whose stages bound inst, or nil when
// strict checking is off or the workflow has been deleted. An orphaned
// instance declares no stages, so it may still move.
func (s *InstanceService) stageSource(ctx context.Context, inst *models.WorkflowInstance) (*models.Workflow, error) {
	if !s.engine.StrictStages {
		return nil, nil
	}
	w, err := s.store.GetWorkflow(ctx, inst.WorkflowID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Debug("parent workflow gone, skipping stage check", "instance_id", inst.ID, "workflow_id", inst.WorkflowID)
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("workflow", err)
	}
	return w, nil
}

// checkStage enforces declared stage names. workflow is nil when there is
// nothing to check against.
func (s *InstanceService) checkStage(workflow *models.Workflow, stage string) error {
	if !s.engine.StrictStages || workflow == nil {
		return nil
	}
	if !workflow.HasStage(stage) {
		return Validation("stage %q is not declared by workflow %d", stage, workflow.ID)
	}
	return nil
}

func (s *InstanceService) hydrate(ctx context.Context, inst *models.WorkflowInstance) error {
	workflow, err := s.store.GetWorkflow(ctx, inst.WorkflowID)
	switch {
	case err == nil:
		inst.Workflow = workflow
	case !errors.Is(err, repository.ErrNotFound):
		return storeErr("workflow", err)
	}
	project, err := s.store.GetProject(ctx, inst.ProjectID)
	switch {
	case err == nil:
		inst.Project = project
	case !errors.Is(err, repository.ErrNotFound):
		return storeErr("project", err)
	}
	return nil
}

// notify sends the transition event in the background, detached from the
// request context.
func (s *InstanceService) notify(ctx context.Context, inst *models.WorkflowInstance, record models.Transition, notes string) {
	event := TransitionEvent{
		EventID:     uuid.NewString(),
		InstanceID:  inst.ID,
		WorkflowID:  inst.WorkflowID,
		ProjectID:   inst.ProjectID,
		FromStage:   record.FromStage,
		ToStage:     record.ToStage,
		Notes:       notes,
		TriggeredBy: record.TriggeredBy,
		Timestamp:   record.Timestamp,
	}
	if inst.Workflow != nil {
		event.WorkflowName = inst.Workflow.Name
	}
	var ownerID int64
	if inst.Project != nil {
		event.ProjectName = inst.Project.Name
		ownerID = inst.Project.OwnerID
	}

	s.notifyMu.Lock()
	if s.closed {
		s.notifyMu.Unlock()
		s.logger.Warn("dropping transition notification after close", "instance_id", event.InstanceID)
		return
	}
	s.notifications.Add(1)
	s.notifyMu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer s.notifications.Done()

		if event.TriggeredBy != nil {
			if u, err := s.store.GetUser(bg, *event.TriggeredBy); err == nil {
				event.TriggeredByName = u.FullName
			}
		}
		if ownerID != 0 {
			if u, err := s.store.GetUser(bg, ownerID); err == nil && u.Email != "" {
				event.Recipients = []string{u.Email}
			}
		}
		event.Subject = transitionSubject(event.WorkflowName)
		event.Body = transitionBody(event)

		if err := s.notifier.NotifyTransition(bg, event); err != nil {
			s.logger.Warn("transition notification failed",
				"instance_id", event.InstanceID,
				"event_id", event.EventID,
				"error", err,
			)
		}
	}()
}

func cloneHistory(h []models.Transition) []models.Transition {
	out := make([]models.Transition, len(h))
	for i := range h {
		out[i] = h[i].Clone()
	}
	return out
}
