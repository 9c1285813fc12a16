package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func defaultEngine() config.EngineConfig {
	return config.EngineConfig{StrictStages: true, CheckFromStage: true, TransitionRetries: 3}
}

// recordingNotifier captures delivered events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []TransitionEvent
	err    error
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, e TransitionEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) Events() []TransitionEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]TransitionEvent(nil), n.events...)
}

// conflictingStore fails the next n instance writes with a version conflict.
type conflictingStore struct {
	*repository.MemoryStore
	mu        sync.Mutex
	conflicts int
	writes    int
}

func (s *conflictingStore) UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	s.writes++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return repository.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.MemoryStore.UpdateInstance(ctx, inst)
}

type fixture struct {
	store    *repository.MemoryStore
	user     *models.User
	project  *models.Project
	workflow *models.Workflow
}

// newFixture seeds a user, a project and the sales pipeline workflow.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	user := &models.User{Email: "owner@example.com", FullName: "Pat Owner", IsActive: true}
	require.NoError(t, store.CreateUser(ctx, user))

	project := &models.Project{Name: "Acme Rollout", OwnerID: user.ID}
	require.NoError(t, store.CreateProject(ctx, project))

	workflows := NewWorkflowService(store, store, nil)
	workflow, err := workflows.Create(ctx, models.WorkflowCreate{
		Name: "Sales Pipeline",
		Type: models.WorkflowTypeSales,
		Stages: models.Map{
			"lead":          models.Object(models.Map{}),
			"qualification": models.Object(models.Map{}),
			"proposal":      models.Object(models.Map{}),
			"closed_won":    models.Object(models.Map{}),
		},
	})
	require.NoError(t, err)

	return &fixture{store: store, user: user, project: project, workflow: workflow}
}
