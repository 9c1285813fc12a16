package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/config"
	"projectflow/backend/pkg/models"
)

func TestInstanceService_CreateReferentialValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	_, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: 999, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "workflow", se.Entity)

	_, err = svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: 999, CurrentStage: "lead"})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindNotFound, se.Kind)
	assert.Equal(t, "project", se.Entity)

	_, err = svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "  "})
	assert.True(t, IsValidation(err))

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "failed creates must not persist anything")
}

func TestInstanceService_CreatePopulatesRelations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{
		WorkflowID:   f.workflow.ID,
		ProjectID:    f.project.ID,
		CurrentStage: " lead ",
		StageData:    models.Map{"source": models.String("web")},
	})
	require.NoError(t, err)
	assert.Equal(t, "lead", inst.CurrentStage)
	assert.False(t, inst.IsCompleted)
	assert.NotNil(t, inst.History)
	assert.Empty(t, inst.History)
	require.NotNil(t, inst.Workflow)
	require.NotNil(t, inst.Project)
	assert.Equal(t, "Sales Pipeline", inst.Workflow.Name)
	assert.Equal(t, "Acme Rollout", inst.Project.Name)
	assert.Equal(t, int64(1), inst.Version)
}

func TestInstanceService_SalesPipelineScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)

	out, err := svc.Transition(ctx, inst.ID, models.StageTransition{
		ToStage:        "closed_won",
		TransitionData: models.Map{"amount": models.Number(5000)},
	}, nil)
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "closed_won", out.CurrentStage)
	require.Len(t, out.History, 1)
	h := out.History[0]
	assert.Equal(t, "lead", h.FromStage)
	assert.Equal(t, "closed_won", h.ToStage)
	assert.True(t, h.Data.Equal(models.Map{"amount": models.Number(5000)}))
	assert.Equal(t, time.UTC, h.Timestamp.Location())
	assert.True(t, out.StageData.Equal(models.Map{"amount": models.Number(5000)}))
	assert.False(t, out.IsCompleted, "completion is never derived from the stage")
	require.NotNil(t, out.Workflow)
	require.NotNil(t, out.Project)
}

func TestInstanceService_HistoryIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	seed := []models.Transition{{FromStage: "", ToStage: "lead", Data: models.Map{}}}
	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead", History: seed})
	require.NoError(t, err)

	path := []string{"qualification", "proposal", "qualification", "closed_won"}
	prev := "lead"
	for i, stage := range path {
		out, err := svc.Transition(ctx, inst.ID, models.StageTransition{FromStage: prev, ToStage: stage}, nil)
		require.NoError(t, err)
		require.Len(t, out.History, len(seed)+i+1)
		assert.Equal(t, prev, out.History[len(out.History)-1].FromStage)
		prev = stage
	}
	svc.Wait()

	final, err := svc.Get(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, final.History, len(seed)+len(path))
	assert.Equal(t, "lead", final.History[0].ToStage)
	for i := 1; i < len(final.History); i++ {
		assert.Equal(t, final.History[i-1].ToStage, final.History[i].FromStage)
	}
}

func TestInstanceService_StageDataMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{
		WorkflowID:   f.workflow.ID,
		ProjectID:    f.project.ID,
		CurrentStage: "lead",
		StageData:    models.Map{"b": models.Number(2)},
	})
	require.NoError(t, err)

	out, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "qualification", TransitionData: models.Map{"a": models.Number(1)}}, nil)
	require.NoError(t, err)
	assert.True(t, out.StageData.Equal(models.Map{"a": models.Number(1), "b": models.Number(2)}))

	out, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "proposal", TransitionData: models.Map{"a": models.Number(3)}}, nil)
	require.NoError(t, err)
	assert.True(t, out.StageData.Equal(models.Map{"a": models.Number(3), "b": models.Number(2)}))

	out, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "closed_won"}, nil)
	require.NoError(t, err)
	assert.True(t, out.StageData.Equal(models.Map{"a": models.Number(3), "b": models.Number(2)}))
	assert.NotNil(t, out.History[2].Data)
	assert.Empty(t, out.History[2].Data)
	svc.Wait()
}

func TestInstanceService_StagePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("strict rejects undeclared stages", func(t *testing.T) {
		svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

		_, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "limbo"})
		assert.True(t, IsValidation(err))

		inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
		require.NoError(t, err)

		_, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "limbo"}, nil)
		assert.True(t, IsValidation(err))
		_, err = svc.Update(ctx, inst.ID, models.InstanceUpdate{CurrentStage: ptr("limbo")})
		assert.True(t, IsValidation(err))

		got, err := svc.Get(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, "lead", got.CurrentStage)
		assert.Empty(t, got.History)
	})

	t.Run("relaxed allows any stage", func(t *testing.T) {
		engine := defaultEngine()
		engine.StrictStages = false
		svc := NewInstanceService(f.store, engine, nil, nil, nil)

		inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "limbo"})
		require.NoError(t, err)
		out, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "anywhere"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "anywhere", out.CurrentStage)
		svc.Wait()
	})

	t.Run("from_stage mismatch conflicts", func(t *testing.T) {
		svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)
		inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
		require.NoError(t, err)

		_, err = svc.Transition(ctx, inst.ID, models.StageTransition{FromStage: "proposal", ToStage: "closed_won"}, nil)
		assert.True(t, IsConflict(err))

		engine := defaultEngine()
		engine.CheckFromStage = false
		lenient := NewInstanceService(f.store, engine, nil, nil, nil)
		out, err := lenient.Transition(ctx, inst.ID, models.StageTransition{FromStage: "proposal", ToStage: "closed_won"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "lead", out.History[0].FromStage)
		lenient.Wait()
	})

	t.Run("unknown instance", func(t *testing.T) {
		svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)
		_, err := svc.Transition(ctx, 12345, models.StageTransition{ToStage: "lead"}, nil)
		assert.True(t, IsNotFound(err))
		_, err = svc.Update(ctx, 12345, models.InstanceUpdate{IsCompleted: ptr(true)})
		assert.True(t, IsNotFound(err))
	})
}

func TestInstanceService_OrphanedInstanceStillMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteWorkflow(ctx, f.workflow.ID))

	out, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "won"}, nil)
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, "won", out.CurrentStage)
	assert.Nil(t, out.Workflow)
	require.Len(t, out.History, 1)

	stage := "archived"
	out, err = svc.Update(ctx, inst.ID, models.InstanceUpdate{CurrentStage: &stage})
	require.NoError(t, err)
	assert.Equal(t, "archived", out.CurrentStage)

	_, err = svc.Transition(ctx, 999, models.StageTransition{ToStage: "won"}, nil)
	assert.True(t, IsNotFound(err))
}

func TestInstanceService_TriggeredBy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)

	out, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "qualification", TriggeredBy: ptr(int64(77))}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(77), *out.History[0].TriggeredBy)

	out, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "proposal", TriggeredBy: ptr(int64(77))}, &f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, *out.History[1].TriggeredBy)
	svc.Wait()
}

func TestInstanceService_UpdateDoesNotRecordTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{
		WorkflowID:   f.workflow.ID,
		ProjectID:    f.project.ID,
		CurrentStage: "lead",
		StageData:    models.Map{"old": models.Bool(true)},
	})
	require.NoError(t, err)

	out, err := svc.Update(ctx, inst.ID, models.InstanceUpdate{
		CurrentStage: ptr("proposal"),
		StageData:    models.Map{"new": models.Bool(true)},
		IsCompleted:  ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "proposal", out.CurrentStage)
	assert.True(t, out.StageData.Equal(models.Map{"new": models.Bool(true)}), "stage_data is replaced, not merged")
	assert.True(t, out.IsCompleted)
	assert.Empty(t, out.History)
	assert.Equal(t, int64(2), out.Version)

	corrected := []models.Transition{{FromStage: "lead", ToStage: "proposal", Data: models.Map{}}}
	out, err = svc.Update(ctx, inst.ID, models.InstanceUpdate{History: corrected})
	require.NoError(t, err)
	assert.Len(t, out.History, 1)
}

func TestInstanceService_RetriesVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := &conflictingStore{MemoryStore: f.store}
	svc := NewInstanceService(store, defaultEngine(), nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)

	store.conflicts = 2
	out, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "qualification"}, nil)
	require.NoError(t, err)
	assert.Len(t, out.History, 1)
	assert.Equal(t, 3, store.writes)

	store.conflicts, store.writes = 10, 0
	_, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "proposal"}, nil)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 4, store.writes, "one attempt plus three retries")

	got, err := svc.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "qualification", got.CurrentStage)
	svc.Wait()
}

func TestInstanceService_ConcurrentTransitionsKeepEveryRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := config.EngineConfig{StrictStages: false, TransitionRetries: 1000}
	svc := NewInstanceService(f.store, engine, nil, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "start"})
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Transition(ctx, inst.ID, models.StageTransition{
				ToStage:        "step",
				TransitionData: models.Map{"worker": models.Number(float64(n))},
			}, nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	svc.Wait()

	final, err := svc.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, final.History, workers)
	assert.Equal(t, int64(workers+1), final.Version)
	assert.Equal(t, "start", final.History[0].FromStage)
}

func TestInstanceService_Listings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewInstanceService(f.store, defaultEngine(), nil, nil, nil)

	other := &models.Project{Name: "Other", OwnerID: f.user.ID}
	require.NoError(t, f.store.CreateProject(ctx, other))

	a, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: other.ID, CurrentStage: "proposal"})
	require.NoError(t, err)

	byProject, err := svc.ListByProject(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, a.ID, byProject[0].ID)

	byWorkflow, err := svc.ListByWorkflow(ctx, f.workflow.ID)
	require.NoError(t, err)
	require.Len(t, byWorkflow, 2)
	assert.Equal(t, b.ID, byWorkflow[0].ID)

	byStage, err := svc.ListByStage(ctx, "proposal")
	require.NoError(t, err)
	require.Len(t, byStage, 1)
	assert.Equal(t, b.ID, byStage[0].ID)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestInstanceService_Statistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := defaultEngine()
	engine.StrictStages = false
	svc := NewInstanceService(f.store, engine, nil, nil, nil)

	for _, in := range []models.InstanceCreate{
		{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"},
		{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"},
		{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "closed_won", IsCompleted: ptr(true)},
		{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "custom_stage"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalInstances)
	assert.Equal(t, 1, stats.CompletedInstances)
	assert.Equal(t, 2, stats.InstancesByStage["lead"])
	assert.Equal(t, 1, stats.InstancesByStage["closed_won"])
	assert.Equal(t, 1, stats.InstancesByStage["custom_stage"])
	for _, stage := range models.WorkflowStages {
		_, ok := stats.InstancesByStage[string(stage)]
		assert.True(t, ok, "reference stage %s must be present", stage)
	}
	assert.Equal(t, 0, stats.InstancesByStage["maintenance"])
}

func TestInstanceService_NotifiesTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	svc := NewInstanceService(f.store, defaultEngine(), notifier, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(ctx)
	_, err = svc.Transition(reqCtx, inst.ID, models.StageTransition{ToStage: "proposal", Notes: "call scheduled"}, &f.user.ID)
	cancel()
	require.NoError(t, err, "notification failures never fail the transition")
	svc.Wait()

	events := notifier.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, "Workflow Transition: Sales Pipeline", e.Subject)
	assert.Equal(t, "lead", e.FromStage)
	assert.Equal(t, "proposal", e.ToStage)
	assert.Equal(t, "Acme Rollout", e.ProjectName)
	assert.Equal(t, "Pat Owner", e.TriggeredByName)
	assert.Equal(t, []string{"owner@example.com"}, e.Recipients)
	assert.Contains(t, e.Body, "From Stage: lead")
	assert.Contains(t, e.Body, "Notes: call scheduled")
}

func TestInstanceService_CloseStopsNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := NewInstanceService(f.store, defaultEngine(), notifier, nil, nil)

	inst, err := svc.Create(ctx, models.InstanceCreate{WorkflowID: f.workflow.ID, ProjectID: f.project.ID, CurrentStage: "lead"})
	require.NoError(t, err)
	_, err = svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: "qualification"}, nil)
	require.NoError(t, err)

	svc.Close()
	require.Len(t, notifier.Events(), 1, "in-flight notifications finish before Close returns")

	var wg sync.WaitGroup
	for _, to := range []string{"proposal", "closed_won"} {
		wg.Add(1)
		go func(to string) {
			defer wg.Done()
			_, err := svc.Transition(ctx, inst.ID, models.StageTransition{ToStage: to}, nil)
			assert.NoError(t, err)
		}(to)
	}
	wg.Wait()
	svc.Close()

	assert.Len(t, notifier.Events(), 1)
	got, err := svc.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 3)
}
