package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

func TestRuleService_CreateValidation(t *testing.T) {
	svc := NewRuleService(repository.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, models.RuleCreate{Name: "", RuleType: models.RuleTypeAutomation, Conditions: models.Map{}, Actions: models.Map{}})
	assert.True(t, IsValidation(err))
	_, err = svc.Create(ctx, models.RuleCreate{Name: "r", RuleType: "escalation", Conditions: models.Map{}, Actions: models.Map{}})
	assert.True(t, IsValidation(err))
	_, err = svc.Create(ctx, models.RuleCreate{Name: "r", RuleType: models.RuleTypeAutomation, Actions: models.Map{}})
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "conditions")
	_, err = svc.Create(ctx, models.RuleCreate{Name: "r", RuleType: models.RuleTypeAutomation, Conditions: models.Map{}})
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "actions")
}

func TestRuleService_CRUD(t *testing.T) {
	svc := NewRuleService(repository.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	r, err := svc.Create(ctx, models.RuleCreate{
		Name:       " Escalate ",
		RuleType:   models.RuleTypeAutomation,
		Conditions: models.Map{"priority": models.String("high")},
		Actions:    models.Map{"assign": models.String("tier2")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Escalate", r.Name)
	assert.True(t, r.IsActive)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.Conditions.Equal(r.Conditions))

	updated, err := svc.Update(ctx, r.ID, models.RuleUpdate{IsActive: ptr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Escalate", updated.Name)

	_, err = svc.Update(ctx, r.ID, models.RuleUpdate{RuleType: ptr(models.RuleType("bogus"))})
	assert.True(t, IsValidation(err))

	require.NoError(t, svc.Delete(ctx, r.ID))
	_, err = svc.Get(ctx, r.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(svc.Delete(ctx, r.ID)))
}

func TestRuleService_List(t *testing.T) {
	svc := NewRuleService(repository.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	for _, in := range []models.RuleCreate{
		{Name: "v1", RuleType: models.RuleTypeValidation, Conditions: models.Map{}, Actions: models.Map{}},
		{Name: "n1", RuleType: models.RuleTypeNotification, Conditions: models.Map{}, Actions: models.Map{}},
		{Name: "n2", RuleType: models.RuleTypeNotification, Conditions: models.Map{}, Actions: models.Map{}, IsActive: ptr(false)},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	notification := models.RuleTypeNotification
	list, err := svc.List(ctx, &notification, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n1", list[0].Name)

	active, err := svc.List(ctx, nil, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	bogus := models.RuleType("bogus")
	_, err = svc.List(ctx, &bogus, true)
	assert.True(t, IsValidation(err))
}

func TestRuleService_EvaluateMatching(t *testing.T) {
	svc := NewRuleService(repository.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	strict, err := svc.Create(ctx, models.RuleCreate{
		Name:       "open high",
		RuleType:   models.RuleTypeNotification,
		Conditions: models.Map{"status": models.String("open"), "priority": models.String("high")},
		Actions:    models.Map{"notify": models.String("on-call")},
	})
	require.NoError(t, err)
	always, err := svc.Create(ctx, models.RuleCreate{
		Name:       "always",
		RuleType:   models.RuleTypeAutomation,
		Conditions: models.Map{},
		Actions:    models.Map{"log": models.Bool(true)},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		context models.Map
		want    []int64
	}{
		{
			name:    "all conditions plus extra keys",
			context: models.Map{"status": models.String("open"), "priority": models.String("high"), "extra": models.String("x")},
			want:    []int64{always.ID, strict.ID},
		},
		{
			name:    "missing key",
			context: models.Map{"status": models.String("open")},
			want:    []int64{always.ID},
		},
		{
			name:    "value mismatch",
			context: models.Map{"status": models.String("closed"), "priority": models.String("high")},
			want:    []int64{always.ID},
		},
		{
			name:    "type mismatch is not equal",
			context: models.Map{"status": models.String("open"), "priority": models.Bool(true)},
			want:    []int64{always.ID},
		},
		{
			name:    "empty context",
			context: models.Map{},
			want:    []int64{always.ID},
		},
		{
			name:    "nil context",
			context: nil,
			want:    []int64{always.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triggered, err := svc.Evaluate(ctx, tt.context)
			require.NoError(t, err)
			var ids []int64
			for _, tr := range triggered {
				ids = append(ids, tr.RuleID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	triggered, err := svc.Evaluate(ctx, models.Map{"status": models.String("open"), "priority": models.String("high")})
	require.NoError(t, err)
	require.Len(t, triggered, 2)
	assert.Equal(t, "open high", triggered[1].RuleName)
	assert.Equal(t, models.RuleTypeNotification, triggered[1].RuleType)
	assert.True(t, triggered[1].Actions.Equal(models.Map{"notify": models.String("on-call")}))
}

func TestRuleService_InactiveRulesNeverFire(t *testing.T) {
	svc := NewRuleService(repository.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	r, err := svc.Create(ctx, models.RuleCreate{
		Name:       "dormant",
		RuleType:   models.RuleTypeValidation,
		Conditions: models.Map{},
		Actions:    models.Map{"block": models.Bool(true)},
		IsActive:   ptr(false),
	})
	require.NoError(t, err)

	for _, evalCtx := range []models.Map{nil, {}, {"anything": models.Number(1)}} {
		triggered, err := svc.Evaluate(ctx, evalCtx)
		require.NoError(t, err)
		assert.NotNil(t, triggered)
		assert.Empty(t, triggered)
	}

	_, err = svc.Update(ctx, r.ID, models.RuleUpdate{IsActive: ptr(true)})
	require.NoError(t, err)
	triggered, err := svc.Evaluate(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, triggered, 1)
}
