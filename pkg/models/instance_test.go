package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowInstanceTransition(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

	t.Run("records from and to stage", func(t *testing.T) {
		inst := &WorkflowInstance{CurrentStage: "lead"}
		by := int64(7)

		rec := inst.Transition("closed_won", Map{"amount": Number(5000)}, &by, at)

		assert.Equal(t, "lead", rec.FromStage)
		assert.Equal(t, "closed_won", rec.ToStage)
		assert.Equal(t, time.UTC, rec.Timestamp.Location())
		assert.True(t, rec.Timestamp.Equal(at))
		require.NotNil(t, rec.TriggeredBy)
		assert.Equal(t, int64(7), *rec.TriggeredBy)

		assert.Equal(t, "closed_won", inst.CurrentStage)
		require.Len(t, inst.History, 1)
		assert.True(t, inst.StageData.Equal(Map{"amount": Number(5000)}))
	})

	t.Run("history is append-only and chained", func(t *testing.T) {
		inst := &WorkflowInstance{
			CurrentStage: "lead",
			History:      []Transition{{FromStage: "", ToStage: "lead"}},
		}
		stages := []string{"qualification", "proposal", "negotiation", "closed_won"}
		for n, stage := range stages {
			before := inst.CurrentStage
			inst.Transition(stage, nil, nil, at)
			require.Len(t, inst.History, n+2)
			assert.Equal(t, before, inst.History[n+1].FromStage)
		}
		assert.Equal(t, "lead", inst.History[0].ToStage)
		assert.Equal(t, "closed_won", inst.CurrentStage)
	})

	t.Run("stage data merge is non-destructive", func(t *testing.T) {
		inst := &WorkflowInstance{CurrentStage: "a", StageData: Map{"b": Number(2)}}

		inst.Transition("b", Map{"a": Number(1)}, nil, at)
		assert.True(t, inst.StageData.Equal(Map{"a": Number(1), "b": Number(2)}))

		inst.Transition("c", Map{"a": Number(3)}, nil, at)
		assert.True(t, inst.StageData.Equal(Map{"a": Number(3), "b": Number(2)}))
	})

	t.Run("empty data leaves stage data alone and records empty map", func(t *testing.T) {
		inst := &WorkflowInstance{CurrentStage: "a"}
		rec := inst.Transition("b", nil, nil, at)
		assert.Nil(t, inst.StageData)
		assert.NotNil(t, rec.Data)
		assert.Empty(t, rec.Data)
	})

	t.Run("recorded data is detached from stage data", func(t *testing.T) {
		inst := &WorkflowInstance{CurrentStage: "a"}
		data := Map{"k": String("v")}
		inst.Transition("b", data, nil, at)
		inst.StageData["k"] = String("changed")
		data["k"] = String("mutated")
		assert.Equal(t, String("v"), inst.History[0].Data["k"])
	})
}

func TestWorkflowInstanceClone(t *testing.T) {
	by := int64(1)
	inst := &WorkflowInstance{
		ID:           1,
		CurrentStage: "a",
		StageData:    Map{"x": Number(1)},
		History:      []Transition{{FromStage: "a", ToStage: "b", TriggeredBy: &by, Data: Map{}}},
		Workflow:     &Workflow{ID: 2},
	}
	cp := inst.Clone()
	cp.StageData["x"] = Number(2)
	*cp.History[0].TriggeredBy = 9

	assert.Equal(t, Number(1), inst.StageData["x"])
	assert.Equal(t, int64(1), *inst.History[0].TriggeredBy)
	assert.Nil(t, cp.Workflow)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	p := Paginate(items, 0, 2)
	assert.Equal(t, []int{1, 2}, p.Items)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 3, p.Pages)

	p = Paginate(items, 4, 2)
	assert.Equal(t, []int{5}, p.Items)
	assert.Equal(t, 3, p.Page)

	p = Paginate(items, 10, 2)
	assert.Empty(t, p.Items)
	assert.NotNil(t, p.Items)
}

func TestTypeValidity(t *testing.T) {
	assert.True(t, WorkflowTypeSales.Valid())
	assert.False(t, WorkflowType("hr").Valid())
	assert.True(t, RuleTypeAutomation.Valid())
	assert.False(t, RuleType("audit").Valid())
}
