package models

import (
	"time"
)

// Transition records one move of an instance from one stage to another.
// Transitions only ever live inside WorkflowInstance.History.
type Transition struct {
	FromStage   string    `json:"from_stage"`
	ToStage     string    `json:"to_stage"`
	Timestamp   time.Time `json:"timestamp"`
	TriggeredBy *int64    `json:"triggered_by"`
	Data        Map       `json:"data"`
}

func (t Transition) Clone() Transition {
	c := t
	if t.TriggeredBy != nil {
		by := *t.TriggeredBy
		c.TriggeredBy = &by
	}
	c.Data = t.Data.Clone()
	return c
}

// WorkflowInstance is one project's progress through a workflow.
type WorkflowInstance struct {
	ID           int64        `json:"id"`
	WorkflowID   int64        `json:"workflow_id"`
	ProjectID    int64        `json:"project_id"`
	CurrentStage string       `json:"current_stage"`
	StageData    Map          `json:"stage_data"`
	History      []Transition `json:"history"`
	IsCompleted  bool         `json:"is_completed"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Workflow *Workflow `json:"workflow,omitempty"`
	Project  *Project  `json:"project,omitempty"`
}

// Transition moves the instance to toStage. It appends a history record whose
// FromStage is the stage held before the call, shallow-merges data into
// StageData when data is non-empty, and sets CurrentStage. No reachability
// or membership checks are made here.
func (i *WorkflowInstance) Transition(toStage string, data Map, triggeredBy *int64, at time.Time) Transition {
	rec := Transition{
		FromStage:   i.CurrentStage,
		ToStage:     toStage,
		Timestamp:   at.UTC(),
		TriggeredBy: triggeredBy,
		Data:        data.Clone(),
	}
	if rec.Data == nil {
		rec.Data = Map{}
	}
	i.History = append(i.History, rec)

	if len(data) > 0 {
		if i.StageData == nil {
			i.StageData = Map{}
		}
		i.StageData.Merge(data)
	}
	i.CurrentStage = toStage
	return rec
}

// Clone returns a deep copy without the loaded relations.
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	if i == nil {
		return nil
	}
	c := *i
	c.StageData = i.StageData.Clone()
	if i.History != nil {
		c.History = make([]Transition, len(i.History))
		for n := range i.History {
			c.History[n] = i.History[n].Clone()
		}
	}
	c.Workflow = nil
	c.Project = nil
	return &c
}

// InstanceCreate is the payload for starting a workflow instance.
type InstanceCreate struct {
	WorkflowID   int64        `json:"workflow_id"`
	ProjectID    int64        `json:"project_id"`
	CurrentStage string       `json:"current_stage"`
	StageData    Map          `json:"stage_data,omitempty"`
	History      []Transition `json:"history,omitempty"`
	IsCompleted  *bool        `json:"is_completed,omitempty"`
}

// InstanceUpdate is a direct field patch. It never records a transition.
type InstanceUpdate struct {
	CurrentStage *string      `json:"current_stage,omitempty"`
	StageData    Map          `json:"stage_data,omitempty"`
	History      []Transition `json:"history,omitempty"`
	IsCompleted  *bool        `json:"is_completed,omitempty"`
}

// StageTransition is the request to move an instance to another stage.
type StageTransition struct {
	FromStage      string `json:"from_stage"`
	ToStage        string `json:"to_stage"`
	TransitionData Map    `json:"transition_data,omitempty"`
	Notes          string `json:"notes,omitempty"`
	TriggeredBy    *int64 `json:"triggered_by,omitempty"`
}

// InstanceStatistics summarises instances by completion and stage.
type InstanceStatistics struct {
	TotalInstances     int            `json:"total_instances"`
	CompletedInstances int            `json:"completed_instances"`
	InstancesByStage   map[string]int `json:"instances_by_stage"`
}
