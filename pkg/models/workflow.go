package models

import (
	"time"
)

// WorkflowType classifies a workflow definition.
type WorkflowType string

const (
	WorkflowTypeSales       WorkflowType = "sales"
	WorkflowTypeSupport     WorkflowType = "support"
	WorkflowTypeDevelopment WorkflowType = "development"
	WorkflowTypeMarketing   WorkflowType = "marketing"
	WorkflowTypeOperations  WorkflowType = "operations"
)

// WorkflowTypes lists every supported workflow type in declaration order.
var WorkflowTypes = []WorkflowType{
	WorkflowTypeSales,
	WorkflowTypeSupport,
	WorkflowTypeDevelopment,
	WorkflowTypeMarketing,
	WorkflowTypeOperations,
}

// Valid reports whether t is one of WorkflowTypes.
func (t WorkflowType) Valid() bool {
	for _, known := range WorkflowTypes {
		if t == known {
			return true
		}
	}
	return false
}

// WorkflowStage is the reference set of stage names used for instance
// statistics. Workflows may declare any stage names; these are only the
// well-known ones.
type WorkflowStage string

const (
	StageLead          WorkflowStage = "lead"
	StageQualification WorkflowStage = "qualification"
	StageProposal      WorkflowStage = "proposal"
	StageNegotiation   WorkflowStage = "negotiation"
	StageClosedWon     WorkflowStage = "closed_won"
	StageClosedLost    WorkflowStage = "closed_lost"
	StageDevelopment   WorkflowStage = "development"
	StageTesting       WorkflowStage = "testing"
	StageDeployment    WorkflowStage = "deployment"
	StageMaintenance   WorkflowStage = "maintenance"
)

var WorkflowStages = []WorkflowStage{
	StageLead,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
	StageDevelopment,
	StageTesting,
	StageDeployment,
	StageMaintenance,
}

// Workflow is a named, typed process definition with a set of stages.
type Workflow struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Type        WorkflowType `json:"type"`
	Stages      Map          `json:"stages"`
	Rules       Map          `json:"rules"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasStage reports whether the workflow declares the named stage.
func (w *Workflow) HasStage(name string) bool {
	_, ok := w.Stages[name]
	return ok
}

func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	c := *w
	if w.Description != nil {
		d := *w.Description
		c.Description = &d
	}
	c.Stages = w.Stages.Clone()
	c.Rules = w.Rules.Clone()
	return &c
}

// WorkflowCreate is the payload for defining a new workflow.
type WorkflowCreate struct {
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Type        WorkflowType `json:"type"`
	Stages      Map          `json:"stages"`
	Rules       Map          `json:"rules,omitempty"`
	IsActive    *bool        `json:"is_active,omitempty"`
}

// WorkflowUpdate is a partial patch; nil fields are left untouched.
type WorkflowUpdate struct {
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Type        *WorkflowType `json:"type,omitempty"`
	Stages      Map           `json:"stages,omitempty"`
	Rules       Map           `json:"rules,omitempty"`
	IsActive    *bool         `json:"is_active,omitempty"`
}

// WorkflowStatistics is the registry overview.
type WorkflowStatistics struct {
	TotalWorkflows     int            `json:"total_workflows"`
	ActiveWorkflows    int            `json:"active_workflows"`
	CompletedWorkflows int            `json:"completed_workflows"`
	WorkflowsByType    map[string]int `json:"workflows_by_type"`
	WorkflowsByStage   map[string]int `json:"workflows_by_stage"`
	RecentWorkflows    []*Workflow    `json:"recent_workflows"`
}
