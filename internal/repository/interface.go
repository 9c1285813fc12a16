package repository

import (
	"context"
	"errors"

	"projectflow/backend/pkg/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an instance was modified after it
	// was read.
	ErrVersionConflict = errors.New("version conflict")
)

// WorkflowFilter narrows ListWorkflows. A nil Type lists every type. Limit
// of zero means no limit. Results are ordered newest first.
type WorkflowFilter struct {
	Type       *models.WorkflowType
	ActiveOnly bool
	Limit      int
}

// InstanceFilter narrows ListInstances. Nil fields are ignored.
type InstanceFilter struct {
	ProjectID  *int64
	WorkflowID *int64
	Stage      *string
}

// RuleFilter narrows ListRules.
type RuleFilter struct {
	Type       *models.RuleType
	ActiveOnly bool
}

// WorkflowCounts aggregates the workflows table.
type WorkflowCounts struct {
	Total  int
	Active int
	ByType map[models.WorkflowType]int
}

// InstanceCounts aggregates the workflow_instances table.
type InstanceCounts struct {
	Total     int
	Completed int
	ByStage   map[string]int
}

// WorkflowStore persists workflow definitions.
type WorkflowStore interface {
	// CreateWorkflow inserts w and fills in its ID and timestamps.
	CreateWorkflow(ctx context.Context, w *models.Workflow) error
	GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
	// UpdateWorkflow overwrites every mutable field and refreshes UpdatedAt.
	UpdateWorkflow(ctx context.Context, w *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id int64) error
	CountWorkflows(ctx context.Context) (*WorkflowCounts, error)
}

// InstanceStore persists workflow instances. Relations are not loaded.
type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	GetInstance(ctx context.Context, id int64) (*models.WorkflowInstance, error)
	ListInstances(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error)
	// UpdateInstance writes inst only if the stored version still equals
	// inst.Version, then bumps inst.Version. A stale version yields
	// ErrVersionConflict.
	UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error
	CountInstances(ctx context.Context) (*InstanceCounts, error)
}

// RuleStore persists business rules.
type RuleStore interface {
	CreateRule(ctx context.Context, r *models.BusinessRule) error
	GetRule(ctx context.Context, id int64) (*models.BusinessRule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]*models.BusinessRule, error)
	UpdateRule(ctx context.Context, r *models.BusinessRule) error
	DeleteRule(ctx context.Context, id int64) error
}

// ProjectStore is the project record store instances are bound to.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	ListProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id int64) error
}

// UserStore resolves authenticated actors.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Repository is the full record store.
type Repository interface {
	WorkflowStore
	InstanceStore
	RuleStore
	ProjectStore
	UserStore
	Ping(ctx context.Context) error
}
