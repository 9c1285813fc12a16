package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"projectflow/backend/pkg/models"
)

const workflowColumns = "id, name, description, type, stages, rules, is_active, created_at, updated_at"

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var (
		w             models.Workflow
		stages, rules []byte
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &w.Type, &stages, &rules, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(stages, &w.Stages); err != nil {
		return nil, err
	}
	if err := decodeJSON(rules, &w.Rules); err != nil {
		return nil, err
	}
	if w.Stages == nil {
		w.Stages = models.Map{}
	}
	if w.Rules == nil {
		w.Rules = models.Map{}
	}
	return &w, nil
}

// CreateWorkflow inserts a new workflow definition.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, w *models.Workflow) error {
	stages, err := encodeMap(w.Stages)
	if err != nil {
		return err
	}
	rules, err := encodeMap(w.Rules)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO workflows (name, description, type, stages, rules, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		w.Name, w.Description, string(w.Type), stages, rules, w.IsActive,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	w, err := scanWorkflow(s.db.QueryRow(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

// ListWorkflows returns workflows newest first.
func (s *PostgresStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	var typ *string
	if filter.Type != nil {
		t := string(*filter.Type)
		typ = &t
	}
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE ($1::text IS NULL OR type = $1)
		   AND (NOT $2 OR is_active)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		typ, filter.ActiveOnly, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*models.Workflow{}
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow overwrites the mutable fields of an existing workflow.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, w *models.Workflow) error {
	stages, err := encodeMap(w.Stages)
	if err != nil {
		return err
	}
	rules, err := encodeMap(w.Rules)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`UPDATE workflows
		 SET name = $2, description = $3, type = $4, stages = $5, rules = $6, is_active = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		w.ID, w.Name, w.Description, string(w.Type), stages, rules, w.IsActive,
	).Scan(&w.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// DeleteWorkflow removes a workflow. Instances that reference it are kept.
func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountWorkflows aggregates workflows by type and activity.
func (s *PostgresStore) CountWorkflows(ctx context.Context) (*WorkflowCounts, error) {
	rows, err := s.db.Query(ctx, "SELECT type, is_active, count(*) FROM workflows GROUP BY type, is_active")
	if err != nil {
		return nil, fmt.Errorf("counting workflows: %w", err)
	}
	defer rows.Close()

	counts := &WorkflowCounts{ByType: map[models.WorkflowType]int{}}
	for rows.Next() {
		var (
			typ    string
			active bool
			n      int
		)
		if err := rows.Scan(&typ, &active, &n); err != nil {
			return nil, err
		}
		counts.Total += n
		if active {
			counts.Active += n
		}
		counts.ByType[models.WorkflowType(typ)] += n
	}
	return counts, rows.Err()
}
