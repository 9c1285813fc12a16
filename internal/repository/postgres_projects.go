package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"projectflow/backend/pkg/models"
)

const projectColumns = "id, name, description, owner_id, workflow_id, status, start_date, end_date, created_at, updated_at"

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.WorkflowID, &p.Status,
		&p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a new project.
func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.Status == "" {
		p.Status = models.ProjectStatusPlanning
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO projects (name, description, owner_id, workflow_id, status, start_date, end_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.OwnerID, p.WorkflowID, string(p.Status), p.StartDate, p.EndDate,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by its ID.
func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListProjects returns every project newest first.
func (s *PostgresStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.Query(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProject overwrites the mutable fields of an existing project.
func (s *PostgresStore) UpdateProject(ctx context.Context, p *models.Project) error {
	err := s.db.QueryRow(ctx,
		`UPDATE projects
		 SET name = $2, description = $3, owner_id = $4, workflow_id = $5, status = $6,
		     start_date = $7, end_date = $8, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.Name, p.Description, p.OwnerID, p.WorkflowID, string(p.Status), p.StartDate, p.EndDate,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// DeleteProject removes a project.
func (s *PostgresStore) DeleteProject(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
