package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"projectflow/backend/pkg/models"
)

const instanceColumns = "id, workflow_id, project_id, current_stage, stage_data, history, is_completed, version, created_at, updated_at"

func scanInstance(row pgx.Row) (*models.WorkflowInstance, error) {
	var (
		inst            models.WorkflowInstance
		stageData, hist []byte
	)
	err := row.Scan(&inst.ID, &inst.WorkflowID, &inst.ProjectID, &inst.CurrentStage,
		&stageData, &hist, &inst.IsCompleted, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(stageData, &inst.StageData); err != nil {
		return nil, err
	}
	if err := decodeJSON(hist, &inst.History); err != nil {
		return nil, err
	}
	if inst.StageData == nil {
		inst.StageData = models.Map{}
	}
	if inst.History == nil {
		inst.History = []models.Transition{}
	}
	return &inst, nil
}

func encodeInstanceState(inst *models.WorkflowInstance) (stageData, hist []byte, err error) {
	stageData, err = encodeMap(inst.StageData)
	if err != nil {
		return nil, nil, err
	}
	history := inst.History
	if history == nil {
		history = []models.Transition{}
	}
	hist, err = encodeJSON(history)
	if err != nil {
		return nil, nil, err
	}
	return stageData, hist, nil
}

// CreateInstance inserts a new workflow instance at version 1.
func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	stageData, hist, err := encodeInstanceState(inst)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO workflow_instances (workflow_id, project_id, current_stage, stage_data, history, is_completed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, version, created_at, updated_at`,
		inst.WorkflowID, inst.ProjectID, inst.CurrentStage, stageData, hist, inst.IsCompleted,
	).Scan(&inst.ID, &inst.Version, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting workflow instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by its ID.
func (s *PostgresStore) GetInstance(ctx context.Context, id int64) (*models.WorkflowInstance, error) {
	inst, err := scanInstance(s.db.QueryRow(ctx, "SELECT "+instanceColumns+" FROM workflow_instances WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return inst, nil
}

// ListInstances returns instances newest first.
func (s *PostgresStore) ListInstances(ctx context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances
		 WHERE ($1::bigint IS NULL OR project_id = $1)
		   AND ($2::bigint IS NULL OR workflow_id = $2)
		   AND ($3::text IS NULL OR current_stage = $3)
		 ORDER BY created_at DESC, id DESC`,
		filter.ProjectID, filter.WorkflowID, filter.Stage,
	)
	if err != nil {
		return nil, fmt.Errorf("listing workflow instances: %w", err)
	}
	defer rows.Close()

	instances := []*models.WorkflowInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// UpdateInstance performs a compare-and-swap on the version column.
func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *models.WorkflowInstance) error {
	stageData, hist, err := encodeInstanceState(inst)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`UPDATE workflow_instances
		 SET current_stage = $3, stage_data = $4, history = $5, is_completed = $6,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		inst.ID, inst.Version, inst.CurrentStage, stageData, hist, inst.IsCompleted,
	).Scan(&inst.Version, &inst.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("updating workflow instance: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = $1)", inst.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking workflow instance: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	s.logger.Debug("instance version conflict", "instance_id", inst.ID, "version", inst.Version)
	return ErrVersionConflict
}

// CountInstances aggregates instances by stage and completion.
func (s *PostgresStore) CountInstances(ctx context.Context) (*InstanceCounts, error) {
	rows, err := s.db.Query(ctx,
		"SELECT current_stage, is_completed, count(*) FROM workflow_instances GROUP BY current_stage, is_completed")
	if err != nil {
		return nil, fmt.Errorf("counting workflow instances: %w", err)
	}
	defer rows.Close()

	counts := &InstanceCounts{ByStage: map[string]int{}}
	for rows.Next() {
		var (
			stage     string
			completed bool
			n         int
		)
		if err := rows.Scan(&stage, &completed, &n); err != nil {
			return nil, err
		}
		counts.Total += n
		if completed {
			counts.Completed += n
		}
		counts.ByStage[stage] += n
	}
	return counts, rows.Err()
}
