package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"projectflow/backend/pkg/models"
)

const ruleColumns = "id, name, description, rule_type, conditions, actions, is_active, created_at, updated_at"

func scanRule(row pgx.Row) (*models.BusinessRule, error) {
	var (
		r                   models.BusinessRule
		conditions, actions []byte
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.RuleType, &conditions, &actions, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(conditions, &r.Conditions); err != nil {
		return nil, err
	}
	if err := decodeJSON(actions, &r.Actions); err != nil {
		return nil, err
	}
	if r.Conditions == nil {
		r.Conditions = models.Map{}
	}
	if r.Actions == nil {
		r.Actions = models.Map{}
	}
	return &r, nil
}

// CreateRule inserts a new business rule.
func (s *PostgresStore) CreateRule(ctx context.Context, r *models.BusinessRule) error {
	conditions, err := encodeMap(r.Conditions)
	if err != nil {
		return err
	}
	actions, err := encodeMap(r.Actions)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO business_rules (name, description, rule_type, conditions, actions, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		r.Name, r.Description, string(r.RuleType), conditions, actions, r.IsActive,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting business rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by its ID.
func (s *PostgresStore) GetRule(ctx context.Context, id int64) (*models.BusinessRule, error) {
	r, err := scanRule(s.db.QueryRow(ctx, "SELECT "+ruleColumns+" FROM business_rules WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

// ListRules returns rules newest first.
func (s *PostgresStore) ListRules(ctx context.Context, filter RuleFilter) ([]*models.BusinessRule, error) {
	var typ *string
	if filter.Type != nil {
		t := string(*filter.Type)
		typ = &t
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+ruleColumns+` FROM business_rules
		 WHERE ($1::text IS NULL OR rule_type = $1)
		   AND (NOT $2 OR is_active)
		 ORDER BY created_at DESC, id DESC`,
		typ, filter.ActiveOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("listing business rules: %w", err)
	}
	defer rows.Close()

	rules := []*models.BusinessRule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRule overwrites the mutable fields of an existing rule.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *models.BusinessRule) error {
	conditions, err := encodeMap(r.Conditions)
	if err != nil {
		return err
	}
	actions, err := encodeMap(r.Actions)
	if err != nil {
		return err
	}
	err = s.db.QueryRow(ctx,
		`UPDATE business_rules
		 SET name = $2, description = $3, rule_type = $4, conditions = $5, actions = $6, is_active = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`,
		r.ID, r.Name, r.Description, string(r.RuleType), conditions, actions, r.IsActive,
	).Scan(&r.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

// DeleteRule removes a rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM business_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting business rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
