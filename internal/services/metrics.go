package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"projectflow/backend/pkg/models"
)

const instrumentationName = "projectflow/backend/internal/services"

// Metrics holds the engine's OTel instruments. A nil *Metrics records nothing.
type Metrics struct {
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
	evaluations metric.Int64Counter
	triggered   metric.Int64Counter
}

// NewMetrics creates the engine instruments on meter, or on the global
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	var (
		m   Metrics
		err error
	)
	m.transitions, err = meter.Int64Counter(
		"projectflow.workflow.transitions",
		metric.WithDescription("Stage transitions applied to workflow instances"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	m.conflicts, err = meter.Int64Counter(
		"projectflow.workflow.version_conflicts",
		metric.WithDescription("Instance writes rejected by the version check"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conflicts counter: %w", err)
	}

	m.evaluations, err = meter.Int64Counter(
		"projectflow.rules.evaluations",
		metric.WithDescription("Business rule evaluation requests"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluations counter: %w", err)
	}

	m.triggered, err = meter.Int64Counter(
		"projectflow.rules.triggered",
		metric.WithDescription("Business rules that matched an evaluation context"),
		metric.WithUnit("{rule}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create triggered counter: %w", err)
	}
	return &m, nil
}

func (m *Metrics) recordTransition(ctx context.Context, workflowID int64, toStage string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("workflow_id", workflowID),
		attribute.String("to_stage", toStage),
	))
}

func (m *Metrics) recordConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflicts.Add(ctx, 1)
}

func (m *Metrics) recordEvaluation(ctx context.Context, triggered []models.TriggeredRule) {
	if m == nil {
		return
	}
	m.evaluations.Add(ctx, 1)
	for _, t := range triggered {
		m.triggered.Add(ctx, 1, metric.WithAttributes(attribute.String("rule_type", string(t.RuleType))))
	}
}
