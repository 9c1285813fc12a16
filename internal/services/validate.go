package services

import (
	"strings"
	"unicode/utf8"

	"projectflow/backend/pkg/models"
)

const (
	maxNameLength  = 255
	maxStageLength = 100
)

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Validation("name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", Validation("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func cleanStage(field, stage string) (string, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return "", Validation("%s must not be empty", field)
	}
	if utf8.RuneCountInString(stage) > maxStageLength {
		return "", Validation("%s must be at most %d characters", field, maxStageLength)
	}
	return stage, nil
}

func validateStages(stages models.Map) error {
	if len(stages) == 0 {
		return Validation("stages must declare at least one stage")
	}
	for name := range stages {
		if strings.TrimSpace(name) == "" {
			return Validation("stage names must not be empty")
		}
	}
	return nil
}

// ParseWorkflowType converts a query value into a WorkflowType.
func ParseWorkflowType(s string) (models.WorkflowType, error) {
	t := models.WorkflowType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", Validation("unsupported workflow type %q", s)
	}
	return t, nil
}

// ParseRuleType converts a query value into a RuleType.
func ParseRuleType(s string) (models.RuleType, error) {
	t := models.RuleType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", Validation("unsupported rule type %q", s)
	}
	return t, nil
}
