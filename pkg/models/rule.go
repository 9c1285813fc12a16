package models

import (
	"time"
)

// RuleType classifies a business rule.
type RuleType string

const (
	RuleTypeValidation   RuleType = "validation"
	RuleTypeAutomation   RuleType = "automation"
	RuleTypeNotification RuleType = "notification"
)

var RuleTypes = []RuleType{
	RuleTypeValidation,
	RuleTypeAutomation,
	RuleTypeNotification,
}

func (t RuleType) Valid() bool {
	for _, known := range RuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// BusinessRule maps a flat condition set to an opaque set of actions.
type BusinessRule struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	RuleType    RuleType  `json:"rule_type"`
	Conditions  Map       `json:"conditions"`
	Actions     Map       `json:"actions"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *BusinessRule) Clone() *BusinessRule {
	if r == nil {
		return nil
	}
	c := *r
	if r.Description != nil {
		d := *r.Description
		c.Description = &d
	}
	c.Conditions = r.Conditions.Clone()
	c.Actions = r.Actions.Clone()
	return &c
}

type RuleCreate struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	RuleType    RuleType `json:"rule_type"`
	Conditions  Map      `json:"conditions"`
	Actions     Map      `json:"actions"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

type RuleUpdate struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	RuleType    *RuleType `json:"rule_type,omitempty"`
	Conditions  Map       `json:"conditions,omitempty"`
	Actions     Map       `json:"actions,omitempty"`
	IsActive    *bool     `json:"is_active,omitempty"`
}

// TriggeredRule is one match produced by rule evaluation. The actions are
// returned for the caller to carry out.
type TriggeredRule struct {
	RuleID   int64    `json:"rule_id"`
	RuleName string   `json:"rule_name"`
	RuleType RuleType `json:"rule_type"`
	Actions  Map      `json:"actions"`
}

// RuleEvaluation is the response to an evaluation request.
type RuleEvaluation struct {
	TriggeredRules []TriggeredRule `json:"triggered_rules"`
	TotalTriggered int             `json:"total_triggered"`
}

func NewRuleEvaluation(triggered []TriggeredRule) RuleEvaluation {
	if triggered == nil {
		triggered = []TriggeredRule{}
	}
	return RuleEvaluation{TriggeredRules: triggered, TotalTriggered: len(triggered)}
}
