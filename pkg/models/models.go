// Package models defines the domain models for the project workflow service
package models

import (
	"time"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusPlanning   ProjectStatus = "planning"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusOnHold     ProjectStatus = "on_hold"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

// Project is the unit of work a workflow instance is bound to
type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	OwnerID     int64         `json:"owner_id"`
	WorkflowID  *int64        `json:"workflow_id,omitempty"`
	Status      ProjectStatus `json:"status"`
	StartDate   *time.Time    `json:"start_date,omitempty"`
	EndDate     *time.Time    `json:"end_date,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	if p.Description != nil {
		d := *p.Description
		c.Description = &d
	}
	if p.WorkflowID != nil {
		w := *p.WorkflowID
		c.WorkflowID = &w
	}
	if p.StartDate != nil {
		s := *p.StartDate
		c.StartDate = &s
	}
	if p.EndDate != nil {
		e := *p.EndDate
		c.EndDate = &e
	}
	return &c
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProblemDetails represents RFC 7807 Problem Details
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Page is a paginated slice of results
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
	Pages int `json:"pages"`
}

// Paginate slices items by skip/limit. limit must be positive.
func Paginate[T any](items []T, skip, limit int) Page[T] {
	total := len(items)
	start := min(max(skip, 0), total)
	end := min(start+limit, total)
	page := make([]T, end-start)
	copy(page, items[start:end])
	return Page[T]{
		Items: page,
		Total: total,
		Page:  skip/limit + 1,
		Size:  limit,
		Pages: (total + limit - 1) / limit,
	}
}
