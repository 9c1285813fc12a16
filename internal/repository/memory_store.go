package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"projectflow/backend/pkg/models"
)

// MemoryStore is an in-process Repository. Records are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	seq       map[string]int64
	workflows map[int64]*models.Workflow
	instances map[int64]*models.WorkflowInstance
	rules     map[int64]*models.BusinessRule
	projects  map[int64]*models.Project
	users     map[int64]*models.User
}

var _ Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		seq:       map[string]int64{},
		workflows: map[int64]*models.Workflow{},
		instances: map[int64]*models.WorkflowInstance{},
		rules:     map[int64]*models.BusinessRule{},
		projects:  map[int64]*models.Project{},
		users:     map[int64]*models.User{},
	}
}

func (s *MemoryStore) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

// emptyIfNil mirrors the postgres columns, which are never NULL.
func emptyIfNil(m models.Map) models.Map {
	if m == nil {
		return models.Map{}
	}
	return m
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// newestFirst orders by creation time then ID, both descending.
func newestFirst[T any](items []T, key func(T) (time.Time, int64)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w.ID = s.next("workflows")
	w.CreatedAt, w.UpdatedAt = now, now
	w.Stages, w.Rules = emptyIfNil(w.Stages), emptyIfNil(w.Rules)
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id int64) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (s *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Workflow{}
	for _, w := range s.workflows {
		if filter.Type != nil && w.Type != *filter.Type {
			continue
		}
		if filter.ActiveOnly && !w.IsActive {
			continue
		}
		out = append(out, w.Clone())
	}
	newestFirst(out, func(w *models.Workflow) (time.Time, int64) { return w.CreatedAt, w.ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.workflows[w.ID]
	if !ok {
		return ErrNotFound
	}
	w.CreatedAt = cur.CreatedAt
	w.UpdatedAt = s.now()
	w.Stages, w.Rules = emptyIfNil(w.Stages), emptyIfNil(w.Rules)
	s.workflows[w.ID] = w.Clone()
	return nil
}

func (s *MemoryStore) DeleteWorkflow(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

func (s *MemoryStore) CountWorkflows(context.Context) (*WorkflowCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &WorkflowCounts{ByType: map[models.WorkflowType]int{}}
	for _, w := range s.workflows {
		counts.Total++
		if w.IsActive {
			counts.Active++
		}
		counts.ByType[w.Type]++
	}
	return counts, nil
}

func (s *MemoryStore) CreateInstance(_ context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	inst.ID = s.next("workflow_instances")
	inst.Version = 1
	inst.CreatedAt, inst.UpdatedAt = now, now
	if inst.StageData == nil {
		inst.StageData = models.Map{}
	}
	if inst.History == nil {
		inst.History = []models.Transition{}
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *MemoryStore) GetInstance(_ context.Context, id int64) (*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inst.Clone(), nil
}

func (s *MemoryStore) ListInstances(_ context.Context, filter InstanceFilter) ([]*models.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.WorkflowInstance{}
	for _, inst := range s.instances {
		if filter.ProjectID != nil && inst.ProjectID != *filter.ProjectID {
			continue
		}
		if filter.WorkflowID != nil && inst.WorkflowID != *filter.WorkflowID {
			continue
		}
		if filter.Stage != nil && inst.CurrentStage != *filter.Stage {
			continue
		}
		out = append(out, inst.Clone())
	}
	newestFirst(out, func(i *models.WorkflowInstance) (time.Time, int64) { return i.CreatedAt, i.ID })
	return out, nil
}

func (s *MemoryStore) UpdateInstance(_ context.Context, inst *models.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.instances[inst.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != inst.Version {
		return ErrVersionConflict
	}
	inst.Version++
	inst.CreatedAt = cur.CreatedAt
	inst.UpdatedAt = s.now()
	stored := inst.Clone()
	stored.WorkflowID, stored.ProjectID = cur.WorkflowID, cur.ProjectID
	s.instances[inst.ID] = stored
	return nil
}

func (s *MemoryStore) CountInstances(context.Context) (*InstanceCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := &InstanceCounts{ByStage: map[string]int{}}
	for _, inst := range s.instances {
		counts.Total++
		if inst.IsCompleted {
			counts.Completed++
		}
		counts.ByStage[inst.CurrentStage]++
	}
	return counts, nil
}

func (s *MemoryStore) CreateRule(_ context.Context, r *models.BusinessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r.ID = s.next("business_rules")
	r.CreatedAt, r.UpdatedAt = now, now
	r.Conditions, r.Actions = emptyIfNil(r.Conditions), emptyIfNil(r.Actions)
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) GetRule(_ context.Context, id int64) (*models.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListRules(_ context.Context, filter RuleFilter) ([]*models.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.BusinessRule{}
	for _, r := range s.rules {
		if filter.Type != nil && r.RuleType != *filter.Type {
			continue
		}
		if filter.ActiveOnly && !r.IsActive {
			continue
		}
		out = append(out, r.Clone())
	}
	newestFirst(out, func(r *models.BusinessRule) (time.Time, int64) { return r.CreatedAt, r.ID })
	return out, nil
}

func (s *MemoryStore) UpdateRule(_ context.Context, r *models.BusinessRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rules[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = s.now()
	r.Conditions, r.Actions = emptyIfNil(r.Conditions), emptyIfNil(r.Actions)
	s.rules[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) DeleteRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *MemoryStore) CreateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	p.ID = s.next("projects")
	if p.Status == "" {
		p.Status = models.ProjectStatusPlanning
	}
	p.CreatedAt, p.UpdatedAt = now, now
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) GetProject(_ context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProjects(context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Project{}
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	newestFirst(out, func(p *models.Project) (time.Time, int64) { return p.CreatedAt, p.ID })
	return out, nil
}

func (s *MemoryStore) UpdateProject(_ context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.projects[p.ID]
	if !ok {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.now()
	s.projects[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u.ID = s.next("users")
	u.CreatedAt, u.UpdatedAt = now, now
	c := *u
	s.users[u.ID] = &c
	return nil
}
