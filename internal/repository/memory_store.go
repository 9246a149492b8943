package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"hr-lifecycle/backend/pkg/models"
)

// MemoryStore is an in-process Repository used by tests and the memory driver.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	entries   map[string][]models.AuditEntry
	employees map[string]*models.Employee

	// failCommit, when set, is returned by CommitEntries without applying
	// anything once failAfter more commits have succeeded.
	failCommit error
	failAfter  int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*models.Workflow),
		entries:   make(map[string][]models.AuditEntry),
		employees: make(map[string]*models.Employee),
	}
}

// FailCommits makes every subsequent CommitEntries call fail with err; nil restores normal behavior.
func (s *MemoryStore) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
	s.failAfter = 0
}

// FailCommitsAfter lets n more CommitEntries calls succeed, then fails every
// later one with err.
func (s *MemoryStore) FailCommitsAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommit = err
	s.failAfter = n
}

// CreateWorkflow stores a new workflow.
func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if wf == nil || strings.TrimSpace(wf.ID) == "" {
		return fmt.Errorf("workflow id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return fmt.Errorf("create workflow %s: %w", wf.ID, ErrAlreadyExists)
	}
	s.workflows[wf.ID] = wf.Clone()
	return nil
}

// GetWorkflow returns a copy of the stored workflow.
func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return wf.Clone(), nil
}

// ListWorkflows returns matching workflows, newest first.
func (s *MemoryStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Workflow
	for _, wf := range s.workflows {
		if filter.EmployeeID != "" && wf.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Track != "" && wf.Track != filter.Track {
			continue
		}
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		out = append(out, wf.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CommitEntries appends entries and swaps the snapshot atomically under the store lock.
func (s *MemoryStore) CommitEntries(ctx context.Context, wf *models.Workflow, expectedVersion int64, entries []models.AuditEntry) ([]models.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCommit != nil {
		if s.failAfter == 0 {
			return nil, s.failCommit
		}
		s.failAfter--
	}
	current, ok := s.workflows[wf.ID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("workflow %s at version %d, expected %d: %w", wf.ID, current.Version, expectedVersion, ErrVersionConflict)
	}

	committed := make([]models.AuditEntry, len(entries))
	for i, entry := range entries {
		entry.WorkflowID = wf.ID
		entry.Seq = uint64(expectedVersion) + uint64(i) + 1
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		entry.Metadata = copyMetadata(entry.Metadata)
		committed[i] = entry
	}

	snapshot := wf.Clone()
	snapshot.Version = expectedVersion + int64(len(entries))
	s.workflows[wf.ID] = snapshot
	s.entries[wf.ID] = append(s.entries[wf.ID], committed...)

	out := make([]models.AuditEntry, len(committed))
	for i, entry := range committed {
		entry.Metadata = copyMetadata(entry.Metadata)
		out[i] = entry
	}
	return out, nil
}

// ListAuditEntries pages through a workflow's journal.
func (s *MemoryStore) ListAuditEntries(ctx context.Context, workflowID string, afterSeq uint64, limit int) ([]models.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditEntry
	for _, entry := range s.entries[workflowID] {
		if entry.Seq <= afterSeq {
			continue
		}
		entry.Metadata = copyMetadata(entry.Metadata)
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetEmployee returns a directory record.
func (s *MemoryStore) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, ErrNotFound)
	}
	cp := *emp
	return &cp, nil
}

// PutEmployee inserts or replaces a directory record.
func (s *MemoryStore) PutEmployee(ctx context.Context, employee *models.Employee) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if employee == nil || strings.TrimSpace(employee.ID) == "" {
		return fmt.Errorf("employee id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *employee
	s.employees[employee.ID] = &cp
	return nil
}

// ListEmployees returns all employees ordered by id.
func (s *MemoryStore) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		cp := *emp
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func copyMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
