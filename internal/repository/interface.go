package repository

import (
	"context"
	"errors"

	"hr-lifecycle/backend/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict is returned when a commit races another writer of the same workflow.
	ErrVersionConflict = errors.New("workflow version conflict")
)

// WorkflowFilter narrows ListWorkflows. Zero values match everything.
type WorkflowFilter struct {
	EmployeeID string
	Track      models.Track
	Status     models.WorkflowStatus
	Limit      int
}

// WorkflowStore persists workflow instances.
type WorkflowStore interface {
	// CreateWorkflow stores a freshly instantiated workflow with Version 0.
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	// GetWorkflow returns the materialized workflow.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	// ListWorkflows returns workflows ordered by start time, newest first.
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error)
}

// AuditStore persists the append-only audit journal.
type AuditStore interface {
	// CommitEntries appends entries and replaces the workflow snapshot in one
	// transaction. It fails with ErrVersionConflict unless the stored version
	// equals expectedVersion. Entries are returned with Seq assigned.
	CommitEntries(ctx context.Context, wf *models.Workflow, expectedVersion int64, entries []models.AuditEntry) ([]models.AuditEntry, error)
	// ListAuditEntries returns up to limit entries with Seq > afterSeq in Seq order.
	ListAuditEntries(ctx context.Context, workflowID string, afterSeq uint64, limit int) ([]models.AuditEntry, error)
}

// EmployeeStore backs the read-only employee directory.
type EmployeeStore interface {
	GetEmployee(ctx context.Context, id string) (*models.Employee, error)
	PutEmployee(ctx context.Context, employee *models.Employee) error
	ListEmployees(ctx context.Context) ([]*models.Employee, error)
}

// Repository is the full persistence backend.
type Repository interface {
	WorkflowStore
	AuditStore
	EmployeeStore
	Ping(ctx context.Context) error
	Close() error
}
