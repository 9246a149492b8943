// Package audit owns the append-only workflow journal.
//
// Log is the only component that writes audit entries. Every write also
// carries the workflow snapshot the entries produce, so the journal and the
// materialized view are committed together by the store.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hr-lifecycle/backend/pkg/models"
)

// ErrPersistence marks a storage failure while reading or appending the journal.
var ErrPersistence = errors.New("persistence error")

// DefaultPageSize is the number of entries read per store round trip.
const DefaultPageSize = 200

// Store is the persistence contract the journal needs.
type Store interface {
	CommitEntries(ctx context.Context, wf *models.Workflow, expectedVersion int64, entries []models.AuditEntry) ([]models.AuditEntry, error)
	ListAuditEntries(ctx context.Context, workflowID string, afterSeq uint64, limit int) ([]models.AuditEntry, error)
}

// Log appends and reads audit entries.
type Log struct {
	store    Store
	pageSize int
}

// Option configures a Log.
type Option func(*Log)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// NewLog creates a Log over store.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{store: store, pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append commits entries together with the snapshot they produce. The store
// rejects the write if the workflow moved past expectedVersion. Any store
// failure is reported as ErrPersistence and nothing is applied.
func (l *Log) Append(ctx context.Context, snapshot *models.Workflow, expectedVersion int64, entries ...models.AuditEntry) ([]models.AuditEntry, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("%w: audit log is not configured", ErrPersistence)
	}
	if snapshot == nil || strings.TrimSpace(snapshot.ID) == "" {
		return nil, fmt.Errorf("append: workflow snapshot is required")
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("append %s: no entries", snapshot.ID)
	}
	for i, entry := range entries {
		if entry.WorkflowID != snapshot.ID {
			return nil, fmt.Errorf("append %s: entry %d belongs to workflow %q", snapshot.ID, i, entry.WorkflowID)
		}
		if strings.TrimSpace(entry.Actor) == "" {
			return nil, fmt.Errorf("append %s: entry %d has no actor", snapshot.ID, i)
		}
		if entry.Seq != 0 {
			return nil, fmt.Errorf("append %s: entry %d already has seq %d", snapshot.ID, i, entry.Seq)
		}
	}

	committed, err := l.store.CommitEntries(ctx, snapshot, expectedVersion, entries)
	if err != nil {
		return nil, fmt.Errorf("%w: append %s: %w", ErrPersistence, snapshot.ID, err)
	}
	return committed, nil
}

// Walk streams entries with Seq > afterSeq to fn in occurrence order, one
// page at a time. It stops at the first error returned by fn.
func (l *Log) Walk(ctx context.Context, workflowID string, afterSeq uint64, fn func(models.AuditEntry) error) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("%w: audit log is not configured", ErrPersistence)
	}
	if fn == nil {
		return fmt.Errorf("walk: callback is required")
	}
	cursor := afterSeq
	for {
		page, err := l.store.ListAuditEntries(ctx, workflowID, cursor, l.pageSize)
		if err != nil {
			return fmt.Errorf("%w: history %s: %w", ErrPersistence, workflowID, err)
		}
		for _, entry := range page {
			if entry.Seq <= cursor {
				return fmt.Errorf("%w: history %s: seq %d out of order after %d", ErrPersistence, workflowID, entry.Seq, cursor)
			}
			if err := fn(entry); err != nil {
				return err
			}
			cursor = entry.Seq
		}
		if len(page) < l.pageSize {
			return nil
		}
	}
}

// History returns every entry of a workflow in occurrence order.
func (l *Log) History(ctx context.Context, workflowID string) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	err := l.Walk(ctx, workflowID, 0, func(entry models.AuditEntry) error {
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
