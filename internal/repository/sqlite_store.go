package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"hr-lifecycle/backend/internal/repository/migrations"
	"hr-lifecycle/backend/pkg/models"
)

// SQLiteStore persists workflows, the audit journal and the employee
// directory in a single SQLite file.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens the database at path and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps write transactions from contending for the file lock.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySQLMigrations(ctx, sqlDB, migrations.SQLite, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.sqlDB.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateWorkflow inserts a new workflow row.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if wf == nil || strings.TrimSpace(wf.ID) == "" {
		return fmt.Errorf("workflow id is required")
	}
	tasks, err := json.Marshal(wf.Tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO workflows (id, employee_id, track, status, started_at, completed_at, version, tasks_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.EmployeeID, string(wf.Track), string(wf.Status),
		toMillis(wf.StartedAt), nullableMillis(wf.CompletedAt), wf.Version, string(tasks),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create workflow %s: %w", wf.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

const workflowColumns = `id, employee_id, track, status, started_at, completed_at, version, tasks_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		wf          models.Workflow
		track       string
		status      string
		startedAt   int64
		completedAt sql.NullInt64
		tasks       string
	)
	if err := row.Scan(&wf.ID, &wf.EmployeeID, &track, &status, &startedAt, &completedAt, &wf.Version, &tasks); err != nil {
		return nil, err
	}
	wf.Track = models.Track(track)
	wf.Status = models.WorkflowStatus(status)
	wf.StartedAt = fromMillis(startedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		wf.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(tasks), &wf.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks of workflow %s: %w", wf.ID, err)
	}
	return &wf, nil
}

// GetWorkflow returns one workflow by id.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// ListWorkflows returns matching workflows, newest first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE 1 = 1`
	var args []any
	if filter.EmployeeID != "" {
		query += ` AND employee_id = ?`
		args = append(args, filter.EmployeeID)
	}
	if filter.Track != "" {
		query += ` AND track = ?`
		args = append(args, string(filter.Track))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return out, nil
}

// CommitEntries appends entries and updates the snapshot in one transaction.
// The conditional version update serializes concurrent writers.
func (s *SQLiteStore) CommitEntries(ctx context.Context, wf *models.Workflow, expectedVersion int64, entries []models.AuditEntry) ([]models.AuditEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	tasks, err := json.Marshal(wf.Tasks)
	if err != nil {
		return nil, fmt.Errorf("encode tasks: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	newVersion := expectedVersion + int64(len(entries))
	res, err := tx.ExecContext(ctx,
		`UPDATE workflows SET status = ?, completed_at = ?, version = ?, tasks_json = ?
		 WHERE id = ? AND version = ?`,
		string(wf.Status), nullableMillis(wf.CompletedAt), newVersion, string(tasks), wf.ID, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	if affected == 0 {
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM workflows WHERE id = ?`, wf.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("read workflow version: %w", err)
		}
		return nil, fmt.Errorf("workflow %s at version %d, expected %d: %w", wf.ID, current, expectedVersion, ErrVersionConflict)
	}

	committed := make([]models.AuditEntry, len(entries))
	for i, entry := range entries {
		entry.WorkflowID = wf.ID
		entry.Seq = uint64(expectedVersion) + uint64(i) + 1
		if entry.Timestamp.IsZero() {
			entry.Timestamp = time.Now().UTC()
		}
		meta, err := json.Marshal(nonNilMetadata(entry.Metadata))
		if err != nil {
			return nil, fmt.Errorf("encode entry metadata: %w", err)
		}
		override := 0
		if entry.Override {
			override = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_entries (workflow_id, seq, id, task_id, from_status, to_status, actor, override, occurred_at, note, metadata_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.WorkflowID, int64(entry.Seq), entry.ID, entry.TaskID, entry.FromStatus, entry.ToStatus,
			entry.Actor, override, toMillis(entry.Timestamp), entry.Note, string(meta),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("append seq %d: %w", entry.Seq, ErrVersionConflict)
			}
			return nil, fmt.Errorf("append audit entry: %w", err)
		}
		entry.Timestamp = fromMillis(toMillis(entry.Timestamp))
		committed[i] = entry
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return committed, nil
}

// ListAuditEntries pages through a workflow's journal in Seq order.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, workflowID string, afterSeq uint64, limit int) ([]models.AuditEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT workflow_id, seq, id, task_id, from_status, to_status, actor, override, occurred_at, note, metadata_json
		 FROM audit_entries WHERE workflow_id = ? AND seq > ? ORDER BY seq LIMIT ?`,
		workflowID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			entry      models.AuditEntry
			seq        int64
			override   int
			occurredAt int64
			meta       string
		)
		if err := rows.Scan(&entry.WorkflowID, &seq, &entry.ID, &entry.TaskID, &entry.FromStatus, &entry.ToStatus,
			&entry.Actor, &override, &occurredAt, &entry.Note, &meta); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.Override = override != 0
		entry.Timestamp = fromMillis(occurredAt)
		if err := json.Unmarshal([]byte(meta), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("decode entry metadata: %w", err)
		}
		if len(entry.Metadata) == 0 {
			entry.Metadata = nil
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

const employeeColumns = `id, first_name, last_name, email, department, designation, employee_type,
	reporting_manager, manager_email, status, created_at, updated_at`

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var (
		emp       models.Employee
		empType   string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&emp.ID, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Department, &emp.Designation,
		&empType, &emp.ReportingManager, &emp.ManagerEmail, &emp.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	emp.EmployeeType = models.EmployeeType(empType)
	emp.CreatedAt = fromMillis(createdAt)
	emp.UpdatedAt = fromMillis(updatedAt)
	return &emp, nil
}

// GetEmployee returns one directory record.
func (s *SQLiteStore) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	emp, err := scanEmployee(s.sqlDB.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("employee %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

// PutEmployee inserts or replaces a directory record.
func (s *SQLiteStore) PutEmployee(ctx context.Context, emp *models.Employee) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if emp == nil || strings.TrimSpace(emp.ID) == "" {
		return fmt.Errorf("employee id is required")
	}
	createdAt, updatedAt := employeeTimes(emp)
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO employees (`+employeeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   email = excluded.email,
		   department = excluded.department,
		   designation = excluded.designation,
		   employee_type = excluded.employee_type,
		   reporting_manager = excluded.reporting_manager,
		   manager_email = excluded.manager_email,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		emp.ID, emp.FirstName, emp.LastName, emp.Email, emp.Department, emp.Designation, string(emp.EmployeeType),
		emp.ReportingManager, emp.ManagerEmail, emp.Status, toMillis(createdAt), toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put employee: %w", err)
	}
	return nil
}

// ListEmployees returns the directory ordered by id.
func (s *SQLiteStore) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()
	var out []*models.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func employeeTimes(emp *models.Employee) (time.Time, time.Time) {
	createdAt := emp.CreatedAt.UTC()
	updatedAt := emp.UpdatedAt.UTC()
	if createdAt.IsZero() && updatedAt.IsZero() {
		createdAt = time.Now().UTC()
		updatedAt = createdAt
	}
	if createdAt.IsZero() {
		createdAt = updatedAt
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return createdAt, updatedAt
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
