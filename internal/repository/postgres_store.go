package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"hr-lifecycle/backend/internal/repository/migrations"
	"hr-lifecycle/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of Repository.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore over an open pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded PostgreSQL migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return applyPgxMigrations(ctx, s.db, migrations.Postgres, "postgres")
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// CreateWorkflow inserts a new workflow row.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	if wf == nil || strings.TrimSpace(wf.ID) == "" {
		return fmt.Errorf("workflow id is required")
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (id, employee_id, track, status, started_at, completed_at, version, tasks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.EmployeeID, string(wf.Track), string(wf.Status), wf.StartedAt.UTC(), utcPtr(wf.CompletedAt), wf.Version, wf.Tasks,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("create workflow %s: %w", wf.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

const pgWorkflowColumns = `id, employee_id, track, status, started_at, completed_at, version, tasks`

func scanPgWorkflow(row pgx.Row) (*models.Workflow, error) {
	var (
		wf     models.Workflow
		track  string
		status string
	)
	if err := row.Scan(&wf.ID, &wf.EmployeeID, &track, &status, &wf.StartedAt, &wf.CompletedAt, &wf.Version, &wf.Tasks); err != nil {
		return nil, err
	}
	wf.Track = models.Track(track)
	wf.Status = models.WorkflowStatus(status)
	wf.StartedAt = wf.StartedAt.UTC()
	wf.CompletedAt = utcPtr(wf.CompletedAt)
	for id, st := range wf.Tasks {
		st.CompletedAt = utcPtr(st.CompletedAt)
		wf.Tasks[id] = st
	}
	return &wf, nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	wf, err := scanPgWorkflow(s.db.QueryRow(ctx, `SELECT `+pgWorkflowColumns+` FROM workflows WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// ListWorkflows returns matching workflows, newest first.
func (s *PostgresStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*models.Workflow, error) {
	query := `SELECT ` + pgWorkflowColumns + ` FROM workflows WHERE TRUE`
	var args []any
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += fmt.Sprintf(` AND employee_id = $%d`, len(args))
	}
	if filter.Track != "" {
		args = append(args, string(filter.Track))
		query += fmt.Sprintf(` AND track = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY started_at DESC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanPgWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// CommitEntries appends entries and updates the snapshot in one transaction.
func (s *PostgresStore) CommitEntries(ctx context.Context, wf *models.Workflow, expectedVersion int64, entries []models.AuditEntry) ([]models.AuditEntry, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow is required")
	}
	var committed []models.AuditEntry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE workflows SET status = $1, completed_at = $2, version = $3, tasks = $4
			 WHERE id = $5 AND version = $6`,
			string(wf.Status), utcPtr(wf.CompletedAt), expectedVersion+int64(len(entries)), wf.Tasks, wf.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var current int64
			err := tx.QueryRow(ctx, `SELECT version FROM workflows WHERE id = $1`, wf.ID).Scan(&current)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("workflow %s: %w", wf.ID, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("read workflow version: %w", err)
			}
			return fmt.Errorf("workflow %s at version %d, expected %d: %w", wf.ID, current, expectedVersion, ErrVersionConflict)
		}

		batch := &pgx.Batch{}
		committed = make([]models.AuditEntry, len(entries))
		for i, entry := range entries {
			entry.WorkflowID = wf.ID
			entry.Seq = uint64(expectedVersion) + uint64(i) + 1
			if entry.Timestamp.IsZero() {
				entry.Timestamp = time.Now().UTC()
			}
			entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)
			batch.Queue(
				`INSERT INTO audit_entries (workflow_id, seq, id, task_id, from_status, to_status, actor, override, occurred_at, note, metadata)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				entry.WorkflowID, int64(entry.Seq), entry.ID, entry.TaskID, entry.FromStatus, entry.ToStatus,
				entry.Actor, entry.Override, entry.Timestamp, entry.Note, nonNilMetadata(entry.Metadata),
			)
			committed[i] = entry
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if isPgUniqueViolation(err) {
				return fmt.Errorf("append audit entries: %w", ErrVersionConflict)
			}
			return fmt.Errorf("append audit entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// ListAuditEntries pages through a workflow's journal in Seq order.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, workflowID string, afterSeq uint64, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.db.Query(ctx,
		`SELECT workflow_id, seq, id, task_id, from_status, to_status, actor, override, occurred_at, note, metadata
		 FROM audit_entries WHERE workflow_id = $1 AND seq > $2 ORDER BY seq LIMIT $3`,
		workflowID, int64(afterSeq), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			entry models.AuditEntry
			seq   int64
		)
		if err := rows.Scan(&entry.WorkflowID, &seq, &entry.ID, &entry.TaskID, &entry.FromStatus, &entry.ToStatus,
			&entry.Actor, &entry.Override, &entry.Timestamp, &entry.Note, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Seq = uint64(seq)
		entry.Timestamp = entry.Timestamp.UTC()
		if len(entry.Metadata) == 0 {
			entry.Metadata = nil
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

const pgEmployeeColumns = `id, first_name, last_name, email, department, designation, employee_type,
	reporting_manager, manager_email, status, created_at, updated_at`

func scanPgEmployee(row pgx.Row) (*models.Employee, error) {
	var (
		emp     models.Employee
		empType string
	)
	if err := row.Scan(&emp.ID, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Department, &emp.Designation,
		&empType, &emp.ReportingManager, &emp.ManagerEmail, &emp.Status, &emp.CreatedAt, &emp.UpdatedAt); err != nil {
		return nil, err
	}
	emp.EmployeeType = models.EmployeeType(empType)
	emp.CreatedAt = emp.CreatedAt.UTC()
	emp.UpdatedAt = emp.UpdatedAt.UTC()
	return &emp, nil
}

// GetEmployee returns one directory record.
func (s *PostgresStore) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	emp, err := scanPgEmployee(s.db.QueryRow(ctx, `SELECT `+pgEmployeeColumns+` FROM employees WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("employee %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return emp, nil
}

// PutEmployee inserts or replaces a directory record.
func (s *PostgresStore) PutEmployee(ctx context.Context, emp *models.Employee) error {
	if emp == nil || strings.TrimSpace(emp.ID) == "" {
		return fmt.Errorf("employee id is required")
	}
	createdAt, updatedAt := employeeTimes(emp)
	_, err := s.db.Exec(ctx,
		`INSERT INTO employees (`+pgEmployeeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   email = EXCLUDED.email,
		   department = EXCLUDED.department,
		   designation = EXCLUDED.designation,
		   employee_type = EXCLUDED.employee_type,
		   reporting_manager = EXCLUDED.reporting_manager,
		   manager_email = EXCLUDED.manager_email,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		emp.ID, emp.FirstName, emp.LastName, emp.Email, emp.Department, emp.Designation, string(emp.EmployeeType),
		emp.ReportingManager, emp.ManagerEmail, emp.Status, createdAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("put employee: %w", err)
	}
	return nil
}

// ListEmployees returns the directory ordered by id.
func (s *PostgresStore) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pgEmployeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()
	var out []*models.Employee
	for rows.Next() {
		emp, err := scanPgEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
