package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-lifecycle/backend/pkg/models"
)

var contractStart = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func newContractWorkflow(id, employeeID string, offset time.Duration) *models.Workflow {
	return &models.Workflow{
		ID:         id,
		EmployeeID: employeeID,
		Track:      models.TrackOnboardingIntern,
		Status:     models.WorkflowActive,
		StartedAt:  contractStart.Add(offset),
		Tasks: map[string]models.TaskState{
			"collect_docs": {TaskID: "collect_docs", Status: models.TaskPending},
			"verify_docs":  {TaskID: "verify_docs", Status: models.TaskPending},
		},
	}
}

func contractEntry(wfID, taskID string, from, to models.TaskStatus, at time.Time) models.AuditEntry {
	return models.AuditEntry{
		ID:         fmt.Sprintf("%s-%s-%s-%d", wfID, taskID, to, at.UnixMilli()),
		WorkflowID: wfID,
		TaskID:     taskID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Actor:      "hr@example.com",
		Timestamp:  at,
		Metadata:   map[string]string{"doc_ref": "drive://docs/" + taskID},
	}
}

// runStoreContract exercises the Repository contract against any backend.
func runStoreContract(t *testing.T, store Repository) {
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("create and get workflow", func(t *testing.T) {
		wf := newContractWorkflow("wf-create", "emp-1", 0)
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.EmployeeID, got.EmployeeID)
		assert.Equal(t, wf.Track, got.Track)
		assert.Equal(t, wf.Status, got.Status)
		assert.True(t, wf.StartedAt.Equal(got.StartedAt))
		assert.Nil(t, got.CompletedAt)
		assert.Equal(t, wf.Tasks, got.Tasks)

		assert.ErrorIs(t, store.CreateWorkflow(ctx, wf), ErrAlreadyExists)
		_, err = store.GetWorkflow(ctx, "wf-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("commit entries assigns seq and swaps snapshot", func(t *testing.T) {
		wf := newContractWorkflow("wf-commit", "emp-2", time.Minute)
		require.NoError(t, store.CreateWorkflow(ctx, wf))

		at := contractStart.Add(time.Hour)
		next := wf.Clone()
		done := at
		next.Tasks["collect_docs"] = models.TaskState{
			TaskID: "collect_docs", Status: models.TaskCompleted, CompletedAt: &done,
			Actor: "hr@example.com", Metadata: map[string]string{"doc_ref": "drive://docs/collect_docs"},
		}
		committed, err := store.CommitEntries(ctx, next, 0, []models.AuditEntry{
			contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskCompleted, at),
		})
		require.NoError(t, err)
		require.Len(t, committed, 1)
		assert.Equal(t, uint64(1), committed[0].Seq)

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Version)
		st := got.Tasks["collect_docs"]
		assert.Equal(t, models.TaskCompleted, st.Status)
		require.NotNil(t, st.CompletedAt)
		assert.True(t, done.Equal(*st.CompletedAt))
		assert.Equal(t, "drive://docs/collect_docs", st.Metadata["doc_ref"])

		closing := got.Clone()
		closedAt := at.Add(time.Minute)
		closing.Status = models.WorkflowCompleted
		closing.CompletedAt = &closedAt
		workflowEntry := models.AuditEntry{
			ID: "wf-commit-close", WorkflowID: wf.ID, FromStatus: "active", ToStatus: "completed",
			Actor: "hr@example.com", Timestamp: closedAt, Note: "all required tasks resolved",
		}
		committed, err = store.CommitEntries(ctx, closing, 1, []models.AuditEntry{
			contractEntry(wf.ID, "verify_docs", models.TaskPending, models.TaskSkipped, closedAt),
			workflowEntry,
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 3}, []uint64{committed[0].Seq, committed[1].Seq})

		got, err = store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowCompleted, got.Status)
		require.NotNil(t, got.CompletedAt)
		assert.True(t, closedAt.Equal(*got.CompletedAt))
		assert.Equal(t, int64(3), got.Version)

		entries, err := store.ListAuditEntries(ctx, wf.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		last := entries[2]
		assert.True(t, last.IsWorkflowLevel())
		assert.Equal(t, "all required tasks resolved", last.Note)
		assert.Nil(t, last.Metadata)
		assert.True(t, closedAt.Equal(last.Timestamp))
		assert.Equal(t, "drive://docs/collect_docs", entries[0].Metadata["doc_ref"])
	})

	t.Run("version conflict applies nothing", func(t *testing.T) {
		wf := newContractWorkflow("wf-conflict", "emp-3", 2*time.Minute)
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		at := contractStart.Add(2 * time.Hour)

		_, err := store.CommitEntries(ctx, wf.Clone(), 0, []models.AuditEntry{
			contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskInProgress, at),
		})
		require.NoError(t, err)

		stale := wf.Clone()
		stale.Status = models.WorkflowCancelled
		_, err = store.CommitEntries(ctx, stale, 0, []models.AuditEntry{
			contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskFailed, at.Add(time.Second)),
		})
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowActive, got.Status)
		entries, err := store.ListAuditEntries(ctx, wf.ID, 0, 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		_, err = store.CommitEntries(ctx, newContractWorkflow("wf-ghost", "emp-3", 0), 0, []models.AuditEntry{
			contractEntry("wf-ghost", "collect_docs", models.TaskPending, models.TaskInProgress, at),
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent commits at the same version", func(t *testing.T) {
		wf := newContractWorkflow("wf-race", "emp-4", 3*time.Minute)
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		at := contractStart.Add(3 * time.Hour)

		const writers = 8
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				entry := contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskCompleted, at)
				entry.ID = fmt.Sprintf("race-%d", i)
				_, errs[i] = store.CommitEntries(ctx, wf.Clone(), 0, []models.AuditEntry{entry})
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
		assert.Equal(t, 1, succeeded)
		entries, err := store.ListAuditEntries(ctx, wf.ID, 0, 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("list audit entries pages", func(t *testing.T) {
		wf := newContractWorkflow("wf-pages", "emp-5", 4*time.Minute)
		require.NoError(t, store.CreateWorkflow(ctx, wf))
		at := contractStart.Add(4 * time.Hour)
		steps := []models.TaskStatus{models.TaskInProgress, models.TaskFailed, models.TaskInProgress, models.TaskCompleted}
		from := models.TaskPending
		for i, to := range steps {
			_, err := store.CommitEntries(ctx, wf.Clone(), int64(i), []models.AuditEntry{
				contractEntry(wf.ID, "collect_docs", from, to, at.Add(time.Duration(i)*time.Second)),
			})
			require.NoError(t, err)
			from = to
		}

		page, err := store.ListAuditEntries(ctx, wf.ID, 0, 3)
		require.NoError(t, err)
		require.Len(t, page, 3)
		rest, err := store.ListAuditEntries(ctx, wf.ID, page[2].Seq, 3)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, uint64(4), rest[0].Seq)

		_, err = store.ListAuditEntries(ctx, wf.ID, 0, 0)
		assert.Error(t, err)
	})

	t.Run("list workflows filters and orders", func(t *testing.T) {
		all, err := store.ListWorkflows(ctx, WorkflowFilter{})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 5)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].StartedAt.After(all[i-1].StartedAt))
		}

		byEmployee, err := store.ListWorkflows(ctx, WorkflowFilter{EmployeeID: "emp-2"})
		require.NoError(t, err)
		require.Len(t, byEmployee, 1)
		assert.Equal(t, "wf-commit", byEmployee[0].ID)

		completed, err := store.ListWorkflows(ctx, WorkflowFilter{Status: models.WorkflowCompleted})
		require.NoError(t, err)
		require.Len(t, completed, 1)

		limited, err := store.ListWorkflows(ctx, WorkflowFilter{Track: models.TrackOnboardingIntern, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("employees", func(t *testing.T) {
		emp := &models.Employee{
			ID: "emp-100", FirstName: "Meera", LastName: "Nair", Email: "meera@example.com",
			Department: "Finance", Designation: "Accountant", EmployeeType: models.EmployeeIntern,
			ReportingManager: "Ravi Kumar", ManagerEmail: "ravi@example.com", Status: "onboarding",
		}
		require.NoError(t, store.PutEmployee(ctx, emp))
		got, err := store.GetEmployee(ctx, emp.ID)
		require.NoError(t, err)
		assert.Equal(t, "Meera Nair", got.FullName())
		assert.Equal(t, models.EmployeeIntern, got.EmployeeType)
		assert.Equal(t, "ravi@example.com", got.ManagerEmail)

		emp.Status = "active"
		require.NoError(t, store.PutEmployee(ctx, emp))
		got, err = store.GetEmployee(ctx, emp.ID)
		require.NoError(t, err)
		assert.Equal(t, "active", got.Status)

		list, err := store.ListEmployees(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = store.GetEmployee(ctx, "emp-missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Error(t, store.PutEmployee(ctx, &models.Employee{}))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_FailCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	wf := newContractWorkflow("wf-1", "emp-1", 0)
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	store.FailCommits(assert.AnError)
	_, err := store.CommitEntries(ctx, wf.Clone(), 0, []models.AuditEntry{
		contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskInProgress, contractStart),
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Version)
}

func TestMemoryStore_FailCommitsAfter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	wf := newContractWorkflow("wf-1", "emp-1", 0)
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	store.FailCommitsAfter(1, assert.AnError)
	_, err := store.CommitEntries(ctx, wf.Clone(), 0, []models.AuditEntry{
		contractEntry(wf.ID, "collect_docs", models.TaskPending, models.TaskInProgress, contractStart),
	})
	require.NoError(t, err)
	_, err = store.CommitEntries(ctx, wf.Clone(), 1, []models.AuditEntry{
		contractEntry(wf.ID, "collect_docs", models.TaskInProgress, models.TaskCompleted, contractStart),
	})
	assert.ErrorIs(t, err, assert.AnError)

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	wf := newContractWorkflow("wf-1", "emp-1", 0)
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	got.Tasks["collect_docs"] = models.TaskState{TaskID: "collect_docs", Status: models.TaskCompleted}

	again, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, again.Tasks["collect_docs"].Status)
}
