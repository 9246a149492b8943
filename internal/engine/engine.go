// Package engine validates and applies workflow transitions.
//
// The engine is a decision maker: it never performs I/O for side effects.
// Every mutation is planned against a private copy of the workflow, then
// committed together with its audit entries through the audit log. Work on
// one workflow is serialized; different workflows proceed in parallel.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"hr-lifecycle/backend/internal/audit"
	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/internal/repository"
	"hr-lifecycle/backend/pkg/models"
)

// Logger is the logging surface the engine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Result describes a committed mutation.
type Result struct {
	Instance *Instance
	TaskID   string
	From     models.TaskStatus
	To       models.TaskStatus
	Entries  []models.AuditEntry
	// Unblocked lists dependents that left the blocked state because of this transition.
	Unblocked         []string
	WorkflowCompleted bool
}

// Engine owns workflow mutation.
type Engine struct {
	catalog   *catalog.Catalog
	workflows repository.WorkflowStore
	journal   *audit.Log
	locks     *keyedMutex
	metrics   *metrics
	logger    Logger
	now       func() time.Time
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the uuid generator used for workflow and entry ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the engine logger.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.metrics = newMetrics(mp) }
}

// New creates an Engine. The catalog must already be validated.
func New(cat *catalog.Catalog, workflows repository.WorkflowStore, journal *audit.Log, opts ...Option) *Engine {
	e := &Engine{
		catalog:   cat,
		workflows: workflows,
		journal:   journal,
		locks:     newKeyedMutex(),
		logger:    nopLogger{},
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newMetrics(otel.GetMeterProvider())
	}
	return e
}

// Catalog returns the catalog the engine validates against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

func (e *Engine) stamp() stamp {
	return stamp{now: e.now().UTC().Truncate(time.Millisecond), newID: e.newID}
}

// Create starts a workflow for employeeID on track. No audit entry is
// written: the initial state is fully determined by the track definition.
func (e *Engine) Create(ctx context.Context, employeeID string, track models.Track) (*Instance, error) {
	st := e.stamp()
	in, err := NewInstance(e.catalog, st.newID(), strings.TrimSpace(employeeID), track, st.now)
	if err != nil {
		e.metrics.rejected(ctx, track, err)
		return nil, err
	}
	if err := e.workflows.CreateWorkflow(ctx, in.Workflow.Clone()); err != nil {
		e.logger.Error("failed to create workflow", "workflow_id", in.Workflow.ID, "error", err)
		return nil, &TransitionError{Kind: ErrPersistence, WorkflowID: in.Workflow.ID, Msg: "create", Cause: err}
	}
	e.logger.Info("workflow created", "workflow_id", in.Workflow.ID, "employee_id", employeeID, "track", track)
	return in, nil
}

// Get loads a workflow and binds it to its track.
func (e *Engine) Get(ctx context.Context, workflowID string) (*Instance, error) {
	if strings.TrimSpace(workflowID) == "" {
		return nil, &TransitionError{Kind: ErrInvalidRequest, Msg: "workflow id is required"}
	}
	wf, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &TransitionError{Kind: ErrWorkflowNotFound, WorkflowID: workflowID}
		}
		return nil, &TransitionError{Kind: ErrPersistence, WorkflowID: workflowID, Msg: "load", Cause: err}
	}
	return Bind(e.catalog, wf)
}

// List returns stored workflows matching filter.
func (e *Engine) List(ctx context.Context, filter repository.WorkflowFilter) ([]*models.Workflow, error) {
	out, err := e.workflows.ListWorkflows(ctx, filter)
	if err != nil {
		return nil, &TransitionError{Kind: ErrPersistence, Msg: "list", Cause: err}
	}
	return out, nil
}

// ApplyTransition validates req against the catalog and the current state
// and commits it. When the last required task resolves, the workflow is
// completed in the same commit.
func (e *Engine) ApplyTransition(ctx context.Context, req TransitionRequest) (*Result, error) {
	return e.mutate(ctx, req.WorkflowID, func(in *Instance, st stamp) (*change, error) {
		return planTransition(in, req, st)
	})
}

// Annotate records metadata on a task without changing its status.
func (e *Engine) Annotate(ctx context.Context, req AnnotateRequest) (*Result, error) {
	return e.mutate(ctx, req.WorkflowID, func(in *Instance, st stamp) (*change, error) {
		return planAnnotation(in, req, st)
	})
}

// Cancel moves an active workflow to cancelled. Cancellation is terminal.
func (e *Engine) Cancel(ctx context.Context, workflowID, actor, reason string) (*Result, error) {
	return e.mutate(ctx, workflowID, func(in *Instance, st stamp) (*change, error) {
		return planCancel(in, actor, reason, st)
	})
}

func (e *Engine) mutate(ctx context.Context, workflowID string, plan func(*Instance, stamp) (*change, error)) (*Result, error) {
	unlock := e.locks.Lock(workflowID)
	defer unlock()

	in, err := e.Get(ctx, workflowID)
	if err != nil {
		e.metrics.rejected(ctx, "", err)
		return nil, err
	}
	track := in.Workflow.Track

	ch, err := plan(in, e.stamp())
	if err != nil {
		e.metrics.rejected(ctx, track, err)
		e.logger.Debug("transition rejected", "workflow_id", workflowID, "reason", Reason(err), "error", err)
		return nil, err
	}

	committed, err := e.journal.Append(ctx, ch.next, in.Workflow.Version, ch.entries...)
	if err != nil {
		e.metrics.rejected(ctx, track, err)
		e.logger.Error("failed to commit transition", "workflow_id", workflowID, "task_id", ch.taskID, "error", err)
		return nil, &TransitionError{Kind: ErrPersistence, WorkflowID: workflowID, TaskID: ch.taskID, From: ch.from, To: ch.to, Cause: err}
	}
	ch.next.Version = in.Workflow.Version + int64(len(committed))
	e.metrics.committed(ctx, track, committed)

	e.logger.Info("transition applied",
		"workflow_id", workflowID,
		"task_id", ch.taskID,
		"from", ch.from,
		"to", ch.to,
		"entries", len(committed),
		"workflow_status", ch.next.Status,
	)
	return &Result{
		Instance:          bind(ch.next, in.tasks),
		TaskID:            ch.taskID,
		From:              ch.from,
		To:                ch.to,
		Entries:           committed,
		Unblocked:         ch.unblocked,
		WorkflowCompleted: ch.completed,
	}, nil
}

// History returns the workflow's audit entries in occurrence order.
func (e *Engine) History(ctx context.Context, workflowID string) ([]models.AuditEntry, error) {
	if _, err := e.Get(ctx, workflowID); err != nil {
		return nil, err
	}
	entries, err := e.journal.History(ctx, workflowID)
	if err != nil {
		return nil, &TransitionError{Kind: ErrPersistence, WorkflowID: workflowID, Msg: "history", Cause: err}
	}
	return entries, nil
}

// Verify replays the journal of a workflow and compares the result with the
// stored view. It returns the replayed instance, or ErrReplayMismatch.
func (e *Engine) Verify(ctx context.Context, workflowID string) (*Instance, error) {
	unlock := e.locks.Lock(workflowID)
	defer unlock()

	stored, err := e.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	entries, err := e.journal.History(ctx, workflowID)
	if err != nil {
		return nil, &TransitionError{Kind: ErrPersistence, WorkflowID: workflowID, Msg: "history", Cause: err}
	}
	replayed, err := Replay(e.catalog, stored.Workflow, entries)
	if err != nil {
		return nil, err
	}
	if diffs := diffWorkflows(stored.Workflow, replayed.Workflow); len(diffs) > 0 {
		e.logger.Warn("replay mismatch", "workflow_id", workflowID, "diffs", diffs)
		return replayed, replayMismatch(stored.Workflow, "%s", strings.Join(diffs, "; "))
	}
	return replayed, nil
}
