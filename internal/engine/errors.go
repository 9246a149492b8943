package engine

import (
	"errors"
	"fmt"
	"strings"

	"hr-lifecycle/backend/internal/audit"
	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/pkg/models"
)

var (
	ErrUnknownTask            = errors.New("unknown task")
	ErrIllegalTransition      = errors.New("illegal transition")
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")
	ErrWorkflowNotActive      = errors.New("workflow not active")
	ErrWorkflowNotFound       = errors.New("workflow not found")
	ErrInvalidRequest         = errors.New("invalid request")
	// ErrReplayMismatch is returned by Verify when the journal does not reproduce the stored view.
	ErrReplayMismatch = errors.New("replay mismatch")

	ErrPersistence  = audit.ErrPersistence
	ErrUnknownTrack = catalog.ErrUnknownTrack
)

// TransitionError carries the context of a rejected engine operation.
// errors.Is matches both Kind and Cause.
type TransitionError struct {
	Kind       error
	WorkflowID string
	TaskID     string
	From       models.TaskStatus
	To         models.TaskStatus
	Msg        string
	Cause      error
}

func (e *TransitionError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.WorkflowID != "" {
		fmt.Fprintf(&b, ": workflow %s", e.WorkflowID)
	}
	if e.TaskID != "" {
		fmt.Fprintf(&b, " task %s", e.TaskID)
	}
	if e.From != "" || e.To != "" {
		fmt.Fprintf(&b, " (%s -> %s)", e.From, e.To)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *TransitionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Reason returns a short machine-readable name for the error kind.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownTrack):
		return "unknown_track"
	case errors.Is(err, ErrUnknownTask):
		return "unknown_task"
	case errors.Is(err, ErrWorkflowNotFound):
		return "workflow_not_found"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrDependencyNotSatisfied):
		return "dependency_not_satisfied"
	case errors.Is(err, ErrWorkflowNotActive):
		return "workflow_not_active"
	case errors.Is(err, ErrReplayMismatch):
		return "replay_mismatch"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}

func rejectf(kind error, wf *models.Workflow, taskID string, from, to models.TaskStatus, format string, args ...any) error {
	e := &TransitionError{Kind: kind, TaskID: taskID, From: from, To: to, Msg: fmt.Sprintf(format, args...)}
	if wf != nil {
		e.WorkflowID = wf.ID
	}
	return e
}
