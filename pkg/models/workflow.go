package models

import (
	"time"
)

// Track names a lifecycle path with its own task catalog.
type Track string

const (
	TrackOnboardingFullTime   Track = "onboarding-full-time"
	TrackOnboardingIntern     Track = "onboarding-intern"
	TrackOnboardingContractor Track = "onboarding-contractor"
	TrackOffboarding          Track = "offboarding"
)

// IsOnboarding reports whether the track belongs to the onboarding family.
func (t Track) IsOnboarding() bool {
	switch t {
	case TrackOnboardingFullTime, TrackOnboardingIntern, TrackOnboardingContractor:
		return true
	default:
		return false
	}
}

// TaskStatus is the stored status of a single task.
//
// TaskBlocked is never stored; it is derived for pending tasks whose
// dependencies are not yet satisfied.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskBlocked    TaskStatus = "blocked"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskSkipped    TaskStatus = "skipped"
	TaskFailed     TaskStatus = "failed"
)

// IsValid reports whether s is one of the known task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskBlocked, TaskInProgress, TaskCompleted, TaskSkipped, TaskFailed:
		return true
	default:
		return false
	}
}

// SatisfiesDependency reports whether a dependency in this status unblocks its dependents.
func (s TaskStatus) SatisfiesDependency() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// WorkflowStatus is the lifecycle status of a workflow instance.
type WorkflowStatus string

const (
	WorkflowActive    WorkflowStatus = "active"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// TaskState is the mutable state of one task inside a workflow instance.
type TaskState struct {
	TaskID      string            `json:"task_id"`
	Status      TaskStatus        `json:"status"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Actor       string            `json:"actor,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the task state.
func (s TaskState) Clone() TaskState {
	out := s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Workflow is a single employee's run through a track.
//
// Tasks is a materialized view of the audit history; Version counts the
// audit entries applied to it and is used for optimistic concurrency in
// the persistence layer.
type Workflow struct {
	ID          string               `json:"id"`
	EmployeeID  string               `json:"employee_id"`
	Track       Track                `json:"track"`
	Status      WorkflowStatus       `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Version     int64                `json:"version"`
	Tasks       map[string]TaskState `json:"tasks"`
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		out.CompletedAt = &t
	}
	out.Tasks = make(map[string]TaskState, len(w.Tasks))
	for id, st := range w.Tasks {
		out.Tasks[id] = st.Clone()
	}
	return &out
}

// AuditEntry is an immutable record of one transition or annotation.
//
// TaskID is empty for workflow-level events. Seq is assigned by the store
// on append and starts at 1 for each workflow.
type AuditEntry struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflow_id"`
	Seq        uint64            `json:"seq"`
	TaskID     string            `json:"task_id,omitempty"`
	FromStatus string            `json:"from_status"`
	ToStatus   string            `json:"to_status"`
	Actor      string            `json:"actor"`
	Override   bool              `json:"override,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Note       string            `json:"note,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IsWorkflowLevel reports whether the entry records a workflow status change.
func (e AuditEntry) IsWorkflowLevel() bool { return e.TaskID == "" }

// IsAnnotation reports whether the entry records metadata without a status change.
func (e AuditEntry) IsAnnotation() bool {
	return e.TaskID != "" && e.FromStatus == e.ToStatus
}

// IntentKind identifies the collaborator that must execute an intent.
type IntentKind string

const (
	IntentSendEmail      IntentKind = "send_email"
	IntentGenerateLetter IntentKind = "generate_letter"
	IntentExternalNotify IntentKind = "external_notify"
)

// IsValid reports whether k is a known intent kind.
func (k IntentKind) IsValid() bool {
	switch k {
	case IntentSendEmail, IntentGenerateLetter, IntentExternalNotify:
		return true
	default:
		return false
	}
}

// Intent describes an external action the caller must perform.
//
// ID is derived from the triggering audit entry, so collaborators can use it
// as an idempotency key.
type Intent struct {
	ID         string            `json:"id"`
	Kind       IntentKind        `json:"kind"`
	TemplateID string            `json:"template_id"`
	WorkflowID string            `json:"workflow_id"`
	TaskID     string            `json:"task_id"`
	Trigger    TaskStatus        `json:"trigger"`
	Payload    map[string]string `json:"payload"`
}
