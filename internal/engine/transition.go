package engine

import (
	"strings"
	"time"

	"hr-lifecycle/backend/pkg/models"
)

// TransitionRequest asks the engine to move one task to a new status.
type TransitionRequest struct {
	WorkflowID string            `json:"workflow_id"`
	TaskID     string            `json:"task_id"`
	To         models.TaskStatus `json:"to"`
	Actor      string            `json:"actor"`
	// Override is recorded as given; authorizing it is the caller's job.
	Override bool              `json:"override,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Note     string            `json:"note,omitempty"`
}

// AnnotateRequest attaches metadata to a task without changing its status.
type AnnotateRequest struct {
	WorkflowID string            `json:"workflow_id"`
	TaskID     string            `json:"task_id"`
	Actor      string            `json:"actor"`
	Note       string            `json:"note,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CompletionNote is recorded on the workflow-level entry that closes a workflow.
const CompletionNote = "all required tasks resolved"

type stamp struct {
	now   time.Time
	newID func() string
}

// change is a validated mutation: the entries to journal and the snapshot they produce.
type change struct {
	next      *models.Workflow
	entries   []models.AuditEntry
	taskID    string
	from      models.TaskStatus
	to        models.TaskStatus
	unblocked []string
	completed bool
}

func planTransition(in *Instance, req TransitionRequest, st stamp) (*change, error) {
	wf := in.Workflow
	if strings.TrimSpace(req.Actor) == "" {
		return nil, rejectf(ErrInvalidRequest, wf, req.TaskID, "", req.To, "actor is required")
	}
	if wf.Status != models.WorkflowActive {
		return nil, rejectf(ErrWorkflowNotActive, wf, req.TaskID, "", req.To, "workflow is %s", wf.Status)
	}
	cur, err := in.CurrentState(req.TaskID)
	if err != nil {
		return nil, err
	}
	if !isAllowedTransition(cur.Status, req.To) {
		return nil, rejectf(ErrIllegalTransition, wf, req.TaskID, cur.Status, req.To, "not a legal successor")
	}
	if req.To == models.TaskSkipped && !req.Override {
		return nil, rejectf(ErrIllegalTransition, wf, req.TaskID, cur.Status, req.To, "skipping requires an override")
	}
	if requiresDependencies(req.To) {
		if unmet := in.UnmetDependencies(req.TaskID); len(unmet) > 0 {
			return nil, rejectf(ErrDependencyNotSatisfied, wf, req.TaskID, cur.Status, req.To, "waiting on %s", strings.Join(unmet, ", "))
		}
	}

	blockedBefore := toSet(in.Blocked())
	next := wf.Clone()
	entries := []models.AuditEntry{{
		ID:         st.newID(),
		WorkflowID: wf.ID,
		TaskID:     req.TaskID,
		FromStatus: string(cur.Status),
		ToStatus:   string(req.To),
		Actor:      req.Actor,
		Override:   req.Override,
		Timestamp:  st.now,
		Note:       req.Note,
		Metadata:   mergeMetadata(nil, req.Metadata),
	}}
	if err := applyEntry(next, entries[0]); err != nil {
		return nil, err
	}

	after := bind(next, in.tasks)
	var unblocked []string
	for _, id := range after.dependents(req.TaskID) {
		if !blockedBefore[id] {
			continue
		}
		if eff, _ := after.EffectiveStatus(id); eff != models.TaskBlocked {
			unblocked = append(unblocked, id)
		}
	}

	ch := &change{next: next, taskID: req.TaskID, from: cur.Status, to: req.To, unblocked: unblocked}
	if after.IsComplete() {
		closing := models.AuditEntry{
			ID:         st.newID(),
			WorkflowID: wf.ID,
			FromStatus: string(models.WorkflowActive),
			ToStatus:   string(models.WorkflowCompleted),
			Actor:      req.Actor,
			Timestamp:  st.now,
			Note:       CompletionNote,
		}
		if err := applyEntry(next, closing); err != nil {
			return nil, err
		}
		entries = append(entries, closing)
		ch.completed = true
	}
	ch.entries = entries
	return ch, nil
}

func planAnnotation(in *Instance, req AnnotateRequest, st stamp) (*change, error) {
	wf := in.Workflow
	if strings.TrimSpace(req.Actor) == "" {
		return nil, rejectf(ErrInvalidRequest, wf, req.TaskID, "", "", "actor is required")
	}
	if len(req.Metadata) == 0 && strings.TrimSpace(req.Note) == "" {
		return nil, rejectf(ErrInvalidRequest, wf, req.TaskID, "", "", "annotation needs a note or metadata")
	}
	if wf.Status == models.WorkflowCancelled {
		return nil, rejectf(ErrWorkflowNotActive, wf, req.TaskID, "", "", "workflow is %s", wf.Status)
	}
	cur, err := in.CurrentState(req.TaskID)
	if err != nil {
		return nil, err
	}
	entry := models.AuditEntry{
		ID:         st.newID(),
		WorkflowID: wf.ID,
		TaskID:     req.TaskID,
		FromStatus: string(cur.Status),
		ToStatus:   string(cur.Status),
		Actor:      req.Actor,
		Timestamp:  st.now,
		Note:       req.Note,
		Metadata:   mergeMetadata(nil, req.Metadata),
	}
	next := wf.Clone()
	if err := applyEntry(next, entry); err != nil {
		return nil, err
	}
	return &change{next: next, entries: []models.AuditEntry{entry}, taskID: req.TaskID, from: cur.Status, to: cur.Status}, nil
}

func planCancel(in *Instance, actor, reason string, st stamp) (*change, error) {
	wf := in.Workflow
	if strings.TrimSpace(actor) == "" {
		return nil, rejectf(ErrInvalidRequest, wf, "", "", "", "actor is required")
	}
	if wf.Status != models.WorkflowActive {
		return nil, rejectf(ErrWorkflowNotActive, wf, "", "", "", "workflow is %s", wf.Status)
	}
	entry := models.AuditEntry{
		ID:         st.newID(),
		WorkflowID: wf.ID,
		FromStatus: string(models.WorkflowActive),
		ToStatus:   string(models.WorkflowCancelled),
		Actor:      actor,
		Timestamp:  st.now,
		Note:       reason,
	}
	next := wf.Clone()
	if err := applyEntry(next, entry); err != nil {
		return nil, err
	}
	return &change{next: next, entries: []models.AuditEntry{entry}}, nil
}

// dependents returns tasks that declare taskID as a dependency, in declaration order.
func (in *Instance) dependents(taskID string) []string {
	var out []string
	for _, task := range in.tasks {
		for _, dep := range task.DependsOn {
			if dep == taskID {
				out = append(out, task.ID)
				break
			}
		}
	}
	return out
}

func mergeMetadata(dst, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if strings.TrimSpace(k) == "" {
			continue
		}
		dst[k] = v
	}
	if len(dst) == 0 {
		return nil
	}
	return dst
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
