package engine

import (
	"fmt"
	"sort"
	"time"

	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/pkg/models"
)

// Replay rebuilds a workflow from its header (id, employee, track, start
// time) and its journal. Entries must be the complete history in Seq order.
func Replay(cat *catalog.Catalog, header *models.Workflow, entries []models.AuditEntry) (*Instance, error) {
	if header == nil {
		return nil, fmt.Errorf("replay: workflow header is required")
	}
	in, err := NewInstance(cat, header.ID, header.EmployeeID, header.Track, header.StartedAt)
	if err != nil {
		return nil, err
	}
	wf := in.Workflow
	for i, entry := range entries {
		if entry.WorkflowID != wf.ID {
			return nil, replayMismatch(wf, "entry %d belongs to workflow %q", i, entry.WorkflowID)
		}
		if entry.Seq != uint64(i)+1 {
			return nil, replayMismatch(wf, "entry %d has seq %d", i, entry.Seq)
		}
		if err := applyEntry(wf, entry); err != nil {
			return nil, err
		}
	}
	wf.Version = int64(len(entries))
	return in, nil
}

// applyEntry folds one journal entry into wf. The engine builds every
// snapshot through this function so that replay reproduces it exactly.
func applyEntry(wf *models.Workflow, entry models.AuditEntry) error {
	if entry.IsWorkflowLevel() {
		if string(wf.Status) != entry.FromStatus {
			return replayMismatch(wf, "seq %d: workflow is %s, entry starts from %s", entry.Seq, wf.Status, entry.FromStatus)
		}
		wf.Status = models.WorkflowStatus(entry.ToStatus)
		if wf.Status == models.WorkflowCompleted {
			at := entry.Timestamp
			wf.CompletedAt = &at
		}
		return nil
	}

	st, ok := wf.Tasks[entry.TaskID]
	if !ok {
		return replayMismatch(wf, "seq %d: unknown task %s", entry.Seq, entry.TaskID)
	}
	if string(st.Status) != entry.FromStatus {
		return replayMismatch(wf, "seq %d: task %s is %s, entry starts from %s", entry.Seq, entry.TaskID, st.Status, entry.FromStatus)
	}
	st.Metadata = mergeMetadata(st.Metadata, entry.Metadata)
	if !entry.IsAnnotation() {
		st.Status = models.TaskStatus(entry.ToStatus)
		st.Actor = entry.Actor
		if st.Status == models.TaskCompleted {
			at := entry.Timestamp
			st.CompletedAt = &at
		}
	}
	wf.Tasks[entry.TaskID] = st
	return nil
}

// diffWorkflows lists the differences between two materialized views.
func diffWorkflows(stored, replayed *models.Workflow) []string {
	var diffs []string
	if stored.Status != replayed.Status {
		diffs = append(diffs, fmt.Sprintf("status %s != %s", stored.Status, replayed.Status))
	}
	if !sameTime(stored.CompletedAt, replayed.CompletedAt) {
		diffs = append(diffs, "completed_at differs")
	}
	if stored.Version != replayed.Version {
		diffs = append(diffs, fmt.Sprintf("version %d != %d", stored.Version, replayed.Version))
	}

	ids := make([]string, 0, len(replayed.Tasks))
	for id := range replayed.Tasks {
		ids = append(ids, id)
	}
	for id := range stored.Tasks {
		if _, ok := replayed.Tasks[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		a, okA := stored.Tasks[id]
		b, okB := replayed.Tasks[id]
		switch {
		case !okA || !okB:
			diffs = append(diffs, fmt.Sprintf("task %s present in only one view", id))
		case a.Status != b.Status:
			diffs = append(diffs, fmt.Sprintf("task %s status %s != %s", id, a.Status, b.Status))
		case a.Actor != b.Actor:
			diffs = append(diffs, fmt.Sprintf("task %s actor %q != %q", id, a.Actor, b.Actor))
		case !sameTime(a.CompletedAt, b.CompletedAt):
			diffs = append(diffs, fmt.Sprintf("task %s completed_at differs", id))
		case !sameMetadata(a.Metadata, b.Metadata):
			diffs = append(diffs, fmt.Sprintf("task %s metadata differs", id))
		}
	}
	return diffs
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameMetadata(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func replayMismatch(wf *models.Workflow, format string, args ...any) error {
	return rejectf(ErrReplayMismatch, wf, "", "", "", format, args...)
}
