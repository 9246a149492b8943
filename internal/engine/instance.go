package engine

import (
	"strings"
	"time"

	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/pkg/models"
)

// Instance binds a workflow to its track definition and answers questions
// about its state. It never mutates the workflow.
type Instance struct {
	Workflow *models.Workflow
	tasks    []catalog.TaskDefinition
	index    map[string]int
}

// NewInstance builds a fresh workflow for employeeID on track with every task pending.
func NewInstance(cat *catalog.Catalog, id, employeeID string, track models.Track, startedAt time.Time) (*Instance, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, &TransitionError{Kind: ErrInvalidRequest, Msg: "employee id is required"}
	}
	tasks, err := cat.GetTrack(track)
	if err != nil {
		return nil, err
	}
	wf := &models.Workflow{
		ID:         id,
		EmployeeID: employeeID,
		Track:      track,
		Status:     models.WorkflowActive,
		StartedAt:  startedAt,
		Tasks:      make(map[string]models.TaskState, len(tasks)),
	}
	for _, task := range tasks {
		wf.Tasks[task.ID] = models.TaskState{TaskID: task.ID, Status: models.TaskPending}
	}
	return bind(wf, tasks), nil
}

// Bind wraps an existing workflow. It fails if the track is unknown, or with
// ErrReplayMismatch if the stored task set does not match the track definition.
func Bind(cat *catalog.Catalog, wf *models.Workflow) (*Instance, error) {
	tasks, err := cat.GetTrack(wf.Track)
	if err != nil {
		return nil, err
	}
	if len(tasks) != len(wf.Tasks) {
		return nil, replayMismatch(wf, "stored %d tasks, track %s defines %d", len(wf.Tasks), wf.Track, len(tasks))
	}
	for _, task := range tasks {
		if _, ok := wf.Tasks[task.ID]; !ok {
			return nil, replayMismatch(wf, "stored tasks are missing %s", task.ID)
		}
	}
	return bind(wf, tasks), nil
}

func bind(wf *models.Workflow, tasks []catalog.TaskDefinition) *Instance {
	index := make(map[string]int, len(tasks))
	for i, task := range tasks {
		index[task.ID] = i
	}
	return &Instance{Workflow: wf, tasks: tasks, index: index}
}

// Definition returns the catalog definition of taskID.
func (in *Instance) Definition(taskID string) (catalog.TaskDefinition, bool) {
	i, ok := in.index[taskID]
	if !ok {
		return catalog.TaskDefinition{}, false
	}
	return in.tasks[i], true
}

// TaskIDs returns the task ids in declaration order.
func (in *Instance) TaskIDs() []string {
	out := make([]string, len(in.tasks))
	for i, task := range in.tasks {
		out[i] = task.ID
	}
	return out
}

// CurrentState returns the stored state of taskID.
func (in *Instance) CurrentState(taskID string) (models.TaskState, error) {
	st, ok := in.Workflow.Tasks[taskID]
	if _, defined := in.index[taskID]; !ok || !defined {
		return models.TaskState{}, rejectf(ErrUnknownTask, in.Workflow, taskID, "", "", "not part of track %s", in.Workflow.Track)
	}
	return st.Clone(), nil
}

// EffectiveStatus returns the stored status, or blocked for a pending task
// with at least one unresolved dependency.
func (in *Instance) EffectiveStatus(taskID string) (models.TaskStatus, error) {
	st, err := in.CurrentState(taskID)
	if err != nil {
		return "", err
	}
	if st.Status == models.TaskPending && len(in.UnmetDependencies(taskID)) > 0 {
		return models.TaskBlocked, nil
	}
	return st.Status, nil
}

// UnmetDependencies lists dependencies of taskID that are neither completed nor skipped.
func (in *Instance) UnmetDependencies(taskID string) []string {
	def, ok := in.Definition(taskID)
	if !ok {
		return nil
	}
	var unmet []string
	for _, dep := range def.DependsOn {
		if !in.Workflow.Tasks[dep].Status.SatisfiesDependency() {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// IsComplete reports whether every required task is completed or skipped.
func (in *Instance) IsComplete() bool {
	for _, task := range in.tasks {
		if !task.Required {
			continue
		}
		if !in.Workflow.Tasks[task.ID].Status.SatisfiesDependency() {
			return false
		}
	}
	return true
}

// Blocked returns the ids of tasks whose effective status is blocked, in declaration order.
func (in *Instance) Blocked() []string {
	var out []string
	for _, task := range in.tasks {
		if st, _ := in.EffectiveStatus(task.ID); st == models.TaskBlocked {
			out = append(out, task.ID)
		}
	}
	return out
}

// Ready returns pending tasks whose dependencies are all resolved.
func (in *Instance) Ready() []string {
	var out []string
	for _, task := range in.tasks {
		if st, _ := in.EffectiveStatus(task.ID); st == models.TaskPending {
			out = append(out, task.ID)
		}
	}
	return out
}

// TaskView is a task state annotated with its effective status and definition.
type TaskView struct {
	models.TaskState
	EffectiveStatus models.TaskStatus   `json:"effective_status"`
	Title           string              `json:"title,omitempty"`
	Required        bool                `json:"required"`
	DependsOn       []string            `json:"depends_on,omitempty"`
	Next            []models.TaskStatus `json:"next,omitempty"`
}

// Views returns a TaskView per task in declaration order.
func (in *Instance) Views() []TaskView {
	out := make([]TaskView, 0, len(in.tasks))
	for _, task := range in.tasks {
		st := in.Workflow.Tasks[task.ID].Clone()
		eff, _ := in.EffectiveStatus(task.ID)
		view := TaskView{
			TaskState:       st,
			EffectiveStatus: eff,
			Title:           task.Title,
			Required:        task.Required,
			DependsOn:       task.DependsOn,
		}
		if in.Workflow.Status == models.WorkflowActive {
			view.Next = NextStatuses(st.Status)
		}
		out = append(out, view)
	}
	return out
}
