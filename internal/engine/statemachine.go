package engine

import "hr-lifecycle/backend/pkg/models"

// successors lists the explicit targets reachable from each stored status.
// Skipping additionally requires an override and is checked separately.
// blocked is derived and never a target; completed and skipped are terminal.
var successors = map[models.TaskStatus][]models.TaskStatus{
	models.TaskPending:    {models.TaskInProgress, models.TaskCompleted, models.TaskFailed, models.TaskSkipped},
	models.TaskInProgress: {models.TaskCompleted, models.TaskFailed},
	models.TaskFailed:     {models.TaskInProgress},
}

// NextStatuses returns the legal explicit targets from status, in a fixed order.
func NextStatuses(from models.TaskStatus) []models.TaskStatus {
	return append([]models.TaskStatus(nil), successors[from]...)
}

// IsTerminal reports whether a task in status can never move again.
func IsTerminal(status models.TaskStatus) bool {
	return status == models.TaskCompleted || status == models.TaskSkipped
}

func isAllowedTransition(from, to models.TaskStatus) bool {
	for _, next := range successors[from] {
		if next == to {
			return true
		}
	}
	return false
}

// requiresDependencies reports whether entering status needs every dependency resolved.
func requiresDependencies(to models.TaskStatus) bool {
	return to == models.TaskInProgress || to == models.TaskCompleted
}
