package services

import (
	"context"

	"hr-lifecycle/backend/pkg/models"
)

// Directory is the read-only employee directory.
type Directory interface {
	// GetEmployee returns the employee record used to fill intent payloads.
	GetEmployee(ctx context.Context, employeeID string) (*models.Employee, error)
}

// EmailExecutor delivers send_email intents.
type EmailExecutor interface {
	SendEmail(ctx context.Context, intent models.Intent) error
}

// LetterGenerator renders generate_letter intents and returns a reference to
// the produced artifact. Only the reference is ever stored.
type LetterGenerator interface {
	GenerateLetter(ctx context.Context, intent models.Intent) (string, error)
}

// Notifier delivers external_notify intents, such as access grant requests.
type Notifier interface {
	Notify(ctx context.Context, intent models.Intent) error
}

// Collaborators groups the intent executors.
type Collaborators struct {
	Email    EmailExecutor
	Letters  LetterGenerator
	Notifier Notifier
}
