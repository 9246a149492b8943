// Package auth decides which actors may use privileged transition options.
//
// The engine records the override flag it is given; this package is the
// caller-side check that runs before the engine is asked to skip a task.
package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard grants the override permission to every actor.
const Wildcard = "*"

// ErrForbidden is returned when an actor lacks a permission.
var ErrForbidden = errors.New("forbidden")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Policy lists the actors allowed to request overrides. A nil Policy allows everyone.
type Policy struct {
	overrideActors map[string]bool
	anyone         bool
	logger         Logger
}

// NewPolicy builds a Policy from configured actor names. Names are matched
// case-insensitively; an empty list grants nobody the override permission.
func NewPolicy(overrideActors []string, logger Logger) *Policy {
	p := &Policy{overrideActors: make(map[string]bool), logger: logger}
	for _, a := range overrideActors {
		a = normalize(a)
		switch a {
		case "":
		case Wildcard:
			p.anyone = true
		default:
			p.overrideActors[a] = true
		}
	}
	return p
}

func normalize(actor string) string {
	return strings.ToLower(strings.TrimSpace(actor))
}

// CanOverride reports whether actor may skip tasks.
func (p *Policy) CanOverride(actor string) bool {
	if p == nil || p.anyone {
		return true
	}
	return p.overrideActors[normalize(actor)]
}

// AuthorizeOverride returns ErrForbidden unless actor may skip tasks.
func (p *Policy) AuthorizeOverride(actor string) error {
	if p.CanOverride(actor) {
		return nil
	}
	if p.logger != nil {
		p.logger.Info("override denied", "actor", actor)
	}
	return fmt.Errorf("%w: %s may not override task requirements", ErrForbidden, actor)
}
