package catalog

import (
	"strings"

	"hr-lifecycle/backend/pkg/models"
)

// Recipient selects who an email intent is addressed to.
type Recipient string

const (
	RecipientEmployee Recipient = "employee"
	RecipientManager  Recipient = "manager"
	RecipientHR       Recipient = "hr"
)

func (r Recipient) isValid() bool {
	switch r {
	case "", RecipientEmployee, RecipientManager, RecipientHR:
		return true
	default:
		return false
	}
}

// EffectTemplate declares one intent fired when a task enters status On.
type EffectTemplate struct {
	On         models.TaskStatus `yaml:"on" json:"on"`
	Kind       models.IntentKind `yaml:"kind" json:"kind"`
	TemplateID string            `yaml:"template" json:"template"`
	Recipient  Recipient         `yaml:"recipient,omitempty" json:"recipient,omitempty"`
	Params     map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// TaskDefinition is an immutable node of a track's task graph.
type TaskDefinition struct {
	ID          string           `yaml:"id" json:"id"`
	Track       models.Track     `yaml:"-" json:"track"`
	Title       string           `yaml:"title,omitempty" json:"title,omitempty"`
	DependsOn   []string         `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Required    bool             `yaml:"required" json:"required"`
	SideEffects []EffectTemplate `yaml:"side_effects,omitempty" json:"side_effects,omitempty"`
}

// EffectsFor returns the effect templates registered for status, in declaration order.
func (d TaskDefinition) EffectsFor(status models.TaskStatus) []EffectTemplate {
	var out []EffectTemplate
	for _, eff := range d.SideEffects {
		if eff.On == status {
			out = append(out, eff)
		}
	}
	return out
}

// TrackDefinition groups the task definitions of one track.
type TrackDefinition struct {
	Track models.Track     `yaml:"track" json:"track"`
	Tasks []TaskDefinition `yaml:"tasks" json:"tasks"`
}

// normalized returns a deep copy with identifiers trimmed and Track stamped on every task.
func (t TrackDefinition) normalized() TrackDefinition {
	out := TrackDefinition{
		Track: models.Track(strings.TrimSpace(string(t.Track))),
		Tasks: make([]TaskDefinition, 0, len(t.Tasks)),
	}
	for _, task := range t.Tasks {
		nt := TaskDefinition{
			ID:       strings.TrimSpace(task.ID),
			Track:    task.Track,
			Title:    strings.TrimSpace(task.Title),
			Required: task.Required,
		}
		if nt.Track == "" {
			nt.Track = out.Track
		}
		for _, dep := range task.DependsOn {
			nt.DependsOn = append(nt.DependsOn, strings.TrimSpace(dep))
		}
		for _, eff := range task.SideEffects {
			ne := EffectTemplate{
				On:         eff.On,
				Kind:       eff.Kind,
				TemplateID: strings.TrimSpace(eff.TemplateID),
				Recipient:  eff.Recipient,
			}
			if len(eff.Params) > 0 {
				ne.Params = make(map[string]string, len(eff.Params))
				for k, v := range eff.Params {
					ne.Params[k] = v
				}
			}
			nt.SideEffects = append(nt.SideEffects, ne)
		}
		out.Tasks = append(out.Tasks, nt)
	}
	return out
}

func (d TaskDefinition) clone() TaskDefinition {
	out := d
	if d.DependsOn != nil {
		out.DependsOn = append([]string(nil), d.DependsOn...)
	}
	if d.SideEffects != nil {
		out.SideEffects = make([]EffectTemplate, len(d.SideEffects))
		for i, eff := range d.SideEffects {
			out.SideEffects[i] = eff
			if eff.Params != nil {
				out.SideEffects[i].Params = make(map[string]string, len(eff.Params))
				for k, v := range eff.Params {
					out.SideEffects[i].Params[k] = v
				}
			}
		}
	}
	return out
}
