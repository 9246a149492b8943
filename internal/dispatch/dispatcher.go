// Package dispatch turns committed transitions into intents.
//
// The dispatcher performs no I/O. For a fixed input it always returns the
// same intents in the order the task definition declares them.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"hr-lifecycle/backend/internal/catalog"
	"hr-lifecycle/backend/pkg/models"
)

// Payload keys set by the dispatcher.
const (
	KeyRecipient      = "recipient"
	KeyRecipientEmail = "recipient_email"
	KeyWorkflowID     = "workflow_id"
	KeyTrack          = "track"
	KeyTaskID         = "task_id"
	KeyTaskTitle      = "task_title"
	KeyFromStatus     = "from_status"
	KeyToStatus       = "to_status"
)

// ReservedPrefix marks task metadata written while executing intents. Such
// keys describe earlier deliveries and are never copied into payloads.
const ReservedPrefix = "intent."

// intentNamespace scopes the name-based intent ids.
var intentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:hr-lifecycle:intent"))

// Input is everything a dispatch decision depends on.
type Input struct {
	WorkflowID string
	Track      models.Track
	TaskID     string
	From       models.TaskStatus
	To         models.TaskStatus
	// Seq is the audit sequence of the triggering entry.
	Seq      uint64
	Employee models.Employee
	// Metadata is the task metadata after the transition.
	Metadata map[string]string
}

// Dispatcher maps transitions to intents using the catalog and company profile.
type Dispatcher struct {
	catalog *catalog.Catalog
	company models.CompanyProfile
}

// New creates a Dispatcher. company is the static configuration provider.
func New(cat *catalog.Catalog, company models.CompanyProfile) *Dispatcher {
	company.HRTeamEmails = append([]string(nil), company.HRTeamEmails...)
	return &Dispatcher{catalog: cat, company: company}
}

// Dispatch returns the intents registered for in.To on the task, in
// declaration order. Annotations (From == To) never produce intents.
func (d *Dispatcher) Dispatch(in Input) ([]models.Intent, error) {
	task, ok := d.catalog.Task(in.Track, in.TaskID)
	if !ok {
		if !d.catalog.HasTrack(in.Track) {
			return nil, fmt.Errorf("dispatch: %w: %s", catalog.ErrUnknownTrack, in.Track)
		}
		return nil, fmt.Errorf("dispatch: unknown task %s in track %s", in.TaskID, in.Track)
	}
	if in.From == in.To {
		return nil, nil
	}

	effects := task.EffectsFor(in.To)
	if len(effects) == 0 {
		return nil, nil
	}
	out := make([]models.Intent, 0, len(effects))
	for i, eff := range effects {
		payload := d.payload(task, eff, in)
		out = append(out, models.Intent{
			ID:         intentID(in, i),
			Kind:       eff.Kind,
			TemplateID: eff.TemplateID,
			WorkflowID: in.WorkflowID,
			TaskID:     in.TaskID,
			Trigger:    in.To,
			Payload:    payload,
		})
	}
	return out, nil
}

// payload merges, later sources winning: effect params, employee fields,
// company profile, transition context, task metadata without ReservedPrefix keys.
func (d *Dispatcher) payload(task catalog.TaskDefinition, eff catalog.EffectTemplate, in Input) map[string]string {
	p := make(map[string]string, 32)
	for k, v := range eff.Params {
		p[k] = v
	}

	emp := in.Employee
	put(p, "employee_id", emp.ID)
	put(p, "employee_name", emp.FullName())
	put(p, "first_name", emp.FirstName)
	put(p, "last_name", emp.LastName)
	put(p, "employee_email", emp.Email)
	put(p, "department", emp.Department)
	put(p, "designation", emp.Designation)
	put(p, "employee_type", string(emp.EmployeeType))
	put(p, "reporting_manager", emp.ReportingManager)
	put(p, "manager_email", emp.ManagerEmail)
	put(p, "employee_status", emp.Status)

	c := d.company
	put(p, "company_name", c.Name)
	put(p, "company_address", c.Address)
	put(p, "company_phone", c.Phone)
	put(p, "company_email", c.Email)
	put(p, "company_website", c.Website)
	put(p, "hr_manager_name", c.HRManagerName)
	put(p, "hr_manager_title", c.HRManagerTitle)
	put(p, "hr_manager_email", c.HRManagerEmail)
	put(p, "hr_team_emails", strings.Join(c.HRTeamEmails, ","))

	put(p, KeyWorkflowID, in.WorkflowID)
	put(p, KeyTrack, string(in.Track))
	put(p, KeyTaskID, in.TaskID)
	put(p, KeyTaskTitle, task.Title)
	put(p, KeyFromStatus, string(in.From))
	put(p, KeyToStatus, string(in.To))

	recipient := eff.Recipient
	if recipient == "" && eff.Kind != models.IntentExternalNotify {
		recipient = catalog.RecipientEmployee
	}
	if recipient != "" {
		p[KeyRecipient] = string(recipient)
		put(p, KeyRecipientEmail, d.resolve(recipient, emp))
	}

	for k, v := range in.Metadata {
		if strings.HasPrefix(k, ReservedPrefix) {
			continue
		}
		p[k] = v
	}
	return p
}

func (d *Dispatcher) resolve(r catalog.Recipient, emp models.Employee) string {
	switch r {
	case catalog.RecipientManager:
		return emp.ManagerEmail
	case catalog.RecipientHR:
		if d.company.HRManagerEmail != "" {
			return d.company.HRManagerEmail
		}
		if len(d.company.HRTeamEmails) > 0 {
			return d.company.HRTeamEmails[0]
		}
		return d.company.Email
	default:
		return emp.Email
	}
}

func intentID(in Input, index int) string {
	name := strings.Join([]string{in.WorkflowID, in.TaskID, string(in.To), strconv.FormatUint(in.Seq, 10), strconv.Itoa(index)}, "/")
	return uuid.NewSHA1(intentNamespace, []byte(name)).String()
}

func put(p map[string]string, key, value string) {
	if value != "" {
		p[key] = value
	}
}
