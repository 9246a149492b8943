package catalog

import "hr-lifecycle/backend/pkg/models"

func email(on models.TaskStatus, template string, to Recipient) EffectTemplate {
	return EffectTemplate{On: on, Kind: models.IntentSendEmail, TemplateID: template, Recipient: to}
}

func letter(on models.TaskStatus, template string) EffectTemplate {
	return EffectTemplate{On: on, Kind: models.IntentGenerateLetter, TemplateID: template, Recipient: RecipientEmployee}
}

func notify(on models.TaskStatus, template string, params map[string]string) EffectTemplate {
	return EffectTemplate{On: on, Kind: models.IntentExternalNotify, TemplateID: template, Params: params}
}

const (
	inProgress = models.TaskInProgress
	completed  = models.TaskCompleted
	failed     = models.TaskFailed
)

// Systems granted on onboarding, by employee category.
const (
	fullTimeSystems   = "gmail,slack,teamlogger,google_drive,jira"
	internSystems     = "gmail,slack"
	contractorSystems = "gmail,slack,teamlogger"
)

// DefaultTracks returns the built-in onboarding and offboarding tracks.
//
// Effects that perform work fire when a task enters in_progress, so a failed
// delivery can be reported back as a failed task. Notifications fire on
// completion. Within a task, effects run in the order listed here.
func DefaultTracks() []TrackDefinition {
	return []TrackDefinition{
		{
			Track: models.TrackOnboardingFullTime,
			Tasks: []TaskDefinition{
				{ID: "collect_docs", Title: "Collect joining documents", Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "document_request_fulltime", RecipientEmployee),
				}},
				{ID: "verify_docs", Title: "Verify documents", DependsOn: []string{"collect_docs"}, Required: true, SideEffects: []EffectTemplate{
					email(failed, "document_rejected", RecipientEmployee),
				}},
				{ID: "send_offer", Title: "Send offer letter", DependsOn: []string{"verify_docs"}, Required: true, SideEffects: []EffectTemplate{
					letter(inProgress, "offer_letter_fulltime"),
					email(inProgress, "offer_letter_fulltime", RecipientEmployee),
				}},
				{ID: "offer_signed", Title: "Offer accepted and signed", DependsOn: []string{"send_offer"}, Required: true, SideEffects: []EffectTemplate{
					email(completed, "offer_accepted_hr", RecipientHR),
				}},
				{ID: "initiate_bgv", Title: "Initiate background verification", DependsOn: []string{"offer_signed"}, Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "bgv_request", RecipientEmployee),
					email(completed, "bgv_notification", RecipientEmployee),
				}},
				{ID: "complete_bgv", Title: "Background verification result", DependsOn: []string{"initiate_bgv"}, Required: true, SideEffects: []EffectTemplate{
					email(failed, "bgv_failed_alert", RecipientManager),
					email(failed, "bgv_failed_alert", RecipientHR),
				}},
				{ID: "grant_access", Title: "Grant system access", DependsOn: []string{"offer_signed"}, Required: true, SideEffects: []EffectTemplate{
					notify(inProgress, "grant_system_access", map[string]string{"systems": fullTimeSystems}),
					email(completed, "access_details", RecipientEmployee),
				}},
				{ID: "send_appointment_letter", Title: "Send appointment letter", DependsOn: []string{"offer_signed", "complete_bgv"}, Required: true, SideEffects: []EffectTemplate{
					letter(inProgress, "appointment_letter"),
					email(inProgress, "appointment_letter", RecipientEmployee),
				}},
				{ID: "appointment_signed", Title: "Appointment letter signed", DependsOn: []string{"send_appointment_letter"}, Required: true},
				{ID: "welcome_email", Title: "Welcome on board", DependsOn: []string{"grant_access"}, SideEffects: []EffectTemplate{
					email(inProgress, "welcome_onboard", RecipientEmployee),
					email(completed, "new_joiner_manager_notice", RecipientManager),
				}},
			},
		},
		{
			Track: models.TrackOnboardingIntern,
			Tasks: []TaskDefinition{
				{ID: "collect_docs", Title: "Collect joining documents", Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "document_request_intern", RecipientEmployee),
				}},
				{ID: "verify_docs", Title: "Verify documents", DependsOn: []string{"collect_docs"}, Required: true, SideEffects: []EffectTemplate{
					email(failed, "document_rejected", RecipientEmployee),
				}},
				{ID: "send_offer", Title: "Send internship offer", DependsOn: []string{"verify_docs"}, Required: true, SideEffects: []EffectTemplate{
					letter(inProgress, "offer_letter_intern"),
					email(inProgress, "offer_letter_intern", RecipientEmployee),
				}},
				{ID: "offer_signed", Title: "Offer accepted and signed", DependsOn: []string{"send_offer"}, Required: true, SideEffects: []EffectTemplate{
					email(completed, "offer_accepted_hr", RecipientHR),
				}},
				{ID: "initiate_bgv", Title: "Background verification", DependsOn: []string{"offer_signed"}, SideEffects: []EffectTemplate{
					email(inProgress, "bgv_request", RecipientEmployee),
				}},
				{ID: "grant_access", Title: "Grant system access", DependsOn: []string{"offer_signed"}, Required: true, SideEffects: []EffectTemplate{
					notify(inProgress, "grant_system_access", map[string]string{"systems": internSystems}),
					email(completed, "access_details", RecipientEmployee),
				}},
				{ID: "welcome_email", Title: "Welcome on board", DependsOn: []string{"grant_access"}, SideEffects: []EffectTemplate{
					email(inProgress, "welcome_onboard", RecipientEmployee),
				}},
			},
		},
		{
			Track: models.TrackOnboardingContractor,
			Tasks: []TaskDefinition{
				{ID: "collect_docs", Title: "Collect contractor documents", Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "document_request_contractor", RecipientEmployee),
				}},
				{ID: "verify_docs", Title: "Verify documents", DependsOn: []string{"collect_docs"}, Required: true, SideEffects: []EffectTemplate{
					email(failed, "document_rejected", RecipientEmployee),
				}},
				{ID: "send_contract", Title: "Send contractor agreement", DependsOn: []string{"verify_docs"}, Required: true, SideEffects: []EffectTemplate{
					letter(inProgress, "contractor_agreement"),
					email(inProgress, "contractor_agreement", RecipientEmployee),
				}},
				{ID: "contract_signed", Title: "Agreement signed", DependsOn: []string{"send_contract"}, Required: true},
				{ID: "grant_access", Title: "Grant system access", DependsOn: []string{"contract_signed"}, Required: true, SideEffects: []EffectTemplate{
					notify(inProgress, "grant_system_access", map[string]string{"systems": contractorSystems}),
					email(completed, "access_details", RecipientEmployee),
				}},
				{ID: "welcome_email", Title: "Welcome on board", DependsOn: []string{"grant_access"}, SideEffects: []EffectTemplate{
					email(inProgress, "welcome_onboard", RecipientEmployee),
				}},
			},
		},
		{
			Track: models.TrackOffboarding,
			Tasks: []TaskDefinition{
				{ID: "initiate_exit", Title: "Exit initiated", Required: true, SideEffects: []EffectTemplate{
					email(completed, "exit_confirmation", RecipientEmployee),
					email(completed, "exit_manager_notice", RecipientManager),
				}},
				{ID: "manager_approval", Title: "Manager approval", DependsOn: []string{"initiate_exit"}, Required: true, SideEffects: []EffectTemplate{
					email(completed, "exit_manager_approved", RecipientHR),
				}},
				{ID: "knowledge_transfer", Title: "Knowledge transfer", DependsOn: []string{"manager_approval"}, Required: true},
				{ID: "return_assets", Title: "Return company assets", DependsOn: []string{"manager_approval"}, Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "asset_return_reminder", RecipientEmployee),
					letter(completed, "asset_handover_form"),
				}},
				{ID: "revoke_access", Title: "Revoke system access", DependsOn: []string{"knowledge_transfer", "return_assets"}, Required: true, SideEffects: []EffectTemplate{
					notify(inProgress, "revoke_system_access", map[string]string{"systems": "all"}),
					email(completed, "access_revocation_confirmation", RecipientHR),
				}},
				{ID: "final_settlement", Title: "Full and final settlement", DependsOn: []string{"revoke_access", "return_assets"}, Required: true, SideEffects: []EffectTemplate{
					email(inProgress, "fnf_hr_notice", RecipientHR),
					letter(inProgress, "fnf_letter"),
					email(inProgress, "fnf_letter", RecipientEmployee),
				}},
				{ID: "experience_letter", Title: "Issue experience letter", DependsOn: []string{"final_settlement"}, Required: true, SideEffects: []EffectTemplate{
					letter(inProgress, "experience_letter"),
					email(inProgress, "experience_letter", RecipientEmployee),
				}},
				{ID: "exit_feedback", Title: "Exit feedback", DependsOn: []string{"initiate_exit"}, SideEffects: []EffectTemplate{
					email(inProgress, "exit_feedback_form", RecipientEmployee),
				}},
			},
		},
	}
}

// Default builds the catalog from DefaultTracks.
func Default() (*Catalog, error) {
	return New(DefaultTracks()...)
}
