package models

// CompanyProfile holds the company and HR constants used in intent payloads.
// It is built once from configuration and passed explicitly to the dispatcher.
type CompanyProfile struct {
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Phone          string   `json:"phone"`
	Email          string   `json:"email"`
	Website        string   `json:"website"`
	HRManagerName  string   `json:"hr_manager_name"`
	HRManagerTitle string   `json:"hr_manager_title"`
	HRManagerEmail string   `json:"hr_manager_email"`
	HRTeamEmails   []string `json:"hr_team_emails"`
}
