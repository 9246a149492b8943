package models

import (
	"strings"
	"time"
)

// EmployeeType mirrors the employment categories tracked by HR.
type EmployeeType string

const (
	EmployeeFullTime   EmployeeType = "full_time"
	EmployeeIntern     EmployeeType = "intern"
	EmployeeContractor EmployeeType = "contractor"
)

// OnboardingTrack returns the onboarding track for the employee type.
func (t EmployeeType) OnboardingTrack() (Track, bool) {
	switch t {
	case EmployeeFullTime:
		return TrackOnboardingFullTime, true
	case EmployeeIntern:
		return TrackOnboardingIntern, true
	case EmployeeContractor:
		return TrackOnboardingContractor, true
	default:
		return "", false
	}
}

// Employee is the directory record used to fill intent payloads.
type Employee struct {
	ID               string       `json:"id"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name,omitempty"`
	Email            string       `json:"email"`
	Department       string       `json:"department,omitempty"`
	Designation      string       `json:"designation,omitempty"`
	EmployeeType     EmployeeType `json:"employee_type"`
	ReportingManager string       `json:"reporting_manager,omitempty"`
	ManagerEmail     string       `json:"manager_email,omitempty"`
	Status           string       `json:"status,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// FullName joins first and last name, tolerating an empty last name.
func (e Employee) FullName() string {
	first := strings.TrimSpace(e.FirstName)
	last := strings.TrimSpace(e.LastName)
	if last == "" {
		return first
	}
	return strings.TrimSpace(first + " " + last)
}
