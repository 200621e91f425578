// internal/models/application.go
package models

import "time"

type ApplicationStatus string

const (
	StatusDraft     ApplicationStatus = "DRAFT"
	StatusSubmitted ApplicationStatus = "SUBMITTED"
)

type ReviewType string

const (
	ReviewExpedited     ReviewType = "EXPEDITED"
	ReviewFullCommittee ReviewType = "FULL_COMMITTEE"
)

// Application is the root record of one ethics review submission.
type Application struct {
	ID                    string            `json:"id"`
	PrincipalInvestigator string            `json:"principalInvestigator"`
	Department            string            `json:"department"`
	SubmissionDate        time.Time         `json:"submissionDate"`
	ReviewType            ReviewType        `json:"reviewType"`
	Title                 string            `json:"title"`
	Acronym               string            `json:"acronym,omitempty"`
	ProtocolNumber        string            `json:"protocolNumber"`
	VersionNumber         string            `json:"versionNumber"`
	Status                ApplicationStatus `json:"status"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

func (a *Application) GetID() string { return a.ID }
func (a *Application) SetID(id string) { a.ID = id }
func (a *Application) ParentID() string { return "" }

func (a *Application) Stamp(now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// IsSubmitted reports whether the application has passed the submission gate.
func (a *Application) IsSubmitted() bool {
	return a.Status == StatusSubmitted
}

// ApplicationAggregate is an application together with every section
// attached to it.
type ApplicationAggregate struct {
	Application
	Investigators    []Investigator    `json:"investigators"`
	Funding          *Funding          `json:"funding"`
	ResearchOverview *ResearchOverview `json:"researchOverview"`
	Methodology      *Methodology      `json:"methodology"`
	ParticipantInfo  *ParticipantInfo  `json:"participantInfo"`
	Consent          *Consent          `json:"consent"`
	Payment          *Payment          `json:"payment"`
	Confidentiality  *Confidentiality  `json:"confidentiality"`
	Declarations     []Declaration     `json:"declarations"`
	CoInvestigators  []CoInvestigator  `json:"coInvestigators"`
	Checklists       []Checklist       `json:"checklists"`
	Files            []File            `json:"files"`
}
