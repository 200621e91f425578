// internal/models/sections.go
package models

import (
	"time"

	"github.com/lib/pq"
)

type FundingType string

const (
	FundingSelf          FundingType = "SELF"
	FundingInstitutional FundingType = "INSTITUTIONAL"
	FundingAgency        FundingType = "AGENCY"
)

type StudyType string

const (
	StudyInterventional  StudyType = "INTERVENTIONAL"
	StudyCaseControl     StudyType = "CASE_CONTROL"
	StudyCohort          StudyType = "COHORT"
	StudyRetrospective   StudyType = "RETROSPECTIVE"
	StudyEpidemiological StudyType = "EPIDEMIOLOGICAL"
	StudyCrossSectional  StudyType = "CROSS_SECTIONAL"
	StudySocioBehavioral StudyType = "SOCIO_BEHAVIORAL"
	StudyBiological      StudyType = "BIOLOGICAL"
)

type ParticipantType string

const (
	ParticipantHealthy    ParticipantType = "HEALTHY"
	ParticipantPatient    ParticipantType = "PATIENT"
	ParticipantVulnerable ParticipantType = "VULNERABLE"
	ParticipantOther      ParticipantType = "OTHER"
)

type IdentifierType string

const (
	IdentifierAnonymous    IdentifierType = "ANONYMOUS"
	IdentifierIdentifiable IdentifierType = "IDENTIFIABLE"
)

// Section is embedded by every record attached to an application.
type Section struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (s *Section) GetID() string { return s.ID }
func (s *Section) SetID(id string) { s.ID = id }
func (s *Section) ParentID() string { return s.ApplicationID }
func (s *Section) SetApplicationID(id string) { s.ApplicationID = id }

func (s *Section) Stamp(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

type Investigator struct {
	Section
	Name          string `json:"name"`
	Designation   string `json:"designation"`
	Qualification string `json:"qualification"`
	Department    string `json:"department"`
	Institution   string `json:"institution"`
	Address       string `json:"address"`
}

type Funding struct {
	Section
	TotalBudget   float64     `json:"totalBudget"`
	FundingType   FundingType `json:"fundingType"`
	FundingAgency string      `json:"fundingAgency,omitempty"`
}

type ResearchOverview struct {
	Section
	Summary   string    `json:"summary"`
	StudyType StudyType `json:"studyType"`
}

type Methodology struct {
	Section
	SampleSize         int    `json:"sampleSize"`
	Justification      string `json:"justification"`
	ExternalLab        bool   `json:"externalLab"`
	ExternalLabDetails string `json:"externalLabDetails,omitempty"`
}

type ParticipantInfo struct {
	Section
	ParticipantType         ParticipantType `json:"participantType"`
	VulnerableJustification string          `json:"vulnerableJustification,omitempty"`
	Safeguards              string          `json:"safeguards,omitempty"`
	Reimbursement           bool            `json:"reimbursement"`
	ReimbursementDetails    string          `json:"reimbursementDetails,omitempty"`
	Advertisement           bool            `json:"advertisement"`
	AdvertisementDetails    string          `json:"advertisementDetails,omitempty"`
}

type Consent struct {
	Section
	WaiverRequested        bool           `json:"waiverRequested"`
	ConsentDocumentVersion string         `json:"consentDocumentVersion"`
	LanguagesProvided      pq.StringArray `json:"languagesProvided"`
	TranslationCertificate bool           `json:"translationCertificate"`
	UnderstandingTools     string         `json:"understandingTools,omitempty"`
}

type Payment struct {
	Section
	TreatmentFree bool   `json:"treatmentFree"`
	Compensation  bool   `json:"compensation"`
	Details       string `json:"details,omitempty"`
}

type Confidentiality struct {
	Section
	HasIdentifiers bool           `json:"hasIdentifiers"`
	IdentifierType IdentifierType `json:"identifierType"`
	AccessControl  bool           `json:"accessControl"`
	StorageDetails string         `json:"storageDetails"`
}

type Declaration struct {
	Section
	PIName           string     `json:"piName"`
	PISignature      string     `json:"piSignature"`
	PIDate           time.Time  `json:"piDate"`
	CoPIName         string     `json:"coPiName,omitempty"`
	CoPISignature    string     `json:"coPiSignature,omitempty"`
	CoPIDate         *time.Time `json:"coPiDate,omitempty"`
	PrivacyProtected bool       `json:"privacyProtected"`
	Compliance       bool       `json:"compliance"`
	AmendmentsReport bool       `json:"amendmentsReport"`
	AccurateRecords  bool       `json:"accurateRecords"`
}

// CoInvestigator signs a declaration rather than belonging to the
// application directly.
type CoInvestigator struct {
	ID            string    `json:"id"`
	DeclarationID string    `json:"declarationId"`
	Name          string    `json:"name"`
	Signature     string    `json:"signature"`
	Date          time.Time `json:"date"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (c *CoInvestigator) GetID() string { return c.ID }
func (c *CoInvestigator) SetID(id string) { c.ID = id }
func (c *CoInvestigator) ParentID() string { return c.DeclarationID }

func (c *CoInvestigator) Stamp(now time.Time) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

// Checklist records which supporting documents the application includes
// and the handles of the uploaded files.
type Checklist struct {
	Section
	CoverLetter       bool   `json:"coverLetter"`
	InvestigatorCV    bool   `json:"investigatorCV"`
	GCPTraining       bool   `json:"gcpTraining"`
	ECClearance       bool   `json:"ecClearance"`
	MOUCollaborators  bool   `json:"mouCollaborators"`
	ProtocolCopy      bool   `json:"protocolCopy"`
	ParticipantPISICF bool   `json:"participantPISICF"`
	AssentForm        bool   `json:"assentForm"`
	WaiverConsent     bool   `json:"waiverConsent"`
	ProformaCRF       bool   `json:"proformaCRF"`
	Advertisement     bool   `json:"advertisement"`
	Insurance         *bool  `json:"insurance,omitempty"`
	OtherDocuments    string `json:"otherDocuments,omitempty"`

	CoverLetterID       string `json:"coverLetterId,omitempty"`
	InvestigatorCVID    string `json:"investigatorCVId,omitempty"`
	GCPTrainingID       string `json:"gcpTrainingId,omitempty"`
	ECClearanceID       string `json:"ecClearanceId,omitempty"`
	MOUCollaboratorsID  string `json:"mouCollaboratorsId,omitempty"`
	ProtocolCopyID      string `json:"protocolCopyId,omitempty"`
	ParticipantPISICFID string `json:"participantPISICFId,omitempty"`
	AssentFormID        string `json:"assentFormId,omitempty"`
	WaiverConsentID     string `json:"waiverConsentId,omitempty"`
	ProformaCRFID       string `json:"proformaCRFId,omitempty"`
	AdvertisementID     string `json:"advertisementId,omitempty"`
	InsuranceID         string `json:"insuranceId,omitempty"`
}

// ChecklistDocument names one document category of the checklist.
type ChecklistDocument struct {
	Key   string
	Label string
}

// ChecklistDocuments lists the categories in the order they are presented.
var ChecklistDocuments = []ChecklistDocument{
	{Key: "coverLetter", Label: "Cover letter"},
	{Key: "investigatorCV", Label: "Investigator CV"},
	{Key: "gcpTraining", Label: "GCP training certificate"},
	{Key: "ecClearance", Label: "EC clearance"},
	{Key: "mouCollaborators", Label: "MoU with collaborators"},
	{Key: "protocolCopy", Label: "Protocol copy"},
	{Key: "participantPISICF", Label: "Participant PIS and ICF"},
	{Key: "assentForm", Label: "Assent form"},
	{Key: "waiverConsent", Label: "Waiver of consent"},
	{Key: "proformaCRF", Label: "Proforma / CRF"},
	{Key: "advertisement", Label: "Advertisement"},
	{Key: "insurance", Label: "Insurance"},
}

// FileHandles returns the non-empty file handle fields keyed by their JSON name.
func (c *Checklist) FileHandles() map[string]string {
	all := map[string]string{
		"coverLetterId":       c.CoverLetterID,
		"investigatorCVId":    c.InvestigatorCVID,
		"gcpTrainingId":       c.GCPTrainingID,
		"ecClearanceId":       c.ECClearanceID,
		"mouCollaboratorsId":  c.MOUCollaboratorsID,
		"protocolCopyId":      c.ProtocolCopyID,
		"participantPISICFId": c.ParticipantPISICFID,
		"assentFormId":        c.AssentFormID,
		"waiverConsentId":     c.WaiverConsentID,
		"proformaCRFId":       c.ProformaCRFID,
		"advertisementId":     c.AdvertisementID,
		"insuranceId":         c.InsuranceID,
	}
	out := make(map[string]string)
	for k, v := range all {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// document returns the flag and handle fields of one category.
func (c *Checklist) document(key string) (flag *bool, handle *string) {
	switch key {
	case "coverLetter":
		return &c.CoverLetter, &c.CoverLetterID
	case "investigatorCV":
		return &c.InvestigatorCV, &c.InvestigatorCVID
	case "gcpTraining":
		return &c.GCPTraining, &c.GCPTrainingID
	case "ecClearance":
		return &c.ECClearance, &c.ECClearanceID
	case "mouCollaborators":
		return &c.MOUCollaborators, &c.MOUCollaboratorsID
	case "protocolCopy":
		return &c.ProtocolCopy, &c.ProtocolCopyID
	case "participantPISICF":
		return &c.ParticipantPISICF, &c.ParticipantPISICFID
	case "assentForm":
		return &c.AssentForm, &c.AssentFormID
	case "waiverConsent":
		return &c.WaiverConsent, &c.WaiverConsentID
	case "proformaCRF":
		return &c.ProformaCRF, &c.ProformaCRFID
	case "advertisement":
		return &c.Advertisement, &c.AdvertisementID
	case "insurance":
		if c.Insurance == nil {
			c.Insurance = new(bool)
		}
		return c.Insurance, &c.InsuranceID
	}
	return nil, nil
}

// SetDocument marks a category as included and records its file handle.
// It reports false for an unknown category.
func (c *Checklist) SetDocument(key, fileID string) bool {
	flag, handle := c.document(key)
	if flag == nil {
		return false
	}
	*flag = true
	*handle = fileID
	return true
}

// MissingDocuments lists the categories that are flagged as included but
// have no uploaded file yet, in presentation order.
func (c *Checklist) MissingDocuments() []string {
	var out []string
	for _, d := range ChecklistDocuments {
		if d.Key == "insurance" && c.Insurance == nil {
			continue
		}
		flag, handle := c.document(d.Key)
		if *flag && *handle == "" {
			out = append(out, d.Key)
		}
	}
	return out
}
