package store

import (
	"time"

	"ethics-review/internal/models"
)

func sectionMeta(s *models.Section) (*string, *string, *time.Time, *time.Time) {
	return &s.ID, &s.ApplicationID, &s.CreatedAt, &s.UpdatedAt
}

var applicationsTable = table[models.Application]{
	name: "applications",
	columns: []string{
		"principal_investigator", "department", "submission_date", "review_type",
		"title", "acronym", "protocol_number", "version_number", "status",
	},
	values: func(a *models.Application) []any {
		return []any{
			a.PrincipalInvestigator, a.Department, a.SubmissionDate, string(a.ReviewType),
			a.Title, a.Acronym, a.ProtocolNumber, a.VersionNumber, string(a.Status),
		}
	},
	fields: func(a *models.Application) []any {
		return []any{
			&a.PrincipalInvestigator, &a.Department, &a.SubmissionDate, &a.ReviewType,
			&a.Title, &a.Acronym, &a.ProtocolNumber, &a.VersionNumber, &a.Status,
		}
	},
	meta: func(a *models.Application) (*string, *string, *time.Time, *time.Time) {
		return &a.ID, nil, &a.CreatedAt, &a.UpdatedAt
	},
}

var investigatorsTable = table[models.Investigator]{
	name:         "investigators",
	parentColumn: "application_id",
	columns:      []string{"name", "designation", "qualification", "department", "institution", "address"},
	values: func(i *models.Investigator) []any {
		return []any{i.Name, i.Designation, i.Qualification, i.Department, i.Institution, i.Address}
	},
	fields: func(i *models.Investigator) []any {
		return []any{&i.Name, &i.Designation, &i.Qualification, &i.Department, &i.Institution, &i.Address}
	},
	meta: func(i *models.Investigator) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&i.Section)
	},
}

var fundingTable = table[models.Funding]{
	name:         "funding",
	parentColumn: "application_id",
	singleton:    true,
	columns:      []string{"total_budget", "funding_type", "funding_agency"},
	values: func(f *models.Funding) []any {
		return []any{f.TotalBudget, string(f.FundingType), f.FundingAgency}
	},
	fields: func(f *models.Funding) []any {
		return []any{&f.TotalBudget, &f.FundingType, &f.FundingAgency}
	},
	meta: func(f *models.Funding) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&f.Section)
	},
}

var researchOverviewsTable = table[models.ResearchOverview]{
	name:         "research_overviews",
	parentColumn: "application_id",
	singleton:    true,
	columns:      []string{"summary", "study_type"},
	values: func(r *models.ResearchOverview) []any {
		return []any{r.Summary, string(r.StudyType)}
	},
	fields: func(r *models.ResearchOverview) []any {
		return []any{&r.Summary, &r.StudyType}
	},
	meta: func(r *models.ResearchOverview) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&r.Section)
	},
}

var methodologiesTable = table[models.Methodology]{
	name:         "methodologies",
	parentColumn: "application_id",
	singleton:    true,
	columns:      []string{"sample_size", "justification", "external_lab", "external_lab_details"},
	values: func(m *models.Methodology) []any {
		return []any{m.SampleSize, m.Justification, m.ExternalLab, m.ExternalLabDetails}
	},
	fields: func(m *models.Methodology) []any {
		return []any{&m.SampleSize, &m.Justification, &m.ExternalLab, &m.ExternalLabDetails}
	},
	meta: func(m *models.Methodology) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&m.Section)
	},
}

var participantInfosTable = table[models.ParticipantInfo]{
	name:         "participant_infos",
	parentColumn: "application_id",
	singleton:    true,
	columns: []string{
		"participant_type", "vulnerable_justification", "safeguards",
		"reimbursement", "reimbursement_details", "advertisement", "advertisement_details",
	},
	values: func(p *models.ParticipantInfo) []any {
		return []any{
			string(p.ParticipantType), p.VulnerableJustification, p.Safeguards,
			p.Reimbursement, p.ReimbursementDetails, p.Advertisement, p.AdvertisementDetails,
		}
	},
	fields: func(p *models.ParticipantInfo) []any {
		return []any{
			&p.ParticipantType, &p.VulnerableJustification, &p.Safeguards,
			&p.Reimbursement, &p.ReimbursementDetails, &p.Advertisement, &p.AdvertisementDetails,
		}
	},
	meta: func(p *models.ParticipantInfo) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&p.Section)
	},
}

var consentsTable = table[models.Consent]{
	name:         "consents",
	parentColumn: "application_id",
	singleton:    true,
	columns: []string{
		"waiver_requested", "consent_document_version", "languages_provided",
		"translation_certificate", "understanding_tools",
	},
	values: func(c *models.Consent) []any {
		return []any{
			c.WaiverRequested, c.ConsentDocumentVersion, c.LanguagesProvided,
			c.TranslationCertificate, c.UnderstandingTools,
		}
	},
	fields: func(c *models.Consent) []any {
		return []any{
			&c.WaiverRequested, &c.ConsentDocumentVersion, &c.LanguagesProvided,
			&c.TranslationCertificate, &c.UnderstandingTools,
		}
	},
	meta: func(c *models.Consent) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&c.Section)
	},
}

var paymentsTable = table[models.Payment]{
	name:         "payments",
	parentColumn: "application_id",
	singleton:    true,
	columns:      []string{"treatment_free", "compensation", "details"},
	values: func(p *models.Payment) []any {
		return []any{p.TreatmentFree, p.Compensation, p.Details}
	},
	fields: func(p *models.Payment) []any {
		return []any{&p.TreatmentFree, &p.Compensation, &p.Details}
	},
	meta: func(p *models.Payment) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&p.Section)
	},
}

var confidentialitiesTable = table[models.Confidentiality]{
	name:         "confidentialities",
	parentColumn: "application_id",
	singleton:    true,
	columns:      []string{"has_identifiers", "identifier_type", "access_control", "storage_details"},
	values: func(c *models.Confidentiality) []any {
		return []any{c.HasIdentifiers, string(c.IdentifierType), c.AccessControl, c.StorageDetails}
	},
	fields: func(c *models.Confidentiality) []any {
		return []any{&c.HasIdentifiers, &c.IdentifierType, &c.AccessControl, &c.StorageDetails}
	},
	meta: func(c *models.Confidentiality) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&c.Section)
	},
}

var declarationsTable = table[models.Declaration]{
	name:         "declarations",
	parentColumn: "application_id",
	singleton:    true,
	columns: []string{
		"pi_name", "pi_signature", "pi_date", "co_pi_name", "co_pi_signature", "co_pi_date",
		"privacy_protected", "compliance", "amendments_report", "accurate_records",
	},
	values: func(d *models.Declaration) []any {
		return []any{
			d.PIName, d.PISignature, d.PIDate, d.CoPIName, d.CoPISignature, d.CoPIDate,
			d.PrivacyProtected, d.Compliance, d.AmendmentsReport, d.AccurateRecords,
		}
	},
	fields: func(d *models.Declaration) []any {
		return []any{
			&d.PIName, &d.PISignature, &d.PIDate, &d.CoPIName, &d.CoPISignature, &d.CoPIDate,
			&d.PrivacyProtected, &d.Compliance, &d.AmendmentsReport, &d.AccurateRecords,
		}
	},
	meta: func(d *models.Declaration) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&d.Section)
	},
}

var coInvestigatorsTable = table[models.CoInvestigator]{
	name:         "co_investigators",
	parentColumn: "declaration_id",
	columns:      []string{"name", "signature", "signed_at"},
	values: func(c *models.CoInvestigator) []any {
		return []any{c.Name, c.Signature, c.Date}
	},
	fields: func(c *models.CoInvestigator) []any {
		return []any{&c.Name, &c.Signature, &c.Date}
	},
	meta: func(c *models.CoInvestigator) (*string, *string, *time.Time, *time.Time) {
		return &c.ID, &c.DeclarationID, &c.CreatedAt, &c.UpdatedAt
	},
}

var checklistsTable = table[models.Checklist]{
	name:         "checklists",
	parentColumn: "application_id",
	singleton:    true,
	columns: []string{
		"cover_letter", "investigator_cv", "gcp_training", "ec_clearance", "mou_collaborators",
		"protocol_copy", "participant_pis_icf", "assent_form", "waiver_consent", "proforma_crf",
		"advertisement", "insurance", "other_documents",
		"cover_letter_id", "investigator_cv_id", "gcp_training_id", "ec_clearance_id",
		"mou_collaborators_id", "protocol_copy_id", "participant_pis_icf_id", "assent_form_id",
		"waiver_consent_id", "proforma_crf_id", "advertisement_id", "insurance_id",
	},
	values: func(c *models.Checklist) []any {
		return []any{
			c.CoverLetter, c.InvestigatorCV, c.GCPTraining, c.ECClearance, c.MOUCollaborators,
			c.ProtocolCopy, c.ParticipantPISICF, c.AssentForm, c.WaiverConsent, c.ProformaCRF,
			c.Advertisement, c.Insurance, c.OtherDocuments,
			c.CoverLetterID, c.InvestigatorCVID, c.GCPTrainingID, c.ECClearanceID,
			c.MOUCollaboratorsID, c.ProtocolCopyID, c.ParticipantPISICFID, c.AssentFormID,
			c.WaiverConsentID, c.ProformaCRFID, c.AdvertisementID, c.InsuranceID,
		}
	},
	fields: func(c *models.Checklist) []any {
		return []any{
			&c.CoverLetter, &c.InvestigatorCV, &c.GCPTraining, &c.ECClearance, &c.MOUCollaborators,
			&c.ProtocolCopy, &c.ParticipantPISICF, &c.AssentForm, &c.WaiverConsent, &c.ProformaCRF,
			&c.Advertisement, &c.Insurance, &c.OtherDocuments,
			&c.CoverLetterID, &c.InvestigatorCVID, &c.GCPTrainingID, &c.ECClearanceID,
			&c.MOUCollaboratorsID, &c.ProtocolCopyID, &c.ParticipantPISICFID, &c.AssentFormID,
			&c.WaiverConsentID, &c.ProformaCRFID, &c.AdvertisementID, &c.InsuranceID,
		}
	},
	meta: func(c *models.Checklist) (*string, *string, *time.Time, *time.Time) {
		return sectionMeta(&c.Section)
	},
}
