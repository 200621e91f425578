package validation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethics-review/internal/models"
)

func validApplication() map[string]interface{} {
	return map[string]interface{}{
		"principalInvestigator": "Dr. Asha Rao",
		"department":            "Community Medicine",
		"submissionDate":        "2024-03-01T00:00:00Z",
		"reviewType":            "EXPEDITED",
		"title":                 "Sleep patterns in night-shift nurses",
		"protocolNumber":        "P-001",
		"versionNumber":         "1.0",
	}
}

func TestNew_CompilesEverySchema(t *testing.T) {
	v, err := New()
	require.NoError(t, err)
	for _, kind := range Kinds() {
		assert.Contains(t, v.full, kind)
		assert.Contains(t, v.partial, kind)
	}
	assert.Len(t, Kinds(), 12)
}

func TestValidate_Application(t *testing.T) {
	v := Default()

	t.Run("valid payload", func(t *testing.T) {
		result, err := v.Validate(KindApplication, validApplication())
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.False(t, result.HasErrors())
	})

	t.Run("missing required field names its path", func(t *testing.T) {
		doc := validApplication()
		delete(doc, "title")

		result, err := v.Validate(KindApplication, doc)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "Required", result.Fields()["title"])
	})

	t.Run("short strings and bad enum", func(t *testing.T) {
		doc := validApplication()
		doc["department"] = "ab"
		doc["reviewType"] = "FAST"

		result, err := v.Validate(KindApplication, doc)
		require.NoError(t, err)
		fields := result.Fields()
		assert.Equal(t, "String must contain at least 3 character(s)", fields["department"])
		assert.Contains(t, fields["reviewType"], "Invalid enum value")
	})

	t.Run("invalid date", func(t *testing.T) {
		doc := validApplication()
		doc["submissionDate"] = "yesterday"

		result, err := v.Validate(KindApplication, doc)
		require.NoError(t, err)
		assert.Equal(t, "Invalid datetime", result.Fields()["submissionDate"])
	})

	t.Run("zero time from a struct is treated as missing", func(t *testing.T) {
		app := models.Application{
			PrincipalInvestigator: "Dr. Asha Rao",
			Department:            "Community Medicine",
			ReviewType:            models.ReviewExpedited,
			Title:                 "Sleep patterns",
			ProtocolNumber:        "P-001",
			VersionNumber:         "1.0",
		}

		result, err := v.Validate(KindApplication, app)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Equal(t, "Required", result.Fields()["submissionDate"])
	})
}

func TestValidate_FundingAgencyConditional(t *testing.T) {
	v := Default()
	appID := uuid.NewString()

	agency := map[string]interface{}{
		"totalBudget":   150000,
		"fundingType":   "AGENCY",
		"fundingAgency": "",
		"applicationId": appID,
	}
	result, err := v.Validate(KindFunding, agency)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Fields(), "fundingAgency")

	delete(agency, "fundingAgency")
	result, err = v.Validate(KindFunding, agency)
	require.NoError(t, err)
	assert.Equal(t, "Required", result.Fields()["fundingAgency"])

	self := map[string]interface{}{
		"totalBudget":   150000,
		"fundingType":   "SELF",
		"fundingAgency": "",
		"applicationId": appID,
	}
	result, err = v.Validate(KindFunding, self)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidate_FundingBudgetMustBePositive(t *testing.T) {
	result, err := Default().Validate(KindFunding, models.Funding{
		Section:     models.Section{ApplicationID: uuid.NewString()},
		TotalBudget: 0,
		FundingType: models.FundingSelf,
	})
	require.NoError(t, err)
	assert.Equal(t, "Number must be greater than 0", result.Fields()["totalBudget"])
}

func TestValidate_MethodologyExternalLab(t *testing.T) {
	v := Default()
	m := models.Methodology{
		Section:       models.Section{ApplicationID: uuid.NewString()},
		SampleSize:    120,
		Justification: "Power calculation at 80% with alpha 0.05",
		ExternalLab:   true,
	}

	result, err := v.Validate(KindMethodology, m)
	require.NoError(t, err)
	assert.Contains(t, result.Fields(), "externalLabDetails")

	m.ExternalLabDetails = "Central reference lab"
	result, err = v.Validate(KindMethodology, m)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidate_ParticipantConditionals(t *testing.T) {
	v := Default()
	p := models.ParticipantInfo{
		Section:         models.Section{ApplicationID: uuid.NewString()},
		ParticipantType: models.ParticipantVulnerable,
		Reimbursement:   true,
		Advertisement:   true,
	}

	result, err := v.Validate(KindParticipant, p)
	require.NoError(t, err)
	fields := result.Fields()
	assert.Contains(t, fields, "vulnerableJustification")
	assert.Contains(t, fields, "reimbursementDetails")
	assert.Contains(t, fields, "advertisementDetails")

	p.ParticipantType = models.ParticipantHealthy
	p.Reimbursement = false
	p.Advertisement = false
	result, err = v.Validate(KindParticipant, p)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidate_ConsentLanguages(t *testing.T) {
	v := Default()
	c := models.Consent{
		Section:                models.Section{ApplicationID: uuid.NewString()},
		ConsentDocumentVersion: "v2",
		LanguagesProvided:      []string{},
	}

	result, err := v.Validate(KindConsent, c)
	require.NoError(t, err)
	assert.Equal(t, "Array must contain at least 1 element(s)", result.Fields()["languagesProvided"])

	c.LanguagesProvided = []string{"English", ""}
	result, err = v.Validate(KindConsent, c)
	require.NoError(t, err)
	assert.Contains(t, result.Fields(), "languagesProvided.1")
	assert.Len(t, result.GetErrorsForField("languagesProvided"), 1)
}

func TestValidate_ChecklistFileHandles(t *testing.T) {
	v := Default()
	c := models.Checklist{
		Section:       models.Section{ApplicationID: uuid.NewString()},
		CoverLetter:   true,
		CoverLetterID: "not-a-handle",
	}

	result, err := v.Validate(KindChecklist, c)
	require.NoError(t, err)
	assert.Equal(t, "Invalid file reference", result.Fields()["coverLetterId"])

	c.CoverLetterID = uuid.NewString()
	result, err = v.Validate(KindChecklist, c)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestValidate_CoInvestigatorDeclarationReference(t *testing.T) {
	result, err := Default().Validate(KindCoInvestigator, map[string]interface{}{
		"name":          "Dr. Kim",
		"signature":     "K. Kim",
		"date":          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"declarationId": "123",
	})
	require.NoError(t, err)
	assert.Equal(t, "Invalid uuid", result.Fields()["declarationId"])
}

func TestValidatePartial(t *testing.T) {
	v := Default()

	result, err := v.ValidatePartial(KindFunding, map[string]interface{}{"fundingType": "AGENCY"})
	require.NoError(t, err)
	assert.True(t, result.Valid, "partial updates skip required and conditional rules")

	result, err = v.ValidatePartial(KindFunding, map[string]interface{}{"totalBudget": -5})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Fields(), "totalBudget")

	result, err = v.ValidatePartial(KindApplication, map[string]interface{}{"title": 12})
	require.NoError(t, err)
	assert.Equal(t, "Expected string, received integer", result.Fields()["title"])
}

func TestValidate_UnknownKind(t *testing.T) {
	_, err := Default().Validate(Kind("nope"), map[string]interface{}{})
	require.Error(t, err)
}
