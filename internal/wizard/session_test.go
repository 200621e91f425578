package wizard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var submitted = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func validApplication() models.Application {
	return models.Application{
		PrincipalInvestigator: "Dr. Asha Rao",
		Department:            "Cardiology",
		SubmissionDate:        submitted,
		ReviewType:            models.ReviewExpedited,
		Title:                 "Statin adherence in primary care",
		ProtocolNumber:        "CARD-2024-01",
		VersionNumber:         "1.0",
	}
}

func section(id string) models.Section {
	return models.Section{ID: id, ApplicationID: appID}
}

// seededClient holds an application with steps 1 to 8 complete.
func seededClient() *fakeClient {
	app := validApplication()
	app.ID = appID
	app.Status = models.StatusDraft

	fc := newFakeClient()
	fc.agg = &models.ApplicationAggregate{
		Application: app,
		Investigators: []models.Investigator{{
			Section: section("inv-1"), Name: "Dr. Asha Rao", Designation: "Professor",
			Qualification: "MD", Department: "Cardiology", Institution: "City Medical College",
			Address: "12 Hospital Road",
		}},
		Funding:          &models.Funding{Section: section("fund-1"), TotalBudget: 1000, FundingType: models.FundingSelf},
		ResearchOverview: &models.ResearchOverview{Section: section("ro-1"), Summary: "Observational cohort study", StudyType: models.StudyCohort},
		Methodology:      &models.Methodology{Section: section("meth-1"), SampleSize: 120, Justification: "Power calculation"},
		ParticipantInfo:  &models.ParticipantInfo{Section: section("part-1"), ParticipantType: models.ParticipantPatient},
		Consent:          &models.Consent{Section: section("cons-1"), ConsentDocumentVersion: "2.1", LanguagesProvided: []string{"English"}},
		Payment:          &models.Payment{Section: section("pay-1"), TreatmentFree: true},
		Confidentiality:  &models.Confidentiality{Section: section("conf-1"), IdentifierType: models.IdentifierAnonymous, StorageDetails: "Encrypted storage"},
	}
	return fc
}

// withDeclaration completes step 9 with the given checklist.
func withDeclaration(fc *fakeClient, checklist models.Checklist) *fakeClient {
	fc.agg.Declarations = []models.Declaration{{
		Section: section("decl-1"), PIName: "Dr. Asha Rao", PISignature: "A. Rao", PIDate: submitted,
		PrivacyProtected: true, Compliance: true, AmendmentsReport: true, AccurateRecords: true,
	}}
	checklist.Section = section("check-1")
	fc.agg.Checklists = []models.Checklist{checklist}
	return fc
}

func newTestSession(t *testing.T, fc *fakeClient) *Session {
	return NewSession(fc, logger.NewTestLogger(t))
}

func TestSession_ValidationMakesNoNetworkCall(t *testing.T) {
	fc := newFakeClient()
	s := newTestSession(t, fc)

	err := s.Save(context.Background())

	var fieldErrs *FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs.Fields, "title")
	assert.Contains(t, fieldErrs.Fields, "reviewType")
	assert.Zero(t, fc.callCount())
	assert.Nil(t, s.Active())
	assert.Equal(t, 1, s.Current().Number())
}

func TestSession_CannotAdvanceWithoutSave(t *testing.T) {
	s := newTestSession(t, newFakeClient())

	err := s.Next(context.Background())

	assert.ErrorIs(t, err, ErrStepNotSaved)
	assert.Equal(t, 1, s.Current().Number())
}

func TestSession_FirstSaveBindsApplication(t *testing.T) {
	fc := newFakeClient()
	s := newTestSession(t, fc)
	ctx := context.Background()

	require.NoError(t, s.Edit(func(step Step) error {
		step.(*ApplicationStep).Form = validApplication()
		return nil
	}))
	require.NoError(t, s.Save(ctx))

	require.NotNil(t, s.Active())
	assert.Equal(t, appID, s.Active().ID())
	assert.Equal(t, "CARD-2024-01", s.Active().ProtocolNumber())

	// a second save updates instead of creating a new application
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, []string{"CreateApplication", "UpdateApplication"}, fc.calls)

	require.NoError(t, s.Next(ctx))
	assert.Equal(t, 2, s.Current().Number())
	assert.ErrorIs(t, s.Resume(ctx, appID), ErrApplicationBound)
}

func TestSession_InvestigatorsRequireOne(t *testing.T) {
	fc := newFakeClient()
	s := newTestSession(t, fc)
	ctx := context.Background()

	s.steps[0].(*ApplicationStep).Form = validApplication()
	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Next(ctx))

	err := s.Save(ctx)

	var fieldErrs *FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "At least one investigator is required", fieldErrs.Fields["investigators"])
	assert.ErrorIs(t, s.Next(ctx), ErrStepNotSaved)
}

func TestSession_StoreFailureStaysOnStep(t *testing.T) {
	fc := seededClient()
	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.NoError(t, s.Goto(ctx, 3))

	fc.saveErr = &APIError{StatusCode: 503, Message: "Service Unavailable"}
	require.NoError(t, s.Edit(func(step Step) error {
		step.(*FundingStep).Form.TotalBudget = 5000
		return nil
	}))
	err := s.Save(ctx)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 3, stepErr.Step)
	assert.True(t, stepErr.Retryable)
	assert.Equal(t, 3, s.Current().Number())
	assert.False(t, s.Saved(3))
	assert.ErrorIs(t, s.Next(ctx), ErrStepNotSaved)
}

func TestSession_ResumeMovesToFirstIncompleteStep(t *testing.T) {
	fc := seededClient()
	s := newTestSession(t, fc)

	require.NoError(t, s.Resume(context.Background(), appID))

	assert.Equal(t, 9, s.Current().Number())
	for n := 1; n <= 8; n++ {
		assert.True(t, s.Saved(n), "step %d", n)
	}
	assert.False(t, s.Saved(9))
	assert.Equal(t, 1000.0, s.steps[2].(*FundingStep).Form.TotalBudget)
}

func TestSession_ResumeUnknownApplication(t *testing.T) {
	s := newTestSession(t, newFakeClient())

	err := s.Resume(context.Background(), appID)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.False(t, stepErr.Retryable)
	assert.Nil(t, s.Active())
}

func TestSession_ResumeTimeoutIsRetryable(t *testing.T) {
	fc := seededClient()
	fc.getErr = context.DeadlineExceeded
	s := newTestSession(t, fc)

	err := s.Resume(context.Background(), appID)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.True(t, stepErr.Retryable)
}

func TestSession_Goto(t *testing.T) {
	s := newTestSession(t, seededClient())
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))

	require.NoError(t, s.Goto(ctx, 4))
	assert.Equal(t, 4, s.Current().Number())

	assert.ErrorIs(t, s.Goto(ctx, 10), ErrStepLocked)
	assert.ErrorIs(t, s.Goto(ctx, 12), ErrStepLocked)
	assert.Equal(t, 4, s.Current().Number())

	require.NoError(t, s.Goto(ctx, 9))
	assert.Equal(t, 9, s.Current().Number())

	s.Back()
	assert.Equal(t, 8, s.Current().Number())
}

func TestSession_EditInvalidatesSave(t *testing.T) {
	s := newTestSession(t, seededClient())
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.NoError(t, s.Goto(ctx, 5))

	require.NoError(t, s.Edit(func(step Step) error {
		step.(*MethodologyStep).Form.ExternalLab = true
		return nil
	}))
	assert.ErrorIs(t, s.Next(ctx), ErrStepNotSaved)

	err := s.Save(ctx)
	var fieldErrs *FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Contains(t, fieldErrs.Fields, "externalLabDetails")
}

func TestSession_DeclarationStepSavesInOneBatch(t *testing.T) {
	fc := seededClient()
	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.Equal(t, 9, s.Current().Number())

	require.NoError(t, s.Edit(func(step Step) error {
		d := step.(*DeclarationStep)
		d.Declaration = models.Declaration{
			PIName: "Dr. Asha Rao", PISignature: "A. Rao", PIDate: submitted,
			PrivacyProtected: true, Compliance: true, AmendmentsReport: true, AccurateRecords: true,
		}
		d.CoInvestigators = []models.CoInvestigator{{Name: "Dr. Vikram Shah", Signature: "V. Shah", Date: submitted}}
		d.Checklist = models.Checklist{CoverLetter: true}
		return nil
	}))
	require.NoError(t, s.Save(ctx))

	assert.Equal(t, 1, countCalls(fc, "SaveSections"))
	require.Len(t, fc.agg.CoInvestigators, 1)
	assert.Equal(t, fc.agg.Declarations[0].ID, fc.agg.CoInvestigators[0].DeclarationID)
	assert.True(t, fc.agg.Checklists[0].CoverLetter)

	step := s.Current().(*DeclarationStep)
	assert.NotEmpty(t, step.Declaration.ID)
	assert.NotEmpty(t, step.CoInvestigators[0].ID)
}

func TestSession_DeclarationStepClearsCoInvestigators(t *testing.T) {
	fc := withDeclaration(seededClient(), models.Checklist{CoverLetter: true})
	fc.agg.CoInvestigators = []models.CoInvestigator{{ID: "co-1", DeclarationID: "decl-1", Name: "Dr. Vikram Shah", Signature: "V. Shah", Date: submitted}}
	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.NoError(t, s.Goto(ctx, 9))

	step := s.Current().(*DeclarationStep)
	require.Len(t, step.CoInvestigators, 1)

	require.NoError(t, s.Edit(func(step Step) error {
		step.(*DeclarationStep).CoInvestigators = nil
		return nil
	}))
	require.NoError(t, s.Save(ctx))

	assert.Empty(t, fc.agg.CoInvestigators)
	assert.Empty(t, s.Current().(*DeclarationStep).CoInvestigators)
}

func countCalls(fc *fakeClient, name string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n := 0
	for _, c := range fc.calls {
		if c == name {
			n++
		}
	}
	return n
}

func document(key, filename string) Document {
	return Document{
		Key:      key,
		Filename: filename,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte("%PDF-1.4 " + filename))), nil
		},
	}
}

func TestDocumentsStep_ConcurrentUploadsWithPartialFailure(t *testing.T) {
	fc := withDeclaration(seededClient(), models.Checklist{
		CoverLetter: true, InvestigatorCV: true, GCPTraining: true, ECClearance: true, ProtocolCopy: true,
	})
	fc.uploadWait = 20 * time.Millisecond
	fc.uploadErr["cv.pdf"] = &APIError{StatusCode: 500, Message: "File upload failed"}

	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.Equal(t, 10, s.Current().Number())

	step := s.Current().(*DocumentsStep)
	step.Concurrency = 2
	require.NoError(t, s.Edit(func(Step) error {
		step.Select(document("coverLetter", "cover.pdf"))
		step.Select(document("investigatorCV", "cv.pdf"))
		step.Select(document("gcpTraining", "gcp.pdf"))
		step.Select(document("ecClearance", "ec.pdf"))
		step.Select(document("protocolCopy", "protocol.pdf"))
		return nil
	}))

	err := s.Save(ctx)

	var uploads *UploadErrors
	require.ErrorAs(t, err, &uploads)
	assert.Len(t, uploads.Failed, 1)
	assert.Contains(t, uploads.Failed, "investigatorCV")
	assert.LessOrEqual(t, fc.maxInFlight, int32(2))
	assert.Equal(t, 5, countCalls(fc, "UploadFile"))
	assert.False(t, s.Saved(10))

	saved := fc.agg.Checklists[0]
	assert.NotEmpty(t, saved.CoverLetterID)
	assert.NotEmpty(t, saved.GCPTrainingID)
	assert.NotEmpty(t, saved.ECClearanceID)
	assert.NotEmpty(t, saved.ProtocolCopyID)
	assert.Empty(t, saved.InvestigatorCVID)

	require.Len(t, step.Documents, 1)
	assert.Equal(t, "investigatorCV", step.Documents[0].Key)

	// retrying uploads only the failed document
	delete(fc.uploadErr, "cv.pdf")
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, 6, countCalls(fc, "UploadFile"))
	assert.NotEmpty(t, fc.agg.Checklists[0].InvestigatorCVID)
	assert.NotEmpty(t, fc.agg.Checklists[0].CoverLetterID)
	assert.Empty(t, step.Documents)
	assert.True(t, s.Saved(10))
}

func TestDocumentsStep_ValidatesSelection(t *testing.T) {
	fc := withDeclaration(seededClient(), models.Checklist{CoverLetter: true})
	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))

	step := s.Current().(*DocumentsStep)
	step.Select(document("coverLetter", "a.pdf"))
	step.Select(document("coverLetter", "b.pdf"))
	step.Select(document("passport", "c.pdf"))
	step.Select(Document{Key: "insurance"})

	err := s.Save(ctx)

	var fieldErrs *FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Equal(t, "Category selected twice", fieldErrs.Fields["documents[1].key"])
	assert.Equal(t, "Unknown document category", fieldErrs.Fields["documents[2].key"])
	assert.Equal(t, "Required", fieldErrs.Fields["documents[3].file"])
	assert.Zero(t, countCalls(fc, "UploadFile"))
}

func TestSummaryStep_Incomplete(t *testing.T) {
	fc := seededClient()
	fc.agg.Funding = nil
	step := &SummaryStep{}
	app := newActiveApplication(&fc.agg.Application)

	err := classify(step, step.Save(context.Background(), fc, app))

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []string{"Funding", "Declaration", "Checklist"}, incomplete.Missing)
	assert.Equal(t, models.StatusDraft, fc.agg.Status)
}

func TestSummaryStep_Submit(t *testing.T) {
	fc := withDeclaration(seededClient(), models.Checklist{})
	s := newTestSession(t, fc)
	ctx := context.Background()
	require.NoError(t, s.Resume(ctx, appID))
	require.Equal(t, 11, s.Current().Number())

	require.NoError(t, s.Save(ctx))

	step := s.Current().(*SummaryStep)
	require.NotNil(t, step.Submitted)
	assert.Equal(t, models.StatusSubmitted, step.Submitted.Status)
	assert.True(t, step.Summary.IsSubmitted())
	assert.ErrorIs(t, s.Next(ctx), ErrNoMoreSteps)

	// submitting twice is refused by the server
	err := s.Save(ctx)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Application already submitted", apiErr.Message)
}

func TestParseLanguages(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"English, Hindi", []string{"English", "Hindi"}},
		{" English ,, Hindi , ", []string{"English", "Hindi"}},
		{"", []string{}},
		{" , ", []string{}},
		{"Tamil", []string{"Tamil"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLanguages(tt.in))
		})
	}
}
