// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethics-review/internal/api"
	"ethics-review/internal/common/camunda"
	"ethics-review/internal/common/config"
	"ethics-review/internal/common/database"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/documents"
	"ethics-review/internal/models"
	"ethics-review/internal/notify"
	"ethics-review/internal/store"
	"ethics-review/internal/submission"
	"ethics-review/internal/wizard"

	ns "ethics-review/internal/workers/application/notify-submission"
	sa "ethics-review/internal/workers/application/submit-application"
)

// These tests need live services: Postgres on localhost:5432
// and, for the process test, a Zeebe gateway on localhost:26500.
// Set E2E=1 to run them.

const answersYAML = `
application:
  principalInvestigator: Dr. Asha Rao
  department: Cardiology
  submissionDate: "2024-03-01T00:00:00Z"
  reviewType: EXPEDITED
  title: Statin adherence in primary care
  protocolNumber: CARD-2024-01
  versionNumber: "1.0"
investigators:
  - name: Dr. Asha Rao
    designation: Professor
    qualification: MD DM
    department: Cardiology
    institution: City Medical College
    address: 12 Hospital Road
funding:
  totalBudget: 250000
  fundingType: AGENCY
  fundingAgency: ICMR
researchOverview:
  summary: Observational study of statin adherence.
  studyType: COHORT
methodology:
  sampleSize: 120
  justification: Power calculation for 80 percent power.
  externalLab: false
participantInfo:
  participantType: PATIENT
  reimbursement: false
  advertisement: false
consent:
  waiverRequested: false
  consentDocumentVersion: "2.1"
  languagesProvided: English, Hindi
  translationCertificate: true
payment:
  treatmentFree: true
  compensation: false
confidentiality:
  hasIdentifiers: true
  identifierType: IDENTIFIABLE
  accessControl: true
  storageDetails: Encrypted database on hospital servers
declaration:
  piName: Dr. Asha Rao
  piSignature: A. Rao
  piDate: "2024-03-01T00:00:00Z"
  privacyProtected: true
  compliance: true
  amendmentsReport: true
  accurateRecords: true
checklist:
  coverLetter: true
  investigatorCV: false
  gcpTraining: false
  ecClearance: false
  mouCollaborators: false
  protocolCopy: false
  participantPISICF: false
  assentForm: false
  waiverConsent: false
  proformaCRF: false
  advertisement: false
documents:
  coverLetter: cover.pdf
`

type env struct {
	cfg    *config.Config
	log    logger.Logger
	store  *store.Store
	apiURL string
}

func setup(t *testing.T) *env {
	if os.Getenv("E2E") == "" {
		t.Skip("set E2E=1 to run against live services")
	}
	ctx := context.Background()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Database.Postgres.Host = "localhost"
	log := logger.NewTestLogger(t)

	pg, err := database.ConnectPostgres(ctx, cfg.Database.Postgres, log)
	require.NoError(t, err, "PostgreSQL connection failed")
	t.Cleanup(func() { pg.Close() })
	require.NoError(t, pg.Migrate(ctx))

	s := store.New(pg.DB, nil, log)
	handler := api.New(cfg.Server, api.Deps{
		Store:     s,
		Documents: documents.NewService(documents.NewMemoryBlobStore(), s.Files, nil, log),
		Gate:      submission.NewGate(s, nil, nil, log),
		Logger:    log,
	}).Routes()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &env{cfg: cfg, log: log, store: s, apiURL: srv.URL + cfg.Server.BasePath}
}

// fillDraft walks the wizard up to the summary and returns the new
// application's id.
func (e *env) fillDraft(t *testing.T) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.pdf"), []byte("%PDF-1.4"), 0o600))
	path := filepath.Join(dir, "answers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(answersYAML), 0o600))
	answers, err := wizard.LoadAnswers(path)
	require.NoError(t, err)

	client := wizard.NewHTTPEntityClient(e.apiURL, 10*time.Second, 30*time.Second)
	session := wizard.NewSession(client, e.log)
	var out bytes.Buffer
	runner := &wizard.Runner{Session: session, Answers: answers, Out: &out, Attempts: 3, Backoff: time.Second}

	require.NoError(t, runner.Run(context.Background()))
	require.NotNil(t, session.Active())
	assert.Contains(t, out.String(), "is ready to submit")
	return session.Active().ID()
}

func TestWizardDraftThenSubmit(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	id := e.fillDraft(t)

	agg, err := e.store.LoadAggregate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, agg.Status)
	assert.Empty(t, submission.MissingSections(agg))
	require.Len(t, agg.Files, 1)
	assert.Equal(t, agg.Files[0].FileID, agg.Checklists[0].CoverLetterID)

	client := wizard.NewHTTPEntityClient(e.apiURL, 10*time.Second, 30*time.Second)
	submitted, err := client.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, submitted.Status)

	_, err = client.Submit(ctx, id)
	assert.Error(t, err, "second submit must be rejected")
}

func TestSubmissionProcess(t *testing.T) {
	e := setup(t)
	if e.cfg.Camunda.BrokerAddress == "" {
		e.cfg.Camunda.BrokerAddress = "localhost:26500"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	zeebe, err := camunda.NewClient(ctx, camunda.ConfigFrom(e.cfg.Camunda), e.log)
	require.NoError(t, err, "Zeebe connection failed")
	t.Cleanup(func() { zeebe.Close() })

	_, err = zeebe.Raw().NewDeployResourceCommand().
		AddResourceFile(filepath.Join("..", "..", "bpmn", "application-submission.bpmn")).
		Send(ctx)
	require.NoError(t, err)

	notifier := notify.New(e.cfg.Notifications, nil, nil, e.log)
	wcfg := config.WorkerConfig{Enabled: true, MaxJobsActive: 2, Timeout: 30000}
	workers := []*camunda.Worker{
		zeebe.StartWorker(sa.TaskType, wcfg, sa.NewHandler(sa.LoadConfig(wcfg), submission.NewGate(e.store, nil, nil, e.log), e.log), e.log),
		zeebe.StartWorker(ns.TaskType, wcfg, ns.NewHandler(ns.LoadConfig(wcfg), e.store.Applications, notifier, e.log), e.log),
	}
	t.Cleanup(func() {
		for _, w := range workers {
			w.Stop()
		}
	})

	id := e.fillDraft(t)

	run := func() map[string]interface{} {
		cmd, err := zeebe.Raw().NewCreateInstanceCommand().
			BPMNProcessId("application-submission").
			LatestVersion().
			VariablesFromMap(map[string]interface{}{"applicationId": id})
		require.NoError(t, err)

		res, err := cmd.WithResult().Send(ctx)
		require.NoError(t, err)

		var vars map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(res.GetVariables()), &vars))
		return vars
	}

	vars := run()
	assert.Equal(t, string(models.StatusSubmitted), vars["applicationStatus"])
	assert.Equal(t, ns.StatusDisabled, vars["status"])

	app, err := e.store.Applications.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, app.Status)

	// A second run is rejected by the gate. The boundary event catches the
	// BPMN error, so the instance still completes instead of raising an
	// incident.
	run()
}
