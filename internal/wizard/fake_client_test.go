package wizard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ethics-review/internal/models"
	"ethics-review/internal/submission"

	"github.com/google/uuid"
)

const appID = "5d9c3c1e-7b5a-4d7e-9a53-0f0c5a2b8e11"

// fakeClient keeps one application in memory.
type fakeClient struct {
	mu    sync.Mutex
	agg   *models.ApplicationAggregate
	calls []string

	getErr     error
	saveErr    error
	uploadErr  map[string]error
	uploadWait time.Duration

	inFlight    int32
	maxInFlight int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{uploadErr: make(map[string]error)}
}

func (f *fakeClient) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func notFound() error {
	return &APIError{StatusCode: http.StatusNotFound, Message: "Application not found"}
}

func convert(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeClient) CreateApplication(_ context.Context, app *models.Application) (*models.Application, error) {
	f.record("CreateApplication")
	f.mu.Lock()
	defer f.mu.Unlock()
	created := *app
	created.ID = appID
	created.Status = models.StatusDraft
	f.agg = &models.ApplicationAggregate{Application: created}
	return &created, nil
}

func (f *fakeClient) UpdateApplication(_ context.Context, id string, app *models.Application) (*models.Application, error) {
	f.record("UpdateApplication")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agg == nil || f.agg.ID != id {
		return nil, notFound()
	}
	updated := *app
	updated.ID = id
	updated.Status = f.agg.Status
	f.agg.Application = updated
	return &updated, nil
}

func (f *fakeClient) GetApplication(_ context.Context, id string) (*models.ApplicationAggregate, error) {
	f.record("GetApplication")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.agg == nil || f.agg.ID != id {
		return nil, notFound()
	}
	var out models.ApplicationAggregate
	if err := convert(f.agg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeClient) CreateInvestigator(_ context.Context, inv *models.Investigator) (*models.Investigator, error) {
	f.record("CreateInvestigator")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	created := *inv
	created.ID = uuid.NewString()
	f.agg.Investigators = append(f.agg.Investigators, created)
	return &created, nil
}

func (f *fakeClient) SaveSection(_ context.Context, resource string, in, out any) error {
	f.record("SaveSection:" + resource)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}

	var stored any
	switch resource {
	case "funding":
		f.agg.Funding = &models.Funding{}
		stored = f.agg.Funding
	case "research-overview":
		f.agg.ResearchOverview = &models.ResearchOverview{}
		stored = f.agg.ResearchOverview
	case "methodology":
		f.agg.Methodology = &models.Methodology{}
		stored = f.agg.Methodology
	case "participants":
		f.agg.ParticipantInfo = &models.ParticipantInfo{}
		stored = f.agg.ParticipantInfo
	case "consent":
		f.agg.Consent = &models.Consent{}
		stored = f.agg.Consent
	case "checklist":
		f.agg.Checklists = []models.Checklist{{}}
		stored = &f.agg.Checklists[0]
	}
	if err := convert(in, stored); err != nil {
		return err
	}
	if sec, ok := stored.(interface {
		GetID() string
		SetID(string)
	}); ok && sec.GetID() == "" {
		sec.SetID(uuid.NewString())
	}
	return convert(stored, out)
}

func (f *fakeClient) SaveSections(_ context.Context, _ string, batch SectionBatch) (*SectionBatch, error) {
	f.record("SaveSections")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}

	out := &SectionBatch{}
	if batch.Payment != nil {
		p := *batch.Payment
		p.ID = uuid.NewString()
		f.agg.Payment, out.Payment = &p, &p
	}
	if batch.Confidentiality != nil {
		c := *batch.Confidentiality
		c.ID = uuid.NewString()
		f.agg.Confidentiality, out.Confidentiality = &c, &c
	}
	if batch.Declaration != nil {
		d := *batch.Declaration
		d.ID = uuid.NewString()
		f.agg.Declarations = []models.Declaration{d}
		out.Declaration = &d
	}
	if batch.CoInvestigators != nil {
		f.agg.CoInvestigators = make([]models.CoInvestigator, 0, len(batch.CoInvestigators))
		for _, co := range batch.CoInvestigators {
			co.ID = uuid.NewString()
			co.DeclarationID = f.agg.Declarations[0].ID
			f.agg.CoInvestigators = append(f.agg.CoInvestigators, co)
		}
		out.CoInvestigators = f.agg.CoInvestigators
	}
	if batch.Checklist != nil {
		c := *batch.Checklist
		c.ID = uuid.NewString()
		f.agg.Checklists = []models.Checklist{c}
		out.Checklist = &c
	}
	return out, nil
}

func (f *fakeClient) UploadFile(_ context.Context, applicationID, name, filename string, body io.Reader) (string, error) {
	f.record("UploadFile")

	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}
	time.Sleep(f.uploadWait)

	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[filename]; err != nil {
		return "", err
	}
	if f.agg == nil || f.agg.ID != applicationID {
		return "", notFound()
	}
	fileID := uuid.NewString()
	f.agg.Files = append(f.agg.Files, models.File{ApplicationID: applicationID, FileID: fileID, Name: name})
	return fileID, nil
}

func (f *fakeClient) Submit(_ context.Context, applicationID string) (*models.Application, error) {
	f.record("Submit")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agg == nil || f.agg.ID != applicationID {
		return nil, notFound()
	}
	if f.agg.IsSubmitted() {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: "Application already submitted"}
	}
	if missing := submission.MissingSections(f.agg); len(missing) > 0 {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Message: "Application incomplete", MissingSections: missing}
	}
	f.agg.Status = models.StatusSubmitted
	app := f.agg.Application
	return &app, nil
}
