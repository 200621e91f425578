package api

import (
	"context"
	"net/http"
	"time"

	"ethics-review/internal/common/validation"
	"ethics-review/internal/models"
	"ethics-review/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the HTTP handler. The entity API lives under the base path;
// health, readiness and metrics are served at the root.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Get("/ready", a.ready)
	r.Handle("/metrics", promhttp.Handler())

	base := a.basePath
	if base == "" {
		base = "/api"
	}

	r.Route(base, func(r chi.Router) {
		applications := &resource[models.Application, *models.Application]{
			api:   a,
			label: "Application",
			kind:  validation.KindApplication,
			repo:  func(s *store.Store) *store.ApplicationRepo { return s.Applications },
			prepare: func(app *models.Application) {
				app.Status = models.StatusDraft
			},
			created: func(ctx context.Context, tx *store.Store, app *models.Application) error {
				return tx.Audit(ctx, "application_created", app.ID, map[string]interface{}{
					"title":          app.Title,
					"protocolNumber": app.ProtocolNumber,
				})
			},
		}
		r.Route("/applications", func(r chi.Router) {
			applications.mount(r, a.getAggregate)
			r.Put("/{id}/sections", a.saveSections)
			r.Post("/{id}/submit", a.submit)
		})

		r.Route("/investigators", (&resource[models.Investigator, *models.Investigator]{
			api: a, label: "Investigator", kind: validation.KindInvestigator, parent: applicationParent,
			repo: func(s *store.Store) *store.InvestigatorRepo { return s.Investigators },
		}).routes)
		r.Route("/funding", (&resource[models.Funding, *models.Funding]{
			api: a, label: "Funding", kind: validation.KindFunding, parent: applicationParent,
			repo: func(s *store.Store) *store.FundingRepo { return s.Funding },
		}).routes)
		r.Route("/research-overview", (&resource[models.ResearchOverview, *models.ResearchOverview]{
			api: a, label: "Research overview", kind: validation.KindResearchOverview, parent: applicationParent,
			repo: func(s *store.Store) *store.ResearchOverviewRepo { return s.ResearchOverviews },
		}).routes)
		r.Route("/methodology", (&resource[models.Methodology, *models.Methodology]{
			api: a, label: "Methodology", kind: validation.KindMethodology, parent: applicationParent,
			repo: func(s *store.Store) *store.MethodologyRepo { return s.Methodologies },
		}).routes)
		r.Route("/participants", (&resource[models.ParticipantInfo, *models.ParticipantInfo]{
			api: a, label: "Participant info", kind: validation.KindParticipant, parent: applicationParent,
			repo: func(s *store.Store) *store.ParticipantInfoRepo { return s.ParticipantInfos },
		}).routes)
		r.Route("/consent", (&resource[models.Consent, *models.Consent]{
			api: a, label: "Consent", kind: validation.KindConsent, parent: applicationParent,
			repo: func(s *store.Store) *store.ConsentRepo { return s.Consents },
		}).routes)
		r.Route("/payment", (&resource[models.Payment, *models.Payment]{
			api: a, label: "Payment", kind: validation.KindPayment, parent: applicationParent,
			repo: func(s *store.Store) *store.PaymentRepo { return s.Payments },
		}).routes)
		r.Route("/confidentiality", (&resource[models.Confidentiality, *models.Confidentiality]{
			api: a, label: "Confidentiality", kind: validation.KindConfidentiality, parent: applicationParent,
			repo: func(s *store.Store) *store.ConfidentialityRepo { return s.Confidentialities },
		}).routes)
		r.Route("/declaration", (&resource[models.Declaration, *models.Declaration]{
			api: a, label: "Declaration", kind: validation.KindDeclaration, parent: applicationParent,
			repo: func(s *store.Store) *store.DeclarationRepo { return s.Declarations },
		}).routes)
		r.Route("/co-investigators", (&resource[models.CoInvestigator, *models.CoInvestigator]{
			api: a, label: "Co-investigator", kind: validation.KindCoInvestigator, parent: declarationParent,
			repo: func(s *store.Store) *store.CoInvestigatorRepo { return s.CoInvestigators },
		}).routes)
		r.Route("/checklist", (&resource[models.Checklist, *models.Checklist]{
			api: a, label: "Checklist", kind: validation.KindChecklist, parent: applicationParent,
			repo:  func(s *store.Store) *store.ChecklistRepo { return s.Checklists },
			check: checkFileHandles,
		}).routes)

		r.Post("/upload", a.upload)
		r.Get("/files/{applicationId}", a.listFiles)
		r.Get("/files/{applicationId}/{fileId}", a.downloadFile)
	})

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(a.readiness))
	ready := true
	for name, check := range a.readiness {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	body := map[string]any{"status": "ready", "checks": checks}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}
