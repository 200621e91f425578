// Package submission implements the DRAFT to SUBMITTED transition of an
// application. The transition happens only when every required section is
// present.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/metrics"
	"ethics-review/internal/common/observability"
	"ethics-review/internal/models"
	"ethics-review/internal/store"
)

// Section labels in the order they are reported.
const (
	LabelInvestigators    = "Investigators"
	LabelFunding          = "Funding"
	LabelResearchOverview = "Research Overview"
	LabelMethodology      = "Methodology"
	LabelParticipants     = "Participants"
	LabelConsent          = "Consent"
	LabelPayment          = "Payment"
	LabelConfidentiality  = "Confidentiality"
	LabelDeclaration      = "Declaration"
	LabelChecklist        = "Checklist"
)

const EventApplicationSubmitted = "application_submitted"

// IncompleteError lists every section that is missing.
type IncompleteError struct {
	ApplicationID string
	Missing       []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("application %s is missing sections: %s", e.ApplicationID, strings.Join(e.Missing, ", "))
}

func (e *IncompleteError) Unwrap() error {
	return apperrors.ErrIncomplete
}

// MissingSections lets apperrors.FromError carry the labels into a
// StandardError.
func (e *IncompleteError) MissingSections() []string {
	return e.Missing
}

// MissingSections returns the labels of the required sections absent from
// agg, in reporting order. List sections need at least one element.
func MissingSections(agg *models.ApplicationAggregate) []string {
	checks := []struct {
		label   string
		present bool
	}{
		{LabelInvestigators, len(agg.Investigators) > 0},
		{LabelFunding, agg.Funding != nil},
		{LabelResearchOverview, agg.ResearchOverview != nil},
		{LabelMethodology, agg.Methodology != nil},
		{LabelParticipants, agg.ParticipantInfo != nil},
		{LabelConsent, agg.Consent != nil},
		{LabelPayment, agg.Payment != nil},
		{LabelConfidentiality, agg.Confidentiality != nil},
		{LabelDeclaration, len(agg.Declarations) > 0},
		{LabelChecklist, len(agg.Checklists) > 0},
	}

	missing := make([]string, 0)
	for _, c := range checks {
		if !c.present {
			missing = append(missing, c.label)
		}
	}
	return missing
}

// Notifier is told about applications that were submitted.
type Notifier interface {
	NotifySubmitted(ctx context.Context, app *models.Application) error
}

// Gate performs submissions.
type Gate struct {
	store    *store.Store
	notifier Notifier
	obs      *observability.Observability
	logger   logger.Logger
	now      func() time.Time
}

// NewGate returns a Gate. notifier and obs may be nil.
func NewGate(s *store.Store, notifier Notifier, obs *observability.Observability, log logger.Logger) *Gate {
	return &Gate{
		store:    s,
		notifier: notifier,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "submission-gate"}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit locks the application, checks every section and marks it
// SUBMITTED. It fails with ErrNotFound, ErrAlreadySubmitted or an
// *IncompleteError, leaving the application unchanged.
func (g *Gate) Submit(ctx context.Context, applicationID string) (*models.Application, error) {
	start := time.Now()
	log := g.logger.WithFields(map[string]interface{}{"applicationId": applicationID})

	var submitted *models.Application
	err := g.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		status, err := tx.ApplicationStatus(ctx, applicationID, true)
		if err != nil {
			return err
		}
		if status == models.StatusSubmitted {
			return apperrors.NewAlreadySubmittedError(applicationID)
		}

		agg, err := tx.LoadAggregate(ctx, applicationID)
		if err != nil {
			return err
		}
		if missing := MissingSections(agg); len(missing) > 0 {
			return &IncompleteError{ApplicationID: applicationID, Missing: missing}
		}

		at := g.now()
		ok, err := tx.MarkSubmitted(ctx, applicationID, at)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewAlreadySubmittedError(applicationID)
		}

		if err := tx.Audit(ctx, EventApplicationSubmitted, applicationID, map[string]interface{}{
			"title":          agg.Title,
			"protocolNumber": agg.ProtocolNumber,
			"submittedAt":    at.Format(time.RFC3339),
		}); err != nil {
			return err
		}

		app := agg.Application
		app.Status = models.StatusSubmitted
		app.UpdatedAt = at
		submitted = &app
		return nil
	})

	outcome := outcomeOf(err)
	metrics.Submissions.WithLabelValues(outcome).Inc()
	g.obs.RecordSubmission(ctx, outcome, time.Since(start))

	if err != nil {
		log.Warn("submission rejected", map[string]interface{}{"outcome": outcome, "error": err.Error()})
		return nil, err
	}

	g.store.Invalidate(ctx, applicationID)
	log.Info("application submitted", map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()})

	if g.notifier != nil {
		if err := g.notifier.NotifySubmitted(ctx, submitted); err != nil {
			log.Warn("submission notification failed", map[string]interface{}{"error": err.Error()})
		}
	}

	return submitted, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, apperrors.ErrIncomplete):
		return metrics.OutcomeIncomplete
	case errors.Is(err, apperrors.ErrAlreadySubmitted):
		return metrics.OutcomeAlreadySubmitted
	case errors.Is(err, apperrors.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
