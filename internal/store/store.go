// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ethics-review/internal/common/database"
	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/models"
)

type (
	ApplicationRepo      = Repository[models.Application, *models.Application]
	InvestigatorRepo     = Repository[models.Investigator, *models.Investigator]
	FundingRepo          = Repository[models.Funding, *models.Funding]
	ResearchOverviewRepo = Repository[models.ResearchOverview, *models.ResearchOverview]
	MethodologyRepo      = Repository[models.Methodology, *models.Methodology]
	ParticipantInfoRepo  = Repository[models.ParticipantInfo, *models.ParticipantInfo]
	ConsentRepo          = Repository[models.Consent, *models.Consent]
	PaymentRepo          = Repository[models.Payment, *models.Payment]
	ConfidentialityRepo  = Repository[models.Confidentiality, *models.Confidentiality]
	DeclarationRepo      = Repository[models.Declaration, *models.Declaration]
	CoInvestigatorRepo   = Repository[models.CoInvestigator, *models.CoInvestigator]
	ChecklistRepo        = Repository[models.Checklist, *models.Checklist]
)

// Store groups the repositories of every entity kind. A Store returned by
// WithTx shares one transaction across all of them.
type Store struct {
	db     *sql.DB
	tx     database.DBTX
	cache  *Cache
	logger logger.Logger

	Applications      *ApplicationRepo
	Investigators     *InvestigatorRepo
	Funding           *FundingRepo
	ResearchOverviews *ResearchOverviewRepo
	Methodologies     *MethodologyRepo
	ParticipantInfos  *ParticipantInfoRepo
	Consents          *ConsentRepo
	Payments          *PaymentRepo
	Confidentialities *ConfidentialityRepo
	Declarations      *DeclarationRepo
	CoInvestigators   *CoInvestigatorRepo
	Checklists        *ChecklistRepo
	Files             *FileRepo
}

// New builds a Store over the pool. cache may be nil.
func New(db *sql.DB, cache *Cache, log logger.Logger) *Store {
	s := &Store{db: db, cache: cache, logger: log.WithFields(map[string]interface{}{"component": "store"})}
	s.bind(db)
	return s
}

func (s *Store) bind(db database.DBTX) {
	s.tx = db
	s.Applications = newRepository[models.Application, *models.Application](db, applicationsTable)
	s.Investigators = newRepository[models.Investigator, *models.Investigator](db, investigatorsTable)
	s.Funding = newRepository[models.Funding, *models.Funding](db, fundingTable)
	s.ResearchOverviews = newRepository[models.ResearchOverview, *models.ResearchOverview](db, researchOverviewsTable)
	s.Methodologies = newRepository[models.Methodology, *models.Methodology](db, methodologiesTable)
	s.ParticipantInfos = newRepository[models.ParticipantInfo, *models.ParticipantInfo](db, participantInfosTable)
	s.Consents = newRepository[models.Consent, *models.Consent](db, consentsTable)
	s.Payments = newRepository[models.Payment, *models.Payment](db, paymentsTable)
	s.Confidentialities = newRepository[models.Confidentiality, *models.Confidentiality](db, confidentialitiesTable)
	s.Declarations = newRepository[models.Declaration, *models.Declaration](db, declarationsTable)
	s.CoInvestigators = newRepository[models.CoInvestigator, *models.CoInvestigator](db, coInvestigatorsTable)
	s.Checklists = newRepository[models.Checklist, *models.Checklist](db, checklistsTable)
	s.Files = &FileRepo{db: db}
}

// DB returns the handle the repositories run against.
func (s *Store) DB() database.DBTX {
	return s.tx
}

// WithTx runs fn with a Store bound to a single transaction. The
// transaction commits when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Store) error) error {
	return database.WithTx(ctx, s.db, nil, func(ctx context.Context, tx database.DBTX) error {
		scoped := &Store{db: s.db, cache: s.cache, logger: s.logger}
		scoped.bind(tx)
		return fn(ctx, scoped)
	})
}

// ApplicationStatus returns the status of an application, or ErrNotFound.
// With forUpdate the row stays locked until the surrounding transaction ends.
func (s *Store) ApplicationStatus(ctx context.Context, applicationID string, forUpdate bool) (models.ApplicationStatus, error) {
	query := "SELECT status FROM applications WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var status models.ApplicationStatus
	err := s.tx.QueryRowContext(ctx, query, applicationID).Scan(&status)
	if notFound(err) {
		return "", fmt.Errorf("%w: application %s", apperrors.ErrNotFound, applicationID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: load application status: %w", apperrors.ErrStoreFailed, err)
	}
	return status, nil
}

// DeclarationApplication returns the application a declaration belongs to.
func (s *Store) DeclarationApplication(ctx context.Context, declarationID string) (string, error) {
	var applicationID string
	err := s.tx.QueryRowContext(ctx,
		"SELECT application_id FROM declarations WHERE id = $1", declarationID).Scan(&applicationID)
	if notFound(err) {
		return "", fmt.Errorf("%w: declaration %s", apperrors.ErrNotFound, declarationID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: load declaration: %w", apperrors.ErrStoreFailed, err)
	}
	return applicationID, nil
}

// MarkSubmitted moves a DRAFT application to SUBMITTED. It reports false
// when the row was not in DRAFT.
func (s *Store) MarkSubmitted(ctx context.Context, applicationID string, at time.Time) (bool, error) {
	res, err := s.tx.ExecContext(ctx,
		"UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4",
		string(models.StatusSubmitted), at, applicationID, string(models.StatusDraft))
	if err != nil {
		return false, fmt.Errorf("%w: mark submitted: %w", apperrors.ErrStoreFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: mark submitted: %w", apperrors.ErrStoreFailed, err)
	}
	return n == 1, nil
}

// Audit appends one row to audit_log.
func (s *Store) Audit(ctx context.Context, eventType, applicationID string, details map[string]interface{}) error {
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO audit_log (event_type, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, eventType, "application", applicationID, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: write audit log: %w", apperrors.ErrStoreFailed, err)
	}
	return nil
}

// Aggregate loads an application with every relation. A cached copy is
// returned when present. A load that overlaps an Invalidate is not cached.
func (s *Store) Aggregate(ctx context.Context, applicationID string) (*models.ApplicationAggregate, error) {
	var (
		gen  int64
		fill bool
	)
	if s.cache != nil {
		if agg, ok := s.cache.Get(ctx, applicationID); ok {
			return agg, nil
		}
		gen, fill = s.cache.Generation(ctx, applicationID)
	}

	agg, err := s.loadAggregate(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if fill {
		s.cache.Fill(ctx, agg, gen)
	}
	return agg, nil
}

// LoadAggregate bypasses the cache. The submission gate uses it inside its
// transaction.
func (s *Store) LoadAggregate(ctx context.Context, applicationID string) (*models.ApplicationAggregate, error) {
	return s.loadAggregate(ctx, applicationID)
}

func (s *Store) loadAggregate(ctx context.Context, applicationID string) (*models.ApplicationAggregate, error) {
	app, err := s.Applications.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	agg := &models.ApplicationAggregate{Application: *app}

	if agg.Investigators, err = s.Investigators.ListByParent(ctx, applicationID); err != nil {
		return nil, err
	}
	if agg.Funding, err = optional(s.Funding.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.ResearchOverview, err = optional(s.ResearchOverviews.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.Methodology, err = optional(s.Methodologies.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.ParticipantInfo, err = optional(s.ParticipantInfos.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.Consent, err = optional(s.Consents.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.Payment, err = optional(s.Payments.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.Confidentiality, err = optional(s.Confidentialities.GetByParent(ctx, applicationID)); err != nil {
		return nil, err
	}
	if agg.Declarations, err = s.Declarations.ListByParent(ctx, applicationID); err != nil {
		return nil, err
	}
	agg.CoInvestigators = make([]models.CoInvestigator, 0)
	for _, d := range agg.Declarations {
		co, err := s.CoInvestigators.ListByParent(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		agg.CoInvestigators = append(agg.CoInvestigators, co...)
	}
	if agg.Checklists, err = s.Checklists.ListByParent(ctx, applicationID); err != nil {
		return nil, err
	}
	if agg.Files, err = s.Files.ListByApplication(ctx, applicationID); err != nil {
		return nil, err
	}

	return agg, nil
}

// Invalidate drops the cached aggregate of an application.
func (s *Store) Invalidate(ctx context.Context, applicationID string) {
	if s.cache != nil && applicationID != "" {
		s.cache.Delete(ctx, applicationID)
	}
}

func optional[T any](rec *T, err error) (*T, error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}
