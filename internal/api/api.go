// Package api serves the ethics review HTTP API: one CRUD resource per
// entity kind, the section batch endpoint, submission and documents.
package api

import (
	"context"
	"errors"
	"time"

	"ethics-review/internal/common/config"
	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/validation"
	"ethics-review/internal/documents"
	"ethics-review/internal/models"
	"ethics-review/internal/store"
	"ethics-review/internal/submission"
)

// ReadinessCheck reports whether a dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// API holds the dependencies of every handler.
type API struct {
	store     *store.Store
	docs      *documents.Service
	gate      *submission.Gate
	validator *validation.Validator
	logger    logger.Logger

	basePath       string
	storeTimeout   time.Duration
	uploadTimeout  time.Duration
	maxUploadBytes int64
	readiness      map[string]ReadinessCheck
}

type Deps struct {
	Store     *store.Store
	Documents *documents.Service
	Gate      *submission.Gate
	Validator *validation.Validator
	Logger    logger.Logger
	Readiness map[string]ReadinessCheck
}

func New(cfg config.ServerConfig, deps Deps) *API {
	v := deps.Validator
	if v == nil {
		v = validation.Default()
	}
	return &API{
		store:          deps.Store,
		docs:           deps.Documents,
		gate:           deps.Gate,
		validator:      v,
		logger:         deps.Logger.WithFields(map[string]interface{}{"component": "api"}),
		basePath:       cfg.BasePath,
		storeTimeout:   time.Duration(cfg.StoreTimeout) * time.Millisecond,
		uploadTimeout:  time.Duration(cfg.UploadTimeout) * time.Millisecond,
		maxUploadBytes: cfg.MaxUploadBytes,
		readiness:      deps.Readiness,
	}
}

func (a *API) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.storeTimeout)
}

var (
	errApplicationNotFound = apperrors.NewNotFoundError("Application not found")
	errDeclarationNotFound = apperrors.NewNotFoundError("Declaration not found")
)

// requireDraft fails unless the application exists and is still a DRAFT.
func requireDraft(ctx context.Context, s *store.Store, applicationID string, lock bool) error {
	status, err := s.ApplicationStatus(ctx, applicationID, lock)
	if errors.Is(err, apperrors.ErrNotFound) {
		return errApplicationNotFound
	}
	if err != nil {
		return err
	}
	if status == models.StatusSubmitted {
		return apperrors.NewAlreadySubmittedError(applicationID)
	}
	return nil
}

// requireDraftDeclaration resolves a declaration to its application and
// applies requireDraft to it.
func requireDraftDeclaration(ctx context.Context, s *store.Store, declarationID string, lock bool) (string, error) {
	applicationID, err := s.DeclarationApplication(ctx, declarationID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", errDeclarationNotFound
	}
	if err != nil {
		return "", err
	}
	return applicationID, requireDraft(ctx, s, applicationID, lock)
}
