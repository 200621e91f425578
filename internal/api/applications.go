package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/validation"
	"ethics-review/internal/models"
	"ethics-review/internal/store"

	"github.com/go-chi/chi/v5"
)

// placeholderDeclarationID stands in for the declaration reference of
// co-investigators that are saved together with their declaration.
const placeholderDeclarationID = "00000000-0000-0000-0000-000000000000"

func (a *API) getAggregate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	agg, err := a.store.Aggregate(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, apperrors.ErrNotFound) {
		err = errApplicationNotFound
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	app, err := a.gate.Submit(ctx, chi.URLParam(r, "id"))
	if err != nil {
		var stdErr *apperrors.StandardError
		if !errors.As(err, &stdErr) && errors.Is(err, apperrors.ErrNotFound) {
			err = errApplicationNotFound
		}
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Application submitted successfully",
		"application": app,
	})
}

// sectionBatch is the body of PUT /applications/{id}/sections.
type sectionBatch struct {
	Payment         map[string]interface{}   `json:"payment"`
	Confidentiality map[string]interface{}   `json:"confidentiality"`
	Declaration     map[string]interface{}   `json:"declaration"`
	CoInvestigators []map[string]interface{} `json:"coInvestigators"`
	Checklist       map[string]interface{}   `json:"checklist"`
}

func (b *sectionBatch) empty() bool {
	return b.Payment == nil && b.Confidentiality == nil && b.Declaration == nil &&
		b.CoInvestigators == nil && b.Checklist == nil
}

// savedSections is the response of the batch endpoint. Only the sections
// present in the request are set. coInvestigators is [] after a clear.
type savedSections struct {
	Payment         *models.Payment         `json:"payment,omitempty"`
	Confidentiality *models.Confidentiality `json:"confidentiality,omitempty"`
	Declaration     *models.Declaration     `json:"declaration,omitempty"`
	CoInvestigators []models.CoInvestigator `json:"coInvestigators"`
	Checklist       *models.Checklist       `json:"checklist,omitempty"`
}

// saveSections writes several sections of one application in a single
// transaction. Every section is validated before anything is written.
func (a *API) saveSections(w http.ResponseWriter, r *http.Request) {
	applicationID := chi.URLParam(r, "id")

	var batch sectionBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if batch.empty() {
		writeValidation(w, map[string]string{"sections": "At least one section is required"})
		return
	}

	fields := make(map[string]string)
	check := func(kind validation.Kind, prefix string, doc map[string]interface{}) error {
		result, err := a.validator.Validate(kind, doc)
		if err != nil {
			return err
		}
		for path, msg := range result.Fields() {
			fields[prefix+"."+path] = msg
		}
		return nil
	}

	sections := []struct {
		kind   validation.Kind
		prefix string
		doc    map[string]interface{}
	}{
		{validation.KindPayment, "payment", batch.Payment},
		{validation.KindConfidentiality, "confidentiality", batch.Confidentiality},
		{validation.KindDeclaration, "declaration", batch.Declaration},
		{validation.KindChecklist, "checklist", batch.Checklist},
	}
	for _, s := range sections {
		if s.doc == nil {
			continue
		}
		s.doc["applicationId"] = applicationID
		if err := check(s.kind, s.prefix, s.doc); err != nil {
			a.writeAppError(w, r, err)
			return
		}
	}
	for i, doc := range batch.CoInvestigators {
		if doc == nil {
			fields["coInvestigators["+strconv.Itoa(i)+"]"] = "Invalid type. Expected: object"
			continue
		}
		if id, _ := doc["declarationId"].(string); id == "" {
			doc["declarationId"] = placeholderDeclarationID
		}
		if err := check(validation.KindCoInvestigator, "coInvestigators["+strconv.Itoa(i)+"]", doc); err != nil {
			a.writeAppError(w, r, err)
			return
		}
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	var saved savedSections
	err := a.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		if err := requireDraft(ctx, tx, applicationID, true); err != nil {
			return err
		}

		if batch.Payment != nil {
			rec, err := upsertSection(ctx, tx.Payments, batch.Payment)
			if err != nil {
				return err
			}
			saved.Payment = rec
		}
		if batch.Confidentiality != nil {
			rec, err := upsertSection(ctx, tx.Confidentialities, batch.Confidentiality)
			if err != nil {
				return err
			}
			saved.Confidentiality = rec
		}
		if batch.Declaration != nil {
			rec, err := upsertSection(ctx, tx.Declarations, batch.Declaration)
			if err != nil {
				return err
			}
			saved.Declaration = rec
		}
		if batch.CoInvestigators != nil {
			coInvestigators, err := replaceCoInvestigators(ctx, tx, applicationID, saved.Declaration, batch.CoInvestigators)
			if err != nil {
				return err
			}
			saved.CoInvestigators = coInvestigators
		}
		if batch.Checklist != nil {
			rec, err := toRecord[models.Checklist](withoutKeys(batch.Checklist, serverFields...))
			if err != nil {
				return apperrors.NewValidationError(map[string]string{"checklist": "Invalid checklist"})
			}
			if err := checkFileHandles(ctx, tx, applicationID, rec); err != nil {
				return err
			}
			if _, err := tx.Checklists.UpsertByParent(ctx, rec); err != nil {
				return err
			}
			saved.Checklist = rec
		}
		return nil
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.store.Invalidate(r.Context(), applicationID)
	a.logger.Info("sections saved", map[string]interface{}{"applicationId": applicationID})
	writeJSON(w, http.StatusOK, saved)
}

func upsertSection[T any, PT recordPtr[T]](ctx context.Context, repo *store.Repository[T, PT], doc map[string]interface{}) (PT, error) {
	rec, err := toRecord[T, PT](withoutKeys(doc, serverFields...))
	if err != nil {
		return nil, apperrors.NewValidationError(map[string]string{repo.Name(): "Invalid section"})
	}
	if _, err := repo.UpsertByParent(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// replaceCoInvestigators swaps the co-investigators of the application's
// declaration for docs.
func replaceCoInvestigators(ctx context.Context, tx *store.Store, applicationID string, declaration *models.Declaration, docs []map[string]interface{}) ([]models.CoInvestigator, error) {
	if declaration == nil {
		var err error
		declaration, err = tx.Declarations.GetByParent(ctx, applicationID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidationError(map[string]string{
				"coInvestigators": "A declaration is required before adding co-investigators",
			})
		}
		if err != nil {
			return nil, err
		}
	}

	if _, err := tx.CoInvestigators.DeleteByParent(ctx, declaration.ID); err != nil {
		return nil, err
	}

	out := make([]models.CoInvestigator, 0, len(docs))
	for i, doc := range docs {
		rec, err := toRecord[models.CoInvestigator](withoutKeys(doc, serverFields...))
		if err != nil {
			return nil, apperrors.NewValidationError(map[string]string{"coInvestigators[" + strconv.Itoa(i) + "]": "Invalid co-investigator"})
		}
		rec.DeclarationID = declaration.ID
		if err := tx.CoInvestigators.Create(ctx, rec); err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// checkFileHandles fails when a checklist refers to a file that was not
// uploaded for the application.
func checkFileHandles(ctx context.Context, tx *store.Store, applicationID string, c *models.Checklist) error {
	fields := make(map[string]string)
	for key, handle := range c.FileHandles() {
		ok, err := tx.Files.Exists(ctx, applicationID, handle)
		if err != nil {
			return err
		}
		if !ok {
			fields[key] = "File not found for this application"
		}
	}
	if len(fields) > 0 {
		return apperrors.NewValidationError(fields)
	}
	return nil
}
