package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/validation"
	"ethics-review/internal/store"

	"github.com/go-chi/chi/v5"
)

type parentKind int

const (
	noParent parentKind = iota
	applicationParent
	declarationParent
)

// serverFields are owned by the server and ignored in request bodies.
var serverFields = []string{"id", "createdAt", "updatedAt", "status"}

type recordPtr[T any] interface {
	*T
	store.Record
}

// resource serves create, list, get, patch and delete for one entity kind.
type resource[T any, PT recordPtr[T]] struct {
	api    *API
	label  string
	kind   validation.Kind
	parent parentKind
	repo   func(*store.Store) *store.Repository[T, PT]

	// check runs extra rules that need the store, inside the write transaction.
	check func(ctx context.Context, tx *store.Store, applicationID string, rec PT) error
	// prepare sets server-owned fields before a create.
	prepare func(rec PT)
	// created runs after a new row was inserted, inside the transaction.
	created func(ctx context.Context, tx *store.Store, rec PT) error
}

// mount registers the routes. get replaces the default single-record
// handler when non-nil.
func (res *resource[T, PT]) mount(r chi.Router, get http.HandlerFunc) {
	if get == nil {
		get = res.get
	}
	r.Post("/", res.create)
	r.Get("/", res.list)
	r.Get("/{id}", get)
	r.Patch("/{id}", res.patch)
	r.Delete("/{id}", res.delete)
}

func (res *resource[T, PT]) routes(r chi.Router) {
	res.mount(r, nil)
}

func (res *resource[T, PT]) parentParam() string {
	if res.parent == declarationParent {
		return "declarationId"
	}
	return "applicationId"
}

func (res *resource[T, PT]) notFound() error {
	return apperrors.NewNotFoundError(res.label + " not found")
}

// applicationOf returns the application that owns rec after checking that
// it is still a DRAFT.
func (res *resource[T, PT]) applicationOf(ctx context.Context, tx *store.Store, rec PT, lock bool) (string, error) {
	switch res.parent {
	case applicationParent:
		return rec.ParentID(), requireDraft(ctx, tx, rec.ParentID(), lock)
	case declarationParent:
		return requireDraftDeclaration(ctx, tx, rec.ParentID(), lock)
	default:
		return rec.GetID(), requireDraft(ctx, tx, rec.GetID(), lock)
	}
}

func (res *resource[T, PT]) create(w http.ResponseWriter, r *http.Request) {
	a := res.api

	doc, err := decodeObject(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := a.validator.Validate(res.kind, doc)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if !result.Valid {
		writeValidation(w, result.Fields())
		return
	}

	rec, err := toRecord[T, PT](withoutKeys(doc, serverFields...))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	var (
		isNew         bool
		applicationID string
	)
	err = a.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		if res.parent != noParent {
			if applicationID, err = res.applicationOf(ctx, tx, rec, true); err != nil {
				return err
			}
		}
		if res.check != nil {
			if err := res.check(ctx, tx, applicationID, rec); err != nil {
				return err
			}
		}
		if res.prepare != nil {
			res.prepare(rec)
		}

		repo := res.repo(tx)
		if repo.Singleton() {
			isNew, err = repo.UpsertByParent(ctx, rec)
		} else {
			err = repo.Create(ctx, rec)
			isNew = err == nil
		}
		if err != nil {
			return err
		}
		if isNew && res.created != nil {
			return res.created(ctx, tx, rec)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrParentMissing) {
			err = errApplicationNotFound
			if res.parent == declarationParent {
				err = errDeclarationNotFound
			}
		}
		a.writeAppError(w, r, err)
		return
	}

	if applicationID == "" {
		applicationID = rec.GetID()
	}
	a.store.Invalidate(r.Context(), applicationID)

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	a.logger.Info("record saved", map[string]interface{}{
		"entity":        string(res.kind),
		"id":            rec.GetID(),
		"applicationId": applicationID,
		"created":       isNew,
	})
	writeJSON(w, status, rec)
}

func (res *resource[T, PT]) list(w http.ResponseWriter, r *http.Request) {
	a := res.api
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	repo := res.repo(a.store)
	var (
		records []T
		err     error
	)
	if parentID := r.URL.Query().Get(res.parentParam()); parentID != "" && res.parent != noParent {
		records, err = repo.ListByParent(ctx, parentID)
	} else {
		records, err = repo.List(ctx)
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (res *resource[T, PT]) get(w http.ResponseWriter, r *http.Request) {
	a := res.api
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	rec, err := res.repo(a.store).Get(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, apperrors.ErrNotFound) {
		err = res.notFound()
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (res *resource[T, PT]) patch(w http.ResponseWriter, r *http.Request) {
	a := res.api
	id := chi.URLParam(r, "id")

	doc, err := decodeObject(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	partial, err := a.validator.ValidatePartial(res.kind, doc)
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	if !partial.Valid {
		writeValidation(w, partial.Fields())
		return
	}

	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	var (
		updated       PT
		applicationID string
	)
	err = a.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		repo := res.repo(tx)
		existing, err := repo.Get(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return res.notFound()
		}
		if err != nil {
			return err
		}
		if applicationID, err = res.applicationOf(ctx, tx, existing, true); err != nil {
			return err
		}

		merged, err := toMap(existing)
		if err != nil {
			return err
		}
		for k, v := range withoutKeys(doc, append(serverFields, "applicationId", "declarationId")...) {
			merged[k] = v
		}

		result, err := a.validator.Validate(res.kind, merged)
		if err != nil {
			return err
		}
		if !result.Valid {
			return validationFailure(result)
		}

		rec, err := toRecord[T, PT](merged)
		if err != nil {
			return fmt.Errorf("%w: decode merged record: %w", apperrors.ErrValidation, err)
		}
		if res.check != nil {
			if err := res.check(ctx, tx, applicationID, rec); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.store.Invalidate(r.Context(), applicationID)
	writeJSON(w, http.StatusOK, updated)
}

func (res *resource[T, PT]) delete(w http.ResponseWriter, r *http.Request) {
	a := res.api
	id := chi.URLParam(r, "id")

	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	var applicationID string
	err := a.store.WithTx(ctx, func(ctx context.Context, tx *store.Store) error {
		repo := res.repo(tx)
		existing, err := repo.Get(ctx, id)
		if errors.Is(err, apperrors.ErrNotFound) {
			return res.notFound()
		}
		if err != nil {
			return err
		}
		if applicationID, err = res.applicationOf(ctx, tx, existing, true); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}

	a.store.Invalidate(r.Context(), applicationID)
	a.logger.Info("record deleted", map[string]interface{}{"entity": string(res.kind), "id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": res.label + " deleted successfully"})
}

// decodeObject reads a JSON object body.
func decodeObject(body io.Reader) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.NewDecoder(body).Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return doc, nil
}

func withoutKeys(doc map[string]interface{}, keys ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func toRecord[T any, PT recordPtr[T]](doc map[string]interface{}) (PT, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	rec := PT(new(T))
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func toMap(v any) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
