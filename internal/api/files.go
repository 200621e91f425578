package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	apperrors "ethics-review/internal/common/errors"

	"github.com/go-chi/chi/v5"
)

const multipartMemory = 8 << 20

func (a *API) uploadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.uploadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.uploadTimeout)
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	if a.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	defer r.MultipartForm.RemoveAll()

	applicationID := r.FormValue("applicationId")
	name := r.FormValue("name")
	file, header, err := r.FormFile("file")
	if err != nil || applicationID == "" || name == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}
	defer file.Close()

	ctx, cancel := a.uploadContext(r.Context())
	defer cancel()

	if err := requireDraft(ctx, a.store, applicationID, false); err != nil {
		a.writeAppError(w, r, err)
		return
	}

	f, err := a.docs.Upload(ctx, applicationID, name, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Application not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "File upload failed")
		return
	}

	a.store.Invalidate(r.Context(), applicationID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"fileId":  f.FileID,
	})
}

func (a *API) listFiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.storeContext(r.Context())
	defer cancel()

	files, err := a.docs.ListByApplication(ctx, chi.URLParam(r, "applicationId"))
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "files": files})
}

func (a *API) downloadFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.uploadContext(r.Context())
	defer cancel()

	f, body, err := a.docs.Open(ctx, chi.URLParam(r, "applicationId"), chi.URLParam(r, "fileId"))
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		a.writeAppError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, f.Name))
	if f.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		a.logger.Warn("download interrupted", map[string]interface{}{
			"fileId": f.FileID,
			"error":  err.Error(),
		})
	}
}
