package api

import (
	"encoding/json"
	"net/http"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/validation"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeValidation answers 400 with a field path to message map.
func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"error": fields})
}

func validationFailure(result *validation.ValidationResult) error {
	return apperrors.NewValidationError(result.Fields())
}

// writeAppError maps err onto a status code and response body.
func (a *API) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr := apperrors.FromError(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	switch stdErr.Code {
	case apperrors.ErrCodeValidationFailed:
		if fields, ok := stdErr.Metadata["fields"].(map[string]string); ok {
			writeValidation(w, fields)
			return
		}
	case apperrors.ErrCodeIncompleteApplication:
		writeJSON(w, status, map[string]any{
			"error":           stdErr.Message,
			"missingSections": stdErr.Metadata["missingSections"],
		})
		return
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   string(stdErr.Code),
			"error":  err.Error(),
		})
	}
	writeError(w, status, stdErr.Message)
}
