// Package errors provides the error taxonomy shared by the HTTP API, the
// wizard client and the workflow workers.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Sentinel Errors
// ==========================

var (
	ErrValidation       = stderrors.New("VALIDATION_FAILED")
	ErrNotFound         = stderrors.New("NOT_FOUND")
	ErrAlreadySubmitted = stderrors.New("ALREADY_SUBMITTED")
	ErrIncomplete       = stderrors.New("INCOMPLETE_APPLICATION")
	ErrStoreFailed      = stderrors.New("STORE_FAILED")
	ErrUploadFailed     = stderrors.New("UPLOAD_FAILED")
	ErrNotifyFailed     = stderrors.New("NOTIFICATION_SEND_FAILED")
)

// ==========================
// 2. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrCodeAlreadySubmitted      ErrorCode = "ALREADY_SUBMITTED"
	ErrCodeIncompleteApplication ErrorCode = "INCOMPLETE_APPLICATION"
	ErrCodeStoreFailed           ErrorCode = "STORE_FAILED"
	ErrCodeUploadFailed          ErrorCode = "UPLOAD_FAILED"
	ErrCodeTimeout               ErrorCode = "TIMEOUT"
	ErrCodeNotificationFailed    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is lets errors.Is match a StandardError against the sentinel of its code.
func (e *StandardError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code == ErrCodeValidationFailed
	case ErrNotFound:
		return e.Code == ErrCodeNotFound
	case ErrAlreadySubmitted:
		return e.Code == ErrCodeAlreadySubmitted
	case ErrIncomplete:
		return e.Code == ErrCodeIncompleteApplication
	case ErrStoreFailed:
		return e.Code == ErrCodeStoreFailed
	case ErrUploadFailed:
		return e.Code == ErrCodeUploadFailed
	}
	return false
}

// ==========================
// 3. Error Constructors
// ==========================

// NewValidationError carries a field path to message map in Metadata["fields"].
func NewValidationError(fields map[string]string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Validation failed",
		Retryable: false,
		Metadata:  map[string]interface{}{"fields": fields},
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAlreadySubmittedError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadySubmitted,
		Message:   "Application already submitted",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIncompleteApplicationError lists the missing sections in Metadata["missingSections"].
func NewIncompleteApplicationError(missing []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIncompleteApplication,
		Message:   "Cannot submit application",
		Details:   strings.Join(missing, ", "),
		Retryable: false,
		Metadata:  map[string]interface{}{"missingSections": missing},
		Timestamp: time.Now().UTC(),
	}
}

func NewStoreFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreFailed,
		Message:   "Store operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewUploadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUploadFailed,
		Message:   "File upload failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   "Operation timed out",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotificationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Notification send failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// FromError normalizes any error into a StandardError by inspecting the
// sentinel it wraps.
func FromError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError(err.Error())
	case stderrors.Is(err, ErrNotFound):
		return NewNotFoundError(strings.TrimPrefix(err.Error(), ErrNotFound.Error()+": "))
	case stderrors.Is(err, ErrIncomplete):
		var sections interface{ MissingSections() []string }
		if stderrors.As(err, &sections) {
			return NewIncompleteApplicationError(sections.MissingSections())
		}
		return NewIncompleteApplicationError(nil)
	case stderrors.Is(err, ErrAlreadySubmitted):
		return &StandardError{Code: ErrCodeAlreadySubmitted, Message: "Application already submitted", Details: err.Error(), Timestamp: time.Now().UTC()}
	case stderrors.Is(err, ErrValidation):
		return &StandardError{Code: ErrCodeValidationFailed, Message: "Validation failed", Details: err.Error(), Timestamp: time.Now().UTC()}
	case stderrors.Is(err, ErrUploadFailed):
		return NewUploadFailedError(err)
	case stderrors.Is(err, ErrStoreFailed):
		return NewStoreFailedError(err)
	case stderrors.Is(err, ErrNotifyFailed):
		return NewNotificationFailedError(err)
	}

	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps an error code to the status returned by the API.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidationFailed, ErrCodeAlreadySubmitted, ErrCodeIncompleteApplication:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// 4. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:      "APPLICATION_INVALID",
	ErrCodeNotFound:              "APPLICATION_NOT_FOUND",
	ErrCodeAlreadySubmitted:      "ALREADY_SUBMITTED",
	ErrCodeIncompleteApplication: "APPLICATION_INCOMPLETE",
	ErrCodeStoreFailed:           "STORE_FAILED",
	ErrCodeUploadFailed:          "UPLOAD_FAILED",
	ErrCodeTimeout:               "TIMEOUT",
	ErrCodeNotificationFailed:    "NOTIFICATION_SEND_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStoreFailed, ErrCodeNotificationFailed, ErrCodeUploadFailed:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0 // business errors
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if missing, ok := stdErr.Metadata["missingSections"]; ok {
		vars["missingSections"] = missing
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidationFailed, ErrCodeIncompleteApplication:
		return "VALIDATION"
	case ErrCodeNotFound, ErrCodeAlreadySubmitted:
		return "BUSINESS"
	case ErrCodeStoreFailed, ErrCodeTimeout:
		return "DATABASE"
	case ErrCodeUploadFailed:
		return "STORAGE"
	case ErrCodeNotificationFailed:
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
