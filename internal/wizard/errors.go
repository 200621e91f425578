package wizard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrNoActiveApplication = errors.New("no active application: save step 1 or resume an application first")
	ErrApplicationBound    = errors.New("session already has an active application")
	ErrStepNotSaved        = errors.New("current step has not been saved")
	ErrStepLocked          = errors.New("step is not reachable yet")
	ErrNoMoreSteps         = errors.New("no further steps")
)

// FieldErrors maps field paths to messages. It is returned by local
// validation and by server side validation failures.
type FieldErrors struct {
	Fields map[string]string
}

func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// StepError wraps a store or network failure of one step.
type StepError struct {
	Step      int
	Title     string
	Err       error
	Retryable bool
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Step, e.Title, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// APIError is a non-2xx response of the ethics review API.
type APIError struct {
	StatusCode      int
	Message         string
	Fields          map[string]string
	MissingSections []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %d", e.StatusCode)
}

// IncompleteError is returned by the summary step when the server refuses
// the submission.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "application incomplete: missing " + strings.Join(e.Missing, ", ")
}

// UploadErrors reports the document categories whose upload failed.
type UploadErrors struct {
	Failed map[string]error
}

func (e *UploadErrors) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, e.Failed[k])
	}
	return "uploads failed: " + strings.Join(parts, "; ")
}

// classify turns a client failure into the error the session reports.
func classify(step Step, err error) error {
	var fieldErrs *FieldErrors
	var incomplete *IncompleteError
	var uploads *UploadErrors
	if errors.As(err, &fieldErrs) || errors.As(err, &incomplete) || errors.As(err, &uploads) {
		return err
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Fields) > 0 {
			return &FieldErrors{Fields: apiErr.Fields}
		}
		if len(apiErr.MissingSections) > 0 {
			return &IncompleteError{Missing: apiErr.MissingSections}
		}
	}

	return &StepError{
		Step:      step.Number(),
		Title:     step.Title(),
		Err:       err,
		Retryable: retryable(err),
	}
}

// retryable is true for timeouts, 5xx responses and transport failures.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrNoActiveApplication) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
