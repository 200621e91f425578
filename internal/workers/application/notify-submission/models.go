// internal/workers/application/notify-submission/models.go
package notifysubmission

import "ethics-review/internal/models"

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID string                `json:"applicationId"`
	Status        string                `json:"status"` // "sent", "partial", "disabled"
	Notifications []models.Notification `json:"notifications"`
	NotifiedAt    string                `json:"notifiedAt"` // RFC 3339
}

const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusDisabled = "disabled"
)
