// internal/models/notification.go
package models

import "time"

// Notification records one message sent about an application.
type Notification struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"applicationId"`
	Type          string                 `json:"type"`    // "application_submitted"
	Channel       string                 `json:"channel"` // "email", "sns"
	Status        string                 `json:"status"`  // "sent", "failed", "disabled"
	MessageID     string                 `json:"messageId,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	SentAt        time.Time              `json:"sentAt"`
}
