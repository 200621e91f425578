// internal/workers/application/submit-application/models.go
package submitapplication

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	ApplicationID     string `json:"applicationId"`
	ApplicationStatus string `json:"applicationStatus"`
	ProtocolNumber    string `json:"protocolNumber"`
	SubmittedAt       string `json:"submittedAt"` // RFC 3339
}
