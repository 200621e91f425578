// internal/models/file.go
package models

import "time"

// File is the metadata of an uploaded document. FileID is the handle the
// checklist refers to.
type File struct {
	FileID        string    `json:"fileId"`
	ApplicationID string    `json:"applicationId"`
	Name          string    `json:"name"`
	ContentType   string    `json:"contentType"`
	Size          int64     `json:"size"`
	ObjectKey     string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
