// internal/documents/service.go
package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/common/logger"
	"ethics-review/internal/common/metrics"
	"ethics-review/internal/common/observability"
	"ethics-review/internal/models"

	"github.com/google/uuid"
)

// MetadataStore persists file records.
type MetadataStore interface {
	Insert(ctx context.Context, f *models.File) error
	Get(ctx context.Context, applicationID, fileID string) (*models.File, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.File, error)
	Exists(ctx context.Context, applicationID, fileID string) (bool, error)
}

// Service stores uploaded documents: the bytes in a BlobStore and the
// metadata in Postgres.
type Service struct {
	blobs  BlobStore
	meta   MetadataStore
	obs    *observability.Observability
	logger logger.Logger
	newID  func() string
	now    func() time.Time
}

func NewService(blobs BlobStore, meta MetadataStore, obs *observability.Observability, log logger.Logger) *Service {
	return &Service{
		blobs:  blobs,
		meta:   meta,
		obs:    obs,
		logger: log.WithFields(map[string]interface{}{"component": "documents"}),
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ObjectKey returns the blob key of a file.
func ObjectKey(applicationID, fileID string) string {
	return fmt.Sprintf("applications/%s/%s", applicationID, fileID)
}

// Upload stores body under a new handle and records its metadata. size may
// be -1 when unknown. A metadata failure removes the blob again.
func (s *Service) Upload(ctx context.Context, applicationID, name, contentType string, body io.Reader, size int64) (*models.File, error) {
	start := time.Now()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileID := s.newID()
	key := ObjectKey(applicationID, fileID)

	// A known size keeps the original reader so the S3 client can seek it.
	var reader io.Reader = body
	var counted *countingReader
	if size < 0 {
		counted = &countingReader{r: body}
		reader = counted
	}

	log := s.logger.WithFields(map[string]interface{}{
		"applicationId": applicationID,
		"fileId":        fileID,
	})

	if err := s.blobs.Put(ctx, key, contentType, reader, size); err != nil {
		s.record(ctx, metrics.OutcomeError, start)
		log.Error("blob upload failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUploadFailed, err)
	}

	if counted != nil {
		size = counted.n
	}

	now := s.now()
	f := &models.File{
		FileID:        fileID,
		ApplicationID: applicationID,
		Name:          name,
		ContentType:   contentType,
		Size:          size,
		ObjectKey:     key,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.meta.Insert(ctx, f); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			log.Warn("failed to remove orphaned blob", map[string]interface{}{"error": delErr.Error()})
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			s.record(ctx, metrics.OutcomeNotFound, start)
			return nil, err
		}
		s.record(ctx, metrics.OutcomeError, start)
		log.Error("file metadata insert failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUploadFailed, err)
	}

	s.record(ctx, metrics.OutcomeSuccess, start)
	metrics.UploadBytes.Observe(float64(f.Size))
	log.Info("document uploaded", map[string]interface{}{"size": f.Size, "name": name})
	return f, nil
}

func (s *Service) record(ctx context.Context, outcome string, start time.Time) {
	metrics.Uploads.WithLabelValues(outcome).Inc()
	s.obs.RecordUpload(ctx, outcome, time.Since(start))
}

func (s *Service) ListByApplication(ctx context.Context, applicationID string) ([]models.File, error) {
	return s.meta.ListByApplication(ctx, applicationID)
}

// Exists reports whether fileID was uploaded for applicationID.
func (s *Service) Exists(ctx context.Context, applicationID, fileID string) (bool, error) {
	return s.meta.Exists(ctx, applicationID, fileID)
}

// Open returns the metadata and content of a file. The caller closes the
// reader.
func (s *Service) Open(ctx context.Context, applicationID, fileID string) (*models.File, io.ReadCloser, error) {
	f, err := s.meta.Get(ctx, applicationID, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.blobs.Get(ctx, f.ObjectKey)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrNotFound, err)
		}
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrStoreFailed, err)
	}
	return f, rc, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
