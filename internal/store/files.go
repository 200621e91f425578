package store

import (
	"context"
	"errors"
	"fmt"

	"ethics-review/internal/common/database"
	apperrors "ethics-review/internal/common/errors"
	"ethics-review/internal/models"

	"github.com/lib/pq"
)

// FileRepo stores the metadata of uploaded documents.
type FileRepo struct {
	db database.DBTX
}

// NewFileRepo returns a FileRepo over db.
func NewFileRepo(db database.DBTX) *FileRepo {
	return &FileRepo{db: db}
}

const fileColumns = "file_id, application_id, name, content_type, size, object_key, created_at, updated_at"

func (r *FileRepo) Insert(ctx context.Context, f *models.File) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO files ("+fileColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		f.FileID, f.ApplicationID, f.Name, f.ContentType, f.Size, f.ObjectKey, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && (pqErr.Code == "23503" || pqErr.Code == "22P02") {
			return fmt.Errorf("%w: files: %s", ErrParentMissing, pqErr.Message)
		}
		return fmt.Errorf("%w: insert file: %w", apperrors.ErrStoreFailed, err)
	}
	return nil
}

// Get returns one file of an application.
func (r *FileRepo) Get(ctx context.Context, applicationID, fileID string) (*models.File, error) {
	var f models.File
	err := r.db.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE application_id = $1 AND file_id = $2",
		applicationID, fileID).
		Scan(&f.FileID, &f.ApplicationID, &f.Name, &f.ContentType, &f.Size, &f.ObjectKey, &f.CreatedAt, &f.UpdatedAt)
	if notFound(err) {
		return nil, fmt.Errorf("%w: file %s", apperrors.ErrNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get file: %w", apperrors.ErrStoreFailed, err)
	}
	return &f, nil
}

func (r *FileRepo) ListByApplication(ctx context.Context, applicationID string) ([]models.File, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE application_id = $1 ORDER BY created_at, file_id",
		applicationID)
	if notFound(err) {
		return make([]models.File, 0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %w", apperrors.ErrStoreFailed, err)
	}
	defer rows.Close()

	files := make([]models.File, 0)
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.FileID, &f.ApplicationID, &f.Name, &f.ContentType, &f.Size, &f.ObjectKey, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan file: %w", apperrors.ErrStoreFailed, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list files: %w", apperrors.ErrStoreFailed, err)
	}
	return files, nil
}

// Exists reports whether fileID belongs to applicationID.
func (r *FileRepo) Exists(ctx context.Context, applicationID, fileID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM files WHERE application_id = $1 AND file_id = $2)",
		applicationID, fileID).Scan(&exists)
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: check file: %w", apperrors.ErrStoreFailed, err)
	}
	return exists, nil
}
