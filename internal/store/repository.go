package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ethics-review/internal/common/database"
	apperrors "ethics-review/internal/common/errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("DUPLICATE_RECORD")
	// ErrParentMissing is returned when a foreign key rejects a write.
	ErrParentMissing = fmt.Errorf("%w: parent record missing", apperrors.ErrNotFound)
)

// Record is implemented by every stored entity.
type Record interface {
	GetID() string
	SetID(id string)
	ParentID() string
	Stamp(now time.Time)
}

type recordPtr[T any] interface {
	*T
	Record
}

// table maps one record type onto its Postgres table. columns excludes the
// id, parent, created_at and updated_at columns which every table shares.
type table[T any] struct {
	name         string
	parentColumn string
	singleton    bool
	columns      []string
	values       func(*T) []any
	fields       func(*T) []any
	meta         func(*T) (id, parent *string, createdAt, updatedAt *time.Time)
}

// Repository implements create, read, update and delete for one entity
// type. It runs against either the pool or a transaction.
type Repository[T any, PT recordPtr[T]] struct {
	db    database.DBTX
	table table[T]
	now   func() time.Time
	newID func() string
}

func newRepository[T any, PT recordPtr[T]](db database.DBTX, t table[T]) *Repository[T, PT] {
	return &Repository[T, PT]{
		db:    db,
		table: t,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// withDB returns a copy of the repository bound to another handle.
func (r *Repository[T, PT]) withDB(db database.DBTX) *Repository[T, PT] {
	cp := *r
	cp.db = db
	return &cp
}

// Name returns the table name.
func (r *Repository[T, PT]) Name() string {
	return r.table.name
}

// Singleton reports whether at most one record may exist per parent.
func (r *Repository[T, PT]) Singleton() bool {
	return r.table.singleton
}

func (r *Repository[T, PT]) selectColumns() string {
	cols := []string{"id"}
	if r.table.parentColumn != "" {
		cols = append(cols, r.table.parentColumn)
	}
	cols = append(cols, r.table.columns...)
	cols = append(cols, "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

func (r *Repository[T, PT]) scanDest(rec *T) []any {
	id, parent, createdAt, updatedAt := r.table.meta(rec)
	dest := []any{id}
	if r.table.parentColumn != "" {
		dest = append(dest, parent)
	}
	dest = append(dest, r.table.fields(rec)...)
	return append(dest, createdAt, updatedAt)
}

func (r *Repository[T, PT]) insertArgs(rec *T) (string, []any) {
	id, parent, createdAt, updatedAt := r.table.meta(rec)
	args := []any{*id}
	if r.table.parentColumn != "" {
		args = append(args, *parent)
	}
	args = append(args, r.table.values(rec)...)
	args = append(args, *createdAt, *updatedAt)

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table.name, r.selectColumns(), strings.Join(placeholders, ", "))
	return query, args
}

// Create assigns an id and timestamps to rec and inserts it.
func (r *Repository[T, PT]) Create(ctx context.Context, rec PT) error {
	rec.SetID(r.newID())
	rec.Stamp(r.now())

	query, args := r.insertArgs((*T)(rec))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return r.classify("insert", rec.GetID(), err)
	}
	return nil
}

// Get loads one record by id.
func (r *Repository[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", r.selectColumns(), r.table.name)

	rec := PT(new(T))
	if err := r.db.QueryRowContext(ctx, query, id).Scan(r.scanDest((*T)(rec))...); err != nil {
		return nil, r.classify("get", id, err)
	}
	return rec, nil
}

// List returns every record of the table ordered by creation time.
func (r *Repository[T, PT]) List(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at, id", r.selectColumns(), r.table.name)
	return r.query(ctx, query)
}

// ListByParent returns the records attached to one parent.
func (r *Repository[T, PT]) ListByParent(ctx context.Context, parentID string) ([]T, error) {
	if r.table.parentColumn == "" {
		return nil, fmt.Errorf("%s has no parent column", r.table.name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at, id",
		r.selectColumns(), r.table.name, r.table.parentColumn)
	return r.query(ctx, query, parentID)
}

// GetByParent returns the single record attached to a parent.
func (r *Repository[T, PT]) GetByParent(ctx context.Context, parentID string) (PT, error) {
	if r.table.parentColumn == "" {
		return nil, fmt.Errorf("%s has no parent column", r.table.name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at, id LIMIT 1",
		r.selectColumns(), r.table.name, r.table.parentColumn)

	rec := PT(new(T))
	if err := r.db.QueryRowContext(ctx, query, parentID).Scan(r.scanDest((*T)(rec))...); err != nil {
		return nil, r.classify("get by parent", parentID, err)
	}
	return rec, nil
}

func (r *Repository[T, PT]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if notFound(err) {
		return make([]T, 0), nil
	}
	if err != nil {
		return nil, r.classify("list", "", err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var rec T
		if err := rows.Scan(r.scanDest(&rec)...); err != nil {
			return nil, r.classify("scan", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("list", "", err)
	}
	return out, nil
}

// Update writes every column of rec. The parent reference and created_at
// are never changed.
func (r *Repository[T, PT]) Update(ctx context.Context, rec PT) error {
	rec.Stamp(r.now())

	sets := make([]string, 0, len(r.table.columns)+1)
	for i, col := range r.table.columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args := r.table.values((*T)(rec))
	_, _, _, updatedAt := r.table.meta((*T)(rec))
	args = append(args, *updatedAt, rec.GetID())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)-1))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		r.table.name, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return r.classify("update", rec.GetID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, r.table.name, rec.GetID())
	}
	return nil
}

// Delete removes one record by id.
func (r *Repository[T, PT]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table.name)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return r.classify("delete", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, r.table.name, id)
	}
	return nil
}

// DeleteByParent removes every record attached to a parent.
func (r *Repository[T, PT]) DeleteByParent(ctx context.Context, parentID string) (int64, error) {
	if r.table.parentColumn == "" {
		return 0, fmt.Errorf("%s has no parent column", r.table.name)
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", r.table.name, r.table.parentColumn)
	res, err := r.db.ExecContext(ctx, query, parentID)
	if err != nil {
		return 0, r.classify("delete by parent", parentID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpsertByParent inserts rec or, when the parent already has a record,
// overwrites that record in place. rec receives the stored id and
// created_at. created reports whether a new row was inserted.
func (r *Repository[T, PT]) UpsertByParent(ctx context.Context, rec PT) (created bool, err error) {
	if !r.table.singleton {
		return false, fmt.Errorf("%s is not a singleton section", r.table.name)
	}

	rec.SetID(r.newID())
	rec.Stamp(r.now())

	insert, args := r.insertArgs((*T)(rec))
	sets := make([]string, 0, len(r.table.columns)+1)
	for _, col := range r.table.columns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")

	query := fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s RETURNING id, created_at, (xmax = 0) AS inserted",
		insert, r.table.parentColumn, strings.Join(sets, ", "))

	id, _, createdAt, _ := r.table.meta((*T)(rec))
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(id, createdAt, &created); err != nil {
		return false, r.classify("upsert", rec.ParentID(), err)
	}
	return created, nil
}

// notFound reports whether err means the row cannot exist. Ids are UUID
// columns, so a malformed id fails with invalid_text_representation.
func notFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

func (r *Repository[T, PT]) classify(op, id string, err error) error {
	if notFound(err) {
		return fmt.Errorf("%w: %s %s", apperrors.ErrNotFound, r.table.name, id)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s: %s", ErrDuplicate, r.table.name, pqErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s: %s", ErrParentMissing, r.table.name, pqErr.Message)
		}
	}

	return fmt.Errorf("%w: %s %s: %w", apperrors.ErrStoreFailed, op, r.table.name, err)
}
