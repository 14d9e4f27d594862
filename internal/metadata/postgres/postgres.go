// Package postgres provides the PostgreSQL-backed metadata index, archive
// index and delete-request queue.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metrics"
)

//go:embed migrations/*.up.sql
var migrationFS embed.FS

// ErrNotFound is returned when a file or request does not exist.
var ErrNotFound = errors.New("not found")

// Store is a PostgreSQL metadata store.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL metadata store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// Migrate runs the embedded SQL migrations in name order. They are written
// to be re-runnable.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", path.Base(f)))
		content, err := migrationFS.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// ─── Files ───────────────────────────────────────────────────────────────────

const fileColumns = `id, project, path, name, content_type, index_file_id,
	index_uploaded_at, raw_preview, created_at, updated_at, deleted_at IS NOT NULL`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (docs.FileEntry, error) {
	var e docs.FileEntry
	err := row.Scan(&e.FileID, &e.Project, &e.FilePath, &e.FileName, &e.ContentType,
		&e.IndexFileID, &e.IndexUploadedAt, &e.RawPreview, &e.CreatedAt, &e.UpdatedAt, &e.IsDeleted)
	return e, err
}

// ListFiles returns the live metadata records of a project in creation order.
func (s *Store) ListFiles(ctx context.Context, project string) ([]docs.FileEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_files", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM kb_files
		 WHERE project = $1 AND deleted_at IS NULL
		 ORDER BY created_at, path`, project)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	entries := []docs.FileEntry{}
	for rows.Next() {
		e, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	logging.Debug("listed files", zap.String("project", project), zap.Int("count", len(entries)))
	return entries, nil
}

// GetFile returns the live record at path.
func (s *Store) GetFile(ctx context.Context, filePath string) (docs.FileEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_file", time.Since(start)) }()

	e, err := scanFile(s.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM kb_files WHERE path = $1 AND deleted_at IS NULL`, filePath))
	if errors.Is(err, sql.ErrNoRows) {
		return docs.FileEntry{}, fmt.Errorf("file %s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return docs.FileEntry{}, fmt.Errorf("query file: %w", err)
	}
	return e, nil
}

// UpsertFile inserts or updates a record keyed by path and returns it as
// stored. An existing row keeps its id and creation time; a soft-deleted
// row is revived.
func (s *Store) UpsertFile(ctx context.Context, e docs.FileEntry) (docs.FileEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("upsert_file", time.Since(start)) }()

	if e.FileID == "" {
		e.FileID = uuid.NewString()
	}
	if e.FileName == "" {
		e.FileName = docs.LeafName(e.FilePath)
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kb_files (id, project, path, name, content_type, index_file_id, index_uploaded_at, raw_preview)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (path) DO UPDATE SET
			name = EXCLUDED.name,
			content_type = COALESCE(NULLIF(EXCLUDED.content_type, ''), kb_files.content_type),
			index_file_id = EXCLUDED.index_file_id,
			index_uploaded_at = EXCLUDED.index_uploaded_at,
			raw_preview = EXCLUDED.raw_preview,
			deleted_at = NULL,
			deleted_by = NULL,
			original_path = NULL,
			updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		e.FileID, e.Project, e.FilePath, e.FileName, e.ContentType,
		e.IndexFileID, e.IndexUploadedAt, e.RawPreview,
	).Scan(&e.FileID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return docs.FileEntry{}, fmt.Errorf("upsert: %w", err)
	}

	logging.Debug("upserted file", zap.String("path", e.FilePath), zap.String("id", e.FileID))
	return e, nil
}

// TouchFile bumps updated_at after a content change.
func (s *Store) TouchFile(ctx context.Context, filePath string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("touch_file", time.Since(start)) }()

	return s.expectOne(ctx, "touch file", filePath,
		`UPDATE kb_files SET updated_at = NOW() WHERE path = $1 AND deleted_at IS NULL`, filePath)
}

// MoveFile changes a record's path and name. The id is kept.
func (s *Store) MoveFile(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("move_file", time.Since(start)) }()

	return s.expectOne(ctx, "move file", oldPath,
		`UPDATE kb_files SET path = $1, name = $2, updated_at = NOW()
		 WHERE path = $3 AND deleted_at IS NULL`,
		newPath, docs.LeafName(newPath), oldPath)
}

// DeleteFile removes a record outright.
func (s *Store) DeleteFile(ctx context.Context, filePath string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_file", time.Since(start)) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM kb_files WHERE path = $1`, filePath)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	rows, _ := result.RowsAffected()
	logging.Debug("deleted file", zap.String("path", filePath), zap.Int64("rows", rows))
	return nil
}

// SoftDeleteFile marks a record deleted so it drops out of listings.
func (s *Store) SoftDeleteFile(ctx context.Context, filePath, deletedBy string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("soft_delete_file", time.Since(start)) }()

	err := s.expectOne(ctx, "soft delete", filePath,
		`UPDATE kb_files SET deleted_at = NOW(), deleted_by = $2, original_path = path
		 WHERE path = $1 AND deleted_at IS NULL`,
		filePath, deletedBy)
	if err != nil {
		return err
	}
	logging.Debug("soft-deleted file", zap.String("path", filePath), zap.String("by", deletedBy))
	return nil
}

func (s *Store) expectOne(ctx context.Context, op, key, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return nil
}

// ─── Archive ─────────────────────────────────────────────────────────────────

// ListArchived returns the archive index of a project. Only id, path and
// name are meaningful on archive entries.
func (s *Store) ListArchived(ctx context.Context, project string) ([]docs.FileEntry, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_archived", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, path, name, archived_at FROM kb_archived_files
		 WHERE project = $1 ORDER BY path`, project)
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	entries := []docs.FileEntry{}
	for rows.Next() {
		var e docs.FileEntry
		if err := rows.Scan(&e.FileID, &e.Project, &e.FilePath, &e.FileName, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		e.CreatedAt = e.UpdatedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// AddArchived records a file as moved to cold storage.
func (s *Store) AddArchived(ctx context.Context, project, filePath string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("add_archived", time.Since(start)) }()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_archived_files (id, project, path, name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (path) DO UPDATE SET archived_at = NOW()`,
		uuid.NewString(), project, filePath, docs.LeafName(filePath))
	if err != nil {
		return fmt.Errorf("add archived: %w", err)
	}
	return nil
}

// ─── Delete requests ─────────────────────────────────────────────────────────

const requestColumns = `id, project, file_id, file_name, requested_by, file_path,
	status, created_at, resolved_at, COALESCE(resolved_by, '')`

func scanRequest(row scanner) (docs.DeleteRequest, error) {
	var r docs.DeleteRequest
	var resolvedAt sql.NullTime
	err := row.Scan(&r.ID, &r.Project, &r.FileID, &r.FileName, &r.RequestedBy, &r.FilePath,
		&r.Status, &r.CreatedAt, &resolvedAt, &r.ResolvedBy)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return r, err
}

// CreateDeleteRequest queues a pending request and returns it as stored.
func (s *Store) CreateDeleteRequest(ctx context.Context, req docs.DeleteRequest) (docs.DeleteRequest, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_delete_request", time.Since(start)) }()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	created, err := scanRequest(s.db.QueryRowContext(ctx,
		`INSERT INTO kb_delete_requests (id, project, file_id, file_name, requested_by, file_path, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+requestColumns,
		req.ID, req.Project, req.FileID, req.FileName, req.RequestedBy, req.FilePath, docs.RequestPending))
	if err != nil {
		return docs.DeleteRequest{}, fmt.Errorf("create delete request: %w", err)
	}

	logging.Debug("queued delete request",
		zap.String("id", created.ID),
		zap.String("path", created.FilePath),
		zap.String("requested_by", created.RequestedBy))
	return created, nil
}

// GetDeleteRequest returns one request by id.
func (s *Store) GetDeleteRequest(ctx context.Context, id string) (docs.DeleteRequest, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_delete_request", time.Since(start)) }()

	r, err := scanRequest(s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM kb_delete_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return docs.DeleteRequest{}, fmt.Errorf("delete request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return docs.DeleteRequest{}, fmt.Errorf("query delete request: %w", err)
	}
	return r, nil
}

// ListDeleteRequests returns a project's requests, newest first. An empty
// status lists every status.
func (s *Store) ListDeleteRequests(ctx context.Context, project, status string) ([]docs.DeleteRequest, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_delete_requests", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM kb_delete_requests
		 WHERE project = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC`, project, status)
	if err != nil {
		return nil, fmt.Errorf("list delete requests: %w", err)
	}
	defer rows.Close()

	reqs := []docs.DeleteRequest{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delete request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// ResolveDeleteRequest moves a pending request to status. Requests that are
// missing or already resolved yield ErrNotFound.
func (s *Store) ResolveDeleteRequest(ctx context.Context, id, status, resolvedBy string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("resolve_delete_request", time.Since(start)) }()

	if status != docs.RequestApproved && status != docs.RequestRejected {
		return fmt.Errorf("invalid resolution status %q", status)
	}
	return s.expectOne(ctx, "resolve delete request", id,
		`UPDATE kb_delete_requests SET status = $2, resolved_at = NOW(), resolved_by = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, status, resolvedBy)
}
