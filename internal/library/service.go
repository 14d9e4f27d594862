// Package library implements the external services the lifecycle controller
// talks to: the blob store listing and content, the metadata and archive
// indexes, and the delete-request queue.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metadata/postgres"
	"github.com/fruitsalade/kbdocs/internal/storage"
)

var (
	// ErrInvalidUpload is returned when an upload has no files, a bad name
	// or an extension outside the accepted list.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrExists is returned when a rename target is already taken.
	ErrExists = errors.New("target already exists")
)

// DefaultUploadExtensions are accepted when none are configured.
var DefaultUploadExtensions = []string{".txt", ".md"}

// Index is the metadata, archive and approval-queue store.
// *postgres.Store implements it.
type Index interface {
	ListFiles(ctx context.Context, project string) ([]docs.FileEntry, error)
	ListArchived(ctx context.Context, project string) ([]docs.FileEntry, error)
	GetFile(ctx context.Context, filePath string) (docs.FileEntry, error)
	UpsertFile(ctx context.Context, e docs.FileEntry) (docs.FileEntry, error)
	TouchFile(ctx context.Context, filePath string) error
	MoveFile(ctx context.Context, oldPath, newPath string) error
	SoftDeleteFile(ctx context.Context, filePath, deletedBy string) error

	CreateDeleteRequest(ctx context.Context, req docs.DeleteRequest) (docs.DeleteRequest, error)
	GetDeleteRequest(ctx context.Context, id string) (docs.DeleteRequest, error)
	ListDeleteRequests(ctx context.Context, project, status string) ([]docs.DeleteRequest, error)
	ResolveDeleteRequest(ctx context.Context, id, status, resolvedBy string) error
}

// RenameRequest moves a file. Both paths are full paths including the
// project segment.
type RenameRequest struct {
	OldPath string
	NewPath string
}

// UploadFile is one file of an upload.
type UploadFile struct {
	Name    string
	Content []byte
}

// UploadRequest places files under TargetPath (e.g. "knowledge-base/"),
// relative to the project.
type UploadRequest struct {
	Files      []UploadFile
	TargetPath string
}

// Service composes a blob backend and a metadata index.
type Service struct {
	backend    storage.Backend
	index      Index
	extensions []string
}

// NewService creates a Service. A nil or empty extensions list accepts the
// defaults.
func NewService(backend storage.Backend, index Index, extensions []string) *Service {
	if len(extensions) == 0 {
		extensions = DefaultUploadExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		exts[i] = strings.ToLower(e)
	}
	return &Service{backend: backend, index: index, extensions: exts}
}

// objectKey returns the storage key of p, accepting both full and
// project-relative paths.
func objectKey(project, p string) string {
	prefix := storage.ProjectPrefix(project)
	if strings.HasPrefix(p, prefix) {
		return p
	}
	return prefix + strings.TrimPrefix(p, "/")
}

// ListFiles returns the project's storage keys relative to the project.
func (s *Service) ListFiles(ctx context.Context, project string) ([]string, error) {
	prefix := storage.ProjectPrefix(project)
	keys, err := s.backend.ListObjects(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list storage: %w", err)
	}
	rel := make([]string, 0, len(keys))
	for _, k := range keys {
		rel = append(rel, strings.TrimPrefix(k, prefix))
	}
	return rel, nil
}

// ListMetadata returns the project's metadata records.
func (s *Service) ListMetadata(ctx context.Context, project string) ([]docs.FileEntry, error) {
	entries, err := s.index.ListFiles(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	return entries, nil
}

// ListArchived returns the project's archive index.
func (s *Service) ListArchived(ctx context.Context, project string) ([]docs.FileEntry, error) {
	entries, err := s.index.ListArchived(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return entries, nil
}

// GetFile returns a file's content as text.
func (s *Service) GetFile(ctx context.Context, project, filePath string) (string, error) {
	return storage.ReadString(ctx, s.backend, objectKey(project, filePath))
}

// UpdateFile replaces a file's content and bumps its metadata timestamp.
func (s *Service) UpdateFile(ctx context.Context, project, filePath, content string) error {
	key := objectKey(project, filePath)
	if err := storage.WriteString(ctx, s.backend, key, content); err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	if err := s.index.TouchFile(ctx, key); err != nil {
		if !errors.Is(err, postgres.ErrNotFound) {
			return fmt.Errorf("update %s metadata: %w", key, err)
		}
		logging.WithContext(ctx).Warn("updated file has no metadata record", zap.String("path", key))
	}
	return nil
}

// RenameFile moves a file's content and metadata record. The record keeps
// its id. A failed metadata move removes the copied object again.
func (s *Service) RenameFile(ctx context.Context, project string, req RenameRequest) error {
	oldKey := objectKey(project, req.OldPath)
	newKey := objectKey(project, req.NewPath)
	if oldKey == newKey {
		return nil
	}

	exists, err := s.backend.ObjectExists(ctx, newKey)
	if err != nil {
		return fmt.Errorf("rename %s: %w", oldKey, err)
	}
	if exists {
		return fmt.Errorf("rename to %s: %w", newKey, ErrExists)
	}

	if err := s.backend.CopyObject(ctx, oldKey, newKey); err != nil {
		return fmt.Errorf("rename %s: %w", oldKey, err)
	}
	if err := s.index.MoveFile(ctx, oldKey, newKey); err != nil {
		if delErr := s.backend.DeleteObject(ctx, newKey); delErr != nil {
			logging.WithContext(ctx).Error("rename cleanup failed",
				zap.String("path", newKey), zap.Error(delErr))
		}
		return fmt.Errorf("rename %s metadata: %w", oldKey, err)
	}
	if err := s.backend.DeleteObject(ctx, oldKey); err != nil {
		// The record already points at the new key; the old object would
		// otherwise surface as corrupted.
		logging.WithContext(ctx).Warn("rename left old object behind",
			zap.String("path", oldKey), zap.Error(err))
	}
	return nil
}

// DeleteFile removes a storage object given its project-relative path.
// It does not touch the indexes.
func (s *Service) DeleteFile(ctx context.Context, project, relPath string) error {
	key := objectKey(project, relPath)
	if err := s.backend.DeleteObject(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// UploadFiles stores every file under the target folder and records
// metadata for each. Returned entries carry the ids the index holds, so a
// re-uploaded file keeps its existing id. Validation covers the whole request before anything
// is written.
func (s *Service) UploadFiles(ctx context.Context, project string, req UploadRequest) ([]docs.FileEntry, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("no files: %w", ErrInvalidUpload)
	}
	for _, f := range req.Files {
		if err := s.validateUpload(f.Name); err != nil {
			return nil, err
		}
	}

	target := strings.Trim(req.TargetPath, "/")
	uploaded := make([]docs.FileEntry, 0, len(req.Files))
	for _, f := range req.Files {
		key := storage.ProjectPrefix(project) + path.Join(target, f.Name)
		if err := s.backend.PutObject(ctx, key, bytes.NewReader(f.Content), int64(len(f.Content))); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		entry := docs.FileEntry{
			FileID:      uuid.NewString(),
			FileName:    f.Name,
			FilePath:    key,
			Project:     project,
			ContentType: contentTypeFor(f.Name),
		}
		stored, err := s.index.UpsertFile(ctx, entry)
		if err != nil {
			return uploaded, fmt.Errorf("record %s: %w", f.Name, err)
		}
		uploaded = append(uploaded, stored)
	}
	return uploaded, nil
}

func (s *Service) validateUpload(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("file name %q: %w", name, ErrInvalidUpload)
	}
	ext := strings.ToLower(path.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("%s: extension %q not accepted (want %s): %w",
		name, ext, strings.Join(s.extensions, ", "), ErrInvalidUpload)
}

func contentTypeFor(name string) string {
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return mime.TypeByExtension(ext)
	}
}

// EnqueueDeleteRequest queues a pending delete request.
func (s *Service) EnqueueDeleteRequest(ctx context.Context, req docs.DeleteRequest) (docs.DeleteRequest, error) {
	created, err := s.index.CreateDeleteRequest(ctx, req)
	if err != nil {
		return docs.DeleteRequest{}, fmt.Errorf("enqueue delete request: %w", err)
	}
	return created, nil
}

// ListDeleteRequests lists a project's requests; an empty status lists all.
func (s *Service) ListDeleteRequests(ctx context.Context, project, status string) ([]docs.DeleteRequest, error) {
	return s.index.ListDeleteRequests(ctx, project, status)
}

// ApproveDeleteRequest soft-deletes the file's metadata record, removes its
// storage object and marks the request approved.
func (s *Service) ApproveDeleteRequest(ctx context.Context, id, approver string) (docs.DeleteRequest, error) {
	req, err := s.pendingRequest(ctx, id)
	if err != nil {
		return req, err
	}

	if err := s.index.SoftDeleteFile(ctx, req.FilePath, approver); err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return req, fmt.Errorf("approve %s: %w", id, err)
	}
	if err := s.backend.DeleteObject(ctx, objectKey(req.Project, req.FilePath)); err != nil {
		return req, fmt.Errorf("approve %s: %w", id, err)
	}
	if err := s.index.ResolveDeleteRequest(ctx, id, docs.RequestApproved, approver); err != nil {
		return req, fmt.Errorf("approve %s: %w", id, err)
	}

	logging.WithContext(ctx).Info("delete request approved",
		zap.String("id", id), zap.String("path", req.FilePath), zap.String("approver", approver))
	req.Status = docs.RequestApproved
	req.ResolvedBy = approver
	return req, nil
}

// RejectDeleteRequest marks a pending request rejected; the file stays.
func (s *Service) RejectDeleteRequest(ctx context.Context, id, approver string) (docs.DeleteRequest, error) {
	req, err := s.pendingRequest(ctx, id)
	if err != nil {
		return req, err
	}
	if err := s.index.ResolveDeleteRequest(ctx, id, docs.RequestRejected, approver); err != nil {
		return req, fmt.Errorf("reject %s: %w", id, err)
	}
	req.Status = docs.RequestRejected
	req.ResolvedBy = approver
	return req, nil
}

func (s *Service) pendingRequest(ctx context.Context, id string) (docs.DeleteRequest, error) {
	req, err := s.index.GetDeleteRequest(ctx, id)
	if err != nil {
		return docs.DeleteRequest{}, err
	}
	if req.Status != docs.RequestPending {
		return req, fmt.Errorf("delete request %s is %s: %w", id, req.Status, postgres.ErrNotFound)
	}
	return req, nil
}
