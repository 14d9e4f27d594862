package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/fruitsalade/kbdocs/internal/docs"
)

// newTestStore connects to TEST_DATABASE_URL and scopes every test to a
// fresh project id so runs never collide.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := New(url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s, "test-" + uuid.NewString()[:8]
}

func TestStoreFileLifecycle(t *testing.T) {
	s, project := newTestStore(t)
	ctx := context.Background()
	p := project + "/knowledge-base/a.md"

	stored, err := s.UpsertFile(ctx, docs.FileEntry{Project: project, FilePath: p, ContentType: "text/markdown"})
	if err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	again, err := s.UpsertFile(ctx, docs.FileEntry{FileID: "ignored", Project: project, FilePath: p})
	if err != nil {
		t.Fatalf("UpsertFile again: %v", err)
	}
	if again.FileID != stored.FileID {
		t.Errorf("re-upsert id = %s, want stored id %s", again.FileID, stored.FileID)
	}

	files, err := s.ListFiles(ctx, project)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].FileName != "a.md" || files[0].ContentType != "text/markdown" {
		t.Fatalf("ListFiles = %+v", files)
	}
	id := files[0].FileID

	moved := project + "/knowledge-base/b.md"
	if err := s.MoveFile(ctx, p, moved); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	got, err := s.GetFile(ctx, moved)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.FileID != id || got.FileName != "b.md" {
		t.Errorf("moved record = %+v, want id %s name b.md", got, id)
	}
	if _, err := s.GetFile(ctx, p); !errors.Is(err, ErrNotFound) {
		t.Errorf("old path err = %v, want ErrNotFound", err)
	}

	if err := s.SoftDeleteFile(ctx, moved, "approver"); err != nil {
		t.Fatalf("SoftDeleteFile: %v", err)
	}
	files, _ = s.ListFiles(ctx, project)
	if len(files) != 0 {
		t.Errorf("soft-deleted file still listed: %+v", files)
	}
	if err := s.SoftDeleteFile(ctx, moved, "approver"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second soft delete err = %v, want ErrNotFound", err)
	}

	s.DeleteFile(ctx, moved)
}

func TestStoreArchive(t *testing.T) {
	s, project := newTestStore(t)
	ctx := context.Background()

	if err := s.AddArchived(ctx, project, project+"/knowledge-base/old_archived.md"); err != nil {
		t.Fatalf("AddArchived: %v", err)
	}
	archived, err := s.ListArchived(ctx, project)
	if err != nil {
		t.Fatalf("ListArchived: %v", err)
	}
	if len(archived) != 1 || archived[0].FileName != "old_archived.md" {
		t.Errorf("ListArchived = %+v", archived)
	}
}

func TestStoreDeleteRequests(t *testing.T) {
	s, project := newTestStore(t)
	ctx := context.Background()

	req, err := s.CreateDeleteRequest(ctx, docs.DeleteRequest{
		Project:     project,
		FileID:      "f1",
		FileName:    "a.md",
		RequestedBy: "alice",
		FilePath:    project + "/knowledge-base/a.md",
	})
	if err != nil {
		t.Fatalf("CreateDeleteRequest: %v", err)
	}
	if req.Status != docs.RequestPending || req.ID == "" {
		t.Fatalf("created = %+v", req)
	}

	pending, err := s.ListDeleteRequests(ctx, project, docs.RequestPending)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListDeleteRequests = %v, %v", pending, err)
	}

	if err := s.ResolveDeleteRequest(ctx, req.ID, docs.RequestRejected, "bob"); err != nil {
		t.Fatalf("ResolveDeleteRequest: %v", err)
	}
	if err := s.ResolveDeleteRequest(ctx, req.ID, docs.RequestApproved, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("resolving twice err = %v, want ErrNotFound", err)
	}

	got, err := s.GetDeleteRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetDeleteRequest: %v", err)
	}
	if got.Status != docs.RequestRejected || got.ResolvedBy != "bob" || got.ResolvedAt == nil {
		t.Errorf("resolved = %+v", got)
	}
}

func TestResolveRejectsUnknownStatus(t *testing.T) {
	s := &Store{}
	if err := s.ResolveDeleteRequest(context.Background(), "x", "maybe", "bob"); err == nil {
		t.Error("expected error for unknown status")
	}
}
