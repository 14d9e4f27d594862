package lifecycle

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/fruitsalade/kbdocs/internal/config"
	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/events"
	"github.com/fruitsalade/kbdocs/internal/library"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/retry"
)

func TestMain(m *testing.M) {
	logging.InitNop()
	os.Exit(m.Run())
}

const project = "game-1"

// fakeLibrary implements Sources, Store and ApprovalQueue in memory.
type fakeLibrary struct {
	mu       sync.Mutex
	storage  []string
	metadata []docs.FileEntry
	archive  []docs.FileEntry
	content  map[string]string

	listErr    map[string]error
	updateErr  error
	renameErr  error
	deleteErr  error
	enqueueErr error

	// updateGate, when set, blocks UpdateFile until closed.
	updateGate chan struct{}

	calls    map[string]int
	requests []docs.DeleteRequest
	renames  []library.RenameRequest
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		content: map[string]string{},
		listErr: map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeLibrary) call(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeLibrary) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeLibrary) ListFiles(context.Context, string) ([]string, error) {
	f.call("ListFiles")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr["storage"]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.storage...), nil
}

func (f *fakeLibrary) ListMetadata(context.Context, string) ([]docs.FileEntry, error) {
	f.call("ListMetadata")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr["metadata"]; err != nil {
		return nil, err
	}
	return append([]docs.FileEntry(nil), f.metadata...), nil
}

func (f *fakeLibrary) ListArchived(context.Context, string) ([]docs.FileEntry, error) {
	f.call("ListArchived")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr["archive"]; err != nil {
		return nil, err
	}
	return append([]docs.FileEntry(nil), f.archive...), nil
}

func (f *fakeLibrary) GetFile(_ context.Context, _, path string) (string, error) {
	f.call("GetFile")
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.content[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return c, nil
}

func (f *fakeLibrary) UpdateFile(_ context.Context, _, path, content string) error {
	f.call("UpdateFile")
	if f.updateGate != nil {
		<-f.updateGate
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	f.content[path] = content
	f.mu.Unlock()
	return nil
}

func (f *fakeLibrary) RenameFile(_ context.Context, _ string, req library.RenameRequest) error {
	f.call("RenameFile")
	if f.renameErr != nil {
		return f.renameErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renames = append(f.renames, req)
	oldRel, newRel := docs.StripProject(req.OldPath), docs.StripProject(req.NewPath)
	for i, p := range f.storage {
		if p == oldRel {
			f.storage[i] = newRel
		}
	}
	for i := range f.metadata {
		if f.metadata[i].FilePath == req.OldPath {
			f.metadata[i].FilePath = req.NewPath
			f.metadata[i].FileName = docs.LeafName(req.NewPath)
		}
	}
	return nil
}

func (f *fakeLibrary) DeleteFile(context.Context, string, string) error {
	f.call("DeleteFile")
	return f.deleteErr
}

func (f *fakeLibrary) UploadFiles(_ context.Context, project string, req library.UploadRequest) ([]docs.FileEntry, error) {
	f.call("UploadFiles")
	var out []docs.FileEntry
	for i, file := range req.Files {
		out = append(out, docs.FileEntry{
			FileID:   "up-" + string(rune('a'+i)),
			FileName: file.Name,
			FilePath: project + "/" + req.TargetPath + file.Name,
			Project:  project,
		})
	}
	return out, nil
}

func (f *fakeLibrary) EnqueueDeleteRequest(_ context.Context, req docs.DeleteRequest) (docs.DeleteRequest, error) {
	f.call("EnqueueDeleteRequest")
	if f.enqueueErr != nil {
		return docs.DeleteRequest{}, f.enqueueErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	req.ID = "req-1"
	req.Status = docs.RequestPending
	f.requests = append(f.requests, req)
	return req, nil
}

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}
	}
	return r.events[len(r.events)-1]
}

func entry(id, path string) docs.FileEntry {
	return docs.FileEntry{FileID: id, FilePath: path, FileName: docs.LeafName(path), Project: project}
}

func newTestController(t *testing.T, lib *fakeLibrary) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(lib, lib, lib, Options{
		Project:    project,
		User:       "alice",
		Categories: config.DefaultCategories(),
		Retry:      retry.Config{MaxAttempts: 2, InitialWait: time.Millisecond, Multiplier: 1},
		Notifier:   rec,
	})
	return c, rec
}

// standardLibrary holds one indexed file, one archived file and one orphan.
func standardLibrary() *fakeLibrary {
	lib := newFakeLibrary()
	lib.storage = []string{"knowledge-base/a.md", "knowledge-base/old_archived.md", "knowledge-base/orphan.md"}
	lib.metadata = []docs.FileEntry{entry("f1", project+"/knowledge-base/a.md")}
	lib.archive = []docs.FileEntry{entry("ar1", project+"/knowledge-base/old.md")}
	lib.content[project+"/knowledge-base/a.md"] = "# A"
	lib.content[project+"/knowledge-base/orphan.md"] = "orphan"
	return lib
}

func mustRefresh(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func mustLookup(t *testing.T, c *Controller, path string) docs.FileEntry {
	t.Helper()
	e, ok := c.Lookup(path)
	if !ok {
		t.Fatalf("%s not listed", path)
	}
	return e
}

func TestRefreshReconciles(t *testing.T) {
	c, _ := newTestController(t, standardLibrary())
	mustRefresh(t, c)

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].FileID != "f1" || entries[0].IsCorrupted {
		t.Errorf("first entry = %+v", entries[0])
	}
	orphan := entries[1]
	if !orphan.IsCorrupted || orphan.FilePath != project+"/knowledge-base/orphan.md" {
		t.Errorf("orphan = %+v", orphan)
	}
}

func TestNotReadyUntilStorageAndMetadataLoad(t *testing.T) {
	lib := standardLibrary()
	lib.listErr["metadata"] = errors.New("db down")
	c, _ := newTestController(t, lib)

	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if c.Ready() || len(c.Entries()) != 0 {
		t.Error("listing produced without metadata")
	}
	if n := lib.count("ListMetadata"); n != 2 {
		t.Errorf("metadata fetched %d times, want 2 attempts", n)
	}

	lib.listErr["metadata"] = nil
	mustRefresh(t, c)
	if !c.Ready() {
		t.Error("not ready after metadata loaded")
	}
}

func TestRefreshFailureKeepsPreviousValue(t *testing.T) {
	lib := standardLibrary()
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)

	lib.listErr["storage"] = errors.New("s3 down")
	lib.metadata = append(lib.metadata, entry("f2", project+"/prompts/p.txt"))
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}

	// The old storage listing is kept; the new metadata applies.
	if _, ok := c.Lookup(project + "/knowledge-base/orphan.md"); !ok {
		t.Error("previous storage listing dropped")
	}
	if _, ok := c.Lookup(project + "/prompts/p.txt"); !ok {
		t.Error("new metadata not applied")
	}
}

func TestArchiveAbsentIsEmpty(t *testing.T) {
	c, _ := newTestController(t, newFakeLibrary())
	c.SetStorage([]string{"knowledge-base/x_archived.md"})
	c.SetMetadata(nil)

	entries := c.Entries()
	if len(entries) != 1 || !entries[0].IsCorrupted {
		t.Errorf("entries = %+v, want one corrupted", entries)
	}

	c.SetArchive([]docs.FileEntry{entry("ar", project+"/knowledge-base/x.md")})
	if n := len(c.Entries()); n != 0 {
		t.Errorf("archived file still listed as corrupted (%d entries)", n)
	}
}

func TestSelectLoadAndCache(t *testing.T) {
	lib := standardLibrary()
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	a := mustLookup(t, c, project+"/knowledge-base/a.md")
	c.Select(a)
	if _, err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	s := c.Session()
	if s.Buffer != "# A" || s.Baseline != "# A" || s.Mode != Viewing {
		t.Errorf("session = %+v", s)
	}

	c.Select(a)
	if s := c.Session(); !s.Loaded || s.Buffer != "# A" {
		t.Error("reselect did not use cached content")
	}
	c.Load(ctx)
	if n := lib.count("GetFile"); n != 1 {
		t.Errorf("GetFile called %d times, want 1", n)
	}
}

func TestSaveSuccess(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	path := project + "/knowledge-base/a.md"
	c.Select(mustLookup(t, c, path))
	c.Load(ctx)
	if err := c.StartEdit(); err != nil {
		t.Fatal(err)
	}
	c.SetBuffer("# A edited")

	if err := c.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s := c.Session()
	if s.Mode != Viewing || s.Baseline != "# A edited" || s.Buffer != "# A edited" {
		t.Errorf("session after save = %+v", s)
	}
	if v, _ := c.Cache().Peek(project, path); v != "# A edited" {
		t.Errorf("cache = %q", v)
	}
	if ev := rec.last(); ev.Type != events.EventSave || !ev.OK() {
		t.Errorf("event = %+v", ev)
	}
}

func TestSaveFailureKeepsEditing(t *testing.T) {
	lib := standardLibrary()
	lib.updateErr = errors.New("write failed")
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	path := project + "/knowledge-base/a.md"
	c.Select(mustLookup(t, c, path))
	c.Load(ctx)
	c.StartEdit()
	c.SetBuffer("unsaved")

	if err := c.Save(ctx); !errors.Is(err, lib.updateErr) {
		t.Fatalf("err = %v, want write failed", err)
	}
	s := c.Session()
	if s.Mode != Editing || s.Buffer != "unsaved" {
		t.Errorf("session after failed save = %+v", s)
	}
	if v, _ := c.Cache().Peek(project, path); v != "# A" {
		t.Errorf("cache changed to %q", v)
	}
	if ev := rec.last(); ev.OK() || ev.Message != "An error occurred while updating the file." {
		t.Errorf("event = %+v", ev)
	}
	if n := lib.count("UpdateFile"); n != 1 {
		t.Errorf("UpdateFile called %d times; saves are not retried", n)
	}
}

func TestSaveCompletionAfterSelectionMoved(t *testing.T) {
	lib := standardLibrary()
	lib.updateGate = make(chan struct{})
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	a := project + "/knowledge-base/a.md"
	c.Select(mustLookup(t, c, a))
	c.Load(ctx)
	c.StartEdit()
	c.SetBuffer("saved late")

	done := make(chan error, 1)
	go func() { done <- c.Save(ctx) }()

	// Move the selection while the save is in flight.
	for lib.count("UpdateFile") == 0 {
		time.Sleep(time.Millisecond)
	}
	orphan := mustLookup(t, c, project+"/knowledge-base/orphan.md")
	c.Select(orphan)
	close(lib.updateGate)

	if err := <-done; err != nil {
		t.Fatalf("Save: %v", err)
	}
	s := c.Session()
	if s.Path != orphan.FilePath || s.Mode != Viewing || s.Buffer == "saved late" {
		t.Errorf("stale completion touched the new session: %+v", s)
	}
	if v, _ := c.Cache().Peek(project, a); v != "saved late" {
		t.Errorf("cache for saved file = %q", v)
	}
}

func TestSaveKeepsEditsMadeInFlight(t *testing.T) {
	lib := standardLibrary()
	lib.updateGate = make(chan struct{})
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	a := project + "/knowledge-base/a.md"
	c.Select(mustLookup(t, c, a))
	c.Load(ctx)
	c.StartEdit()
	c.SetBuffer("first draft")

	done := make(chan error, 1)
	go func() { done <- c.Save(ctx) }()
	for lib.count("UpdateFile") == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := c.SetBuffer("second draft"); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	close(lib.updateGate)

	if err := <-done; err != nil {
		t.Fatalf("Save: %v", err)
	}
	s := c.Session()
	if s.Mode != Editing || s.Buffer != "second draft" || s.Baseline != "first draft" {
		t.Errorf("session = %+v, want Editing with the newer buffer over the saved baseline", s)
	}
}

func TestEditGuards(t *testing.T) {
	lib := standardLibrary()
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	if err := c.StartEdit(); !errors.Is(err, ErrNoSelection) {
		t.Errorf("StartEdit without selection = %v", err)
	}
	if err := c.SetBuffer("x"); !errors.Is(err, ErrNotEditing) {
		t.Errorf("SetBuffer while viewing = %v", err)
	}

	c.Select(mustLookup(t, c, project+"/knowledge-base/a.md"))
	if err := c.StartEdit(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("StartEdit before load = %v", err)
	}
	if err := c.Save(ctx); !errors.Is(err, ErrNotEditing) {
		t.Errorf("Save while viewing = %v", err)
	}

	c.Select(mustLookup(t, c, project+"/knowledge-base/orphan.md"))
	c.Load(ctx)
	if err := c.StartEdit(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("StartEdit on corrupted = %v", err)
	}
}

func TestCancelEditRestoresBaseline(t *testing.T) {
	c, _ := newTestController(t, standardLibrary())
	mustRefresh(t, c)
	c.Select(mustLookup(t, c, project+"/knowledge-base/a.md"))
	c.Load(context.Background())
	c.StartEdit()
	c.SetBuffer("scratch")
	c.CancelEdit()

	if s := c.Session(); s.Mode != Viewing || s.Buffer != "# A" {
		t.Errorf("session = %+v", s)
	}
}

func TestRenameKeepsIDAndFollowsSelection(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	a := mustLookup(t, c, project+"/knowledge-base/a.md")
	c.Select(a)
	c.Load(ctx)

	if err := c.Rename(ctx, a, "b.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	want := library.RenameRequest{OldPath: project + "/knowledge-base/a.md", NewPath: project + "/knowledge-base/b.md"}
	if len(lib.renames) != 1 || lib.renames[0] != want {
		t.Errorf("store renames = %+v", lib.renames)
	}

	b := mustLookup(t, c, want.NewPath)
	if b.FileID != "f1" || b.FileName != "b.md" || b.IsCorrupted {
		t.Errorf("renamed entry = %+v", b)
	}
	if _, ok := c.Lookup(want.OldPath); ok {
		t.Error("old path still listed")
	}
	if s := c.Session(); s.Path != want.NewPath {
		t.Errorf("selection = %s, want %s", s.Path, want.NewPath)
	}
	if v, ok := c.Cache().Peek(project, want.NewPath); !ok || v != "# A" {
		t.Error("cached content did not follow the rename")
	}
	if !rec.last().OK() {
		t.Errorf("event = %+v", rec.last())
	}
}

func TestRenameLeavesArchivedSiblingInPlace(t *testing.T) {
	lib := newFakeLibrary()
	lib.storage = []string{"knowledge-base/a.md", "knowledge-base/a_archived.md"}
	lib.metadata = []docs.FileEntry{entry("f1", project+"/knowledge-base/a.md")}
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	if err := c.Rename(ctx, mustLookup(t, c, project+"/knowledge-base/a.md"), "b.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	local := c.Entries()

	mustRefresh(t, c)
	refreshed := c.Entries()
	if len(local) != len(refreshed) || docs.CountCorrupted(local) != docs.CountCorrupted(refreshed) {
		t.Errorf("local listing %d entries (%d corrupted), store %d entries (%d corrupted)",
			len(local), docs.CountCorrupted(local), len(refreshed), docs.CountCorrupted(refreshed))
	}
	sibling := mustLookup(t, c, project+"/knowledge-base/a_archived.md")
	if !sibling.IsCorrupted {
		t.Errorf("archived sibling = %+v, want corrupted once its record moved", sibling)
	}
}

func TestRenameReplacesFinalSegmentOnly(t *testing.T) {
	lib := newFakeLibrary()
	lib.storage = []string{"notes/notes"}
	lib.metadata = []docs.FileEntry{entry("f1", project+"/notes/notes")}
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)

	if err := c.Rename(context.Background(), mustLookup(t, c, project+"/notes/notes"), "todo"); err != nil {
		t.Fatal(err)
	}
	if got := lib.renames[0].NewPath; got != project+"/notes/todo" {
		t.Errorf("new path = %s", got)
	}
}

func TestRenameCorruptedRejectedWithoutStoreCall(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)

	orphan := mustLookup(t, c, project+"/knowledge-base/orphan.md")
	if err := c.Rename(context.Background(), orphan, "x.md"); !errors.Is(err, ErrCorrupted) {
		t.Errorf("err = %v, want ErrCorrupted", err)
	}
	if err := c.BeginRename(orphan); !errors.Is(err, ErrCorrupted) {
		t.Errorf("BeginRename err = %v", err)
	}
	if n := lib.count("RenameFile"); n != 0 {
		t.Errorf("RenameFile called %d times", n)
	}
	if rec.last().OK() {
		t.Error("expected error notification")
	}
}

func TestRenameInvalidName(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)

	a := mustLookup(t, c, project+"/knowledge-base/a.md")
	for _, name := range []string{"", "  ", "x/y.md", ".."} {
		if err := c.Rename(context.Background(), a, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Rename(%q) = %v", name, err)
		}
	}
	if lib.count("RenameFile") != 0 {
		t.Error("store called for invalid name")
	}
	if ev := rec.last(); ev.OK() || ev.Type != events.EventRename {
		t.Errorf("event = %+v, want failed rename notification", ev)
	}
}

func TestInlineRename(t *testing.T) {
	lib := standardLibrary()
	lib.renameErr = errors.New("conflict")
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	if err := c.ConfirmRename(ctx); !errors.Is(err, ErrNoRename) {
		t.Errorf("ConfirmRename without rename = %v", err)
	}

	a := mustLookup(t, c, project+"/knowledge-base/a.md")
	c.BeginRename(a)
	if s := c.Session(); s.Rename == nil || s.Rename.Buffer != "a.md" {
		t.Fatalf("rename state = %+v", s.Rename)
	}
	c.SetRenameBuffer("b.md")

	if err := c.ConfirmRename(ctx); err == nil {
		t.Fatal("expected rename failure")
	}
	if s := c.Session(); s.Rename == nil || s.Rename.Buffer != "b.md" {
		t.Error("failed rename cleared the rename state")
	}

	lib.renameErr = nil
	if err := c.ConfirmRename(ctx); err != nil {
		t.Fatalf("ConfirmRename: %v", err)
	}
	if s := c.Session(); s.Rename != nil {
		t.Error("rename state not cleared after success")
	}

	c.BeginRename(mustLookup(t, c, project+"/knowledge-base/b.md"))
	c.Select(mustLookup(t, c, project+"/knowledge-base/b.md"))
	if c.Session().Rename != nil {
		t.Error("Select did not clear the rename")
	}
}

func TestDeleteCorrupted(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	orphan := mustLookup(t, c, project+"/knowledge-base/orphan.md")
	c.Select(orphan)
	if err := c.Delete(ctx, orphan); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := c.Lookup(orphan.FilePath); ok {
		t.Error("deleted file still listed")
	}
	if c.Session().Path != "" {
		t.Error("selection of deleted file kept")
	}
	if ev := rec.last(); ev.Type != events.EventDelete || !ev.OK() {
		t.Errorf("event = %+v", ev)
	}
	if lib.count("EnqueueDeleteRequest") != 0 {
		t.Error("corrupted file sent to the approval queue")
	}
}

func TestDeleteCorruptedFailureKeepsListing(t *testing.T) {
	lib := standardLibrary()
	lib.deleteErr = errors.New("denied")
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)

	orphan := mustLookup(t, c, project+"/knowledge-base/orphan.md")
	if err := c.DeleteCorrupted(context.Background(), orphan); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := c.Lookup(orphan.FilePath); !ok {
		t.Error("file dropped despite failed delete")
	}
}

func TestDeleteIndexedQueuesRequest(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)
	ctx := context.Background()

	a := mustLookup(t, c, project+"/knowledge-base/a.md")
	if err := c.DeleteCorrupted(ctx, a); !errors.Is(err, ErrNotCorrupted) {
		t.Errorf("DeleteCorrupted on indexed = %v", err)
	}
	if err := c.Delete(ctx, a); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := docs.DeleteRequest{
		ID:          "req-1",
		Project:     project,
		FileID:      "f1",
		FileName:    "a.md",
		RequestedBy: "alice",
		FilePath:    a.FilePath,
		Status:      docs.RequestPending,
	}
	if len(lib.requests) != 1 || lib.requests[0] != want {
		t.Errorf("requests = %+v", lib.requests)
	}
	if lib.count("DeleteFile") != 0 {
		t.Error("indexed file deleted directly")
	}
	if _, ok := c.Lookup(a.FilePath); !ok {
		t.Error("file left the listing before approval")
	}
	if ev := rec.last(); ev.Message != "Your request for delete has been sent to admin." {
		t.Errorf("event = %+v", ev)
	}
}

func TestRequestDeleteFailure(t *testing.T) {
	lib := standardLibrary()
	lib.enqueueErr = errors.New("queue down")
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)

	if _, err := c.RequestDelete(context.Background(), mustLookup(t, c, project+"/knowledge-base/a.md")); err == nil {
		t.Fatal("expected error")
	}
	if ev := rec.last(); ev.OK() || ev.Message != "Failed to create delete queue" {
		t.Errorf("event = %+v", ev)
	}
}

func TestUploadAddsToListing(t *testing.T) {
	lib := standardLibrary()
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)

	uploaded, err := c.Upload(context.Background(), "prompts", []library.UploadFile{{Name: "p.txt"}})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("uploaded = %+v", uploaded)
	}
	e := mustLookup(t, c, project+"/prompts/p.txt")
	if e.IsCorrupted {
		t.Error("uploaded file listed as corrupted")
	}
	if got := c.Visible("prompts"); len(got) != 1 {
		t.Errorf("prompts section = %+v", got)
	}

	if _, err := c.Upload(context.Background(), "", nil); !errors.Is(err, ErrInvalidName) {
		t.Errorf("empty category err = %v", err)
	}
}

func TestSearchAndSections(t *testing.T) {
	lib := standardLibrary()
	lib.storage = append(lib.storage, "prompts/intro.txt")
	lib.metadata = append(lib.metadata, entry("f2", project+"/prompts/intro.txt"))
	c, _ := newTestController(t, lib)
	mustRefresh(t, c)

	c.SetSectionOpen("knowledge-base", false)
	c.SetSectionOpen("prompts", false)
	c.SetSearch("INTRO")

	sections := c.Sections()
	if len(sections) != 2 {
		t.Fatalf("sections = %+v", sections)
	}
	for _, s := range sections {
		if !s.Open {
			t.Errorf("section %s not auto-expanded", s.Token)
		}
	}
	if got := sections[1].Entries; len(got) != 1 || got[0].FileName != "intro.txt" {
		t.Errorf("prompts entries = %+v", got)
	}
	if got := sections[0].Entries; len(got) != 0 {
		t.Errorf("knowledge-base entries = %+v", got)
	}
}

func TestDownload(t *testing.T) {
	lib := standardLibrary()
	c, rec := newTestController(t, lib)
	mustRefresh(t, c)

	got, err := c.Download(context.Background(), mustLookup(t, c, project+"/knowledge-base/a.md"))
	if err != nil || got != "# A" {
		t.Errorf("Download = %q, %v", got, err)
	}
	if ev := rec.last(); ev.Type != events.EventDownload || !ev.OK() {
		t.Errorf("event = %+v", ev)
	}

	_, err = c.Download(context.Background(), entry("x", project+"/knowledge-base/missing.md"))
	if err == nil || rec.last().Message != "Failed to download file" {
		t.Errorf("missing download err = %v, event = %+v", err, rec.last())
	}
}
