package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/events"
	"github.com/fruitsalade/kbdocs/internal/library"
)

// ─── Rename ──────────────────────────────────────────────────────────────────

// BeginRename starts an inline rename of entry, replacing any other
// rename in progress. The buffer starts as the current leaf name.
func (c *Controller) BeginRename(entry docs.FileEntry) error {
	if entry.IsCorrupted {
		return ErrCorrupted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Rename = &Rename{Entry: entry, Buffer: entry.FileName}
	return nil
}

// SetRenameBuffer edits the pending name.
func (c *Controller) SetRenameBuffer(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Rename == nil {
		return ErrNoRename
	}
	c.session.Rename.Buffer = s
	return nil
}

// CancelRename drops the pending rename.
func (c *Controller) CancelRename() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Rename = nil
}

// ConfirmRename submits the pending rename. The rename stays pending if
// the store rejects it.
func (c *Controller) ConfirmRename(ctx context.Context) error {
	c.mu.Lock()
	pending := c.session.Rename
	c.mu.Unlock()
	if pending == nil {
		return ErrNoRename
	}
	entry, leaf := pending.Entry, pending.Buffer

	if err := c.Rename(ctx, entry, leaf); err != nil {
		return err
	}

	c.mu.Lock()
	if r := c.session.Rename; r != nil && r.Entry.FilePath == entry.FilePath {
		c.session.Rename = nil
	}
	c.mu.Unlock()
	return nil
}

// Rename replaces the final segment of entry's path with newLeaf. The
// metadata record keeps its id; the listing is re-reconciled whatever is
// selected, and a selection on the old path follows the file.
func (c *Controller) Rename(ctx context.Context, entry docs.FileEntry, newLeaf string) error {
	start := time.Now()
	if entry.IsCorrupted {
		return c.report(ctx, "rename", events.EventRename, entry.FilePath, start, ErrCorrupted,
			"", "Corrupted files cannot be renamed.")
	}
	newLeaf = strings.TrimSpace(newLeaf)
	if newLeaf == "" || newLeaf == "." || newLeaf == ".." || strings.ContainsAny(newLeaf, "/\\") {
		return c.report(ctx, "rename", events.EventRename, entry.FilePath, start,
			fmt.Errorf("rename to %q: %w", newLeaf, ErrInvalidName),
			"", "Invalid file name.")
	}

	oldPath := entry.FilePath
	newPath := docs.ReplaceLeaf(oldPath, newLeaf)
	if newPath == oldPath {
		return nil
	}

	err := c.store.RenameFile(ctx, c.project, library.RenameRequest{OldPath: oldPath, NewPath: newPath})
	if err == nil {
		c.applyRename(entry, oldPath, newPath)
	}
	return c.report(ctx, "rename", events.EventRename, newPath, start, err,
		"File renamed successfully.", "Failed to rename the file.")
}

func (c *Controller) applyRename(entry docs.FileEntry, oldPath, newPath string) {
	if content, ok := c.cache.Peek(c.project, oldPath); ok {
		c.cache.Put(c.project, newPath, content)
	}
	c.cache.Invalidate(c.project, oldPath)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for i := range c.metadata {
		m := &c.metadata[i]
		if (entry.FileID != "" && m.FileID == entry.FileID) || m.FilePath == oldPath {
			m.FilePath = newPath
			m.FileName = docs.LeafName(newPath)
			m.UpdatedAt = now
		}
	}
	// Only the object the store moved changes; archived variants of the
	// same name stay where they are.
	oldRel, newRel := docs.StripProject(oldPath), docs.StripProject(newPath)
	for i, p := range c.storage {
		if p == oldRel {
			c.storage[i] = newRel
		}
	}
	if c.session.Path == oldPath {
		c.session.Path = newPath
	}
	c.reconcileLocked()
}

// ─── Delete ──────────────────────────────────────────────────────────────────

// Delete dispatches to DeleteCorrupted or RequestDelete by entry kind.
func (c *Controller) Delete(ctx context.Context, entry docs.FileEntry) error {
	if entry.DeleteKind() == docs.DeleteDirect {
		return c.DeleteCorrupted(ctx, entry)
	}
	_, err := c.RequestDelete(ctx, entry)
	return err
}

// DeleteCorrupted removes a corrupted file's storage object directly. On
// success its path leaves the storage listing.
func (c *Controller) DeleteCorrupted(ctx context.Context, entry docs.FileEntry) error {
	if !entry.IsCorrupted {
		return ErrNotCorrupted
	}
	start := time.Now()
	rel := entry.RelativePath()

	err := c.store.DeleteFile(ctx, c.project, rel)
	if err == nil {
		c.cache.Invalidate(c.project, entry.FilePath)

		c.mu.Lock()
		kept := make([]string, 0, len(c.storage))
		for _, p := range c.storage {
			if p != rel {
				kept = append(kept, p)
			}
		}
		c.storage = kept
		if c.session.Path == entry.FilePath {
			c.session = Session{Rename: c.session.Rename}
		}
		c.reconcileLocked()
		c.mu.Unlock()
	}
	return c.report(ctx, "delete", events.EventDelete, entry.FilePath, start, err,
		"File deleted successfully.", "Failed to delete the file.")
}

// RequestDelete queues an approval request for an indexed file. The file
// stays listed.
func (c *Controller) RequestDelete(ctx context.Context, entry docs.FileEntry) (docs.DeleteRequest, error) {
	if entry.IsCorrupted {
		return docs.DeleteRequest{}, ErrCorrupted
	}
	start := time.Now()
	req, err := c.queue.EnqueueDeleteRequest(ctx, docs.DeleteRequest{
		Project:     c.project,
		FileID:      entry.FileID,
		FileName:    entry.FileName,
		RequestedBy: c.user,
		FilePath:    entry.FilePath,
	})
	return req, c.report(ctx, "delete_request", events.EventDeleteRequest, entry.FilePath, start, err,
		"Your request for delete has been sent to admin.", "Failed to create delete queue")
}

// ─── Upload & download ───────────────────────────────────────────────────────

// Upload stores files under category/ and adds them to the listing.
func (c *Controller) Upload(ctx context.Context, category string, files []library.UploadFile) ([]docs.FileEntry, error) {
	category = strings.Trim(category, "/")
	if category == "" || strings.Contains(category, "/") {
		return nil, fmt.Errorf("upload category %q: %w", category, ErrInvalidName)
	}
	start := time.Now()

	uploaded, err := c.store.UploadFiles(ctx, c.project, library.UploadRequest{
		Files:      files,
		TargetPath: category + "/",
	})
	if len(uploaded) > 0 {
		c.mu.Lock()
		for _, e := range uploaded {
			c.metadata = upsertByPath(c.metadata, e)
			c.storage = appendUnique(c.storage, e.RelativePath())
		}
		c.reconcileLocked()
		c.mu.Unlock()
	}
	return uploaded, c.report(ctx, "upload", events.EventUpload, c.project+"/"+category, start, err,
		"Files uploaded successfully.", "Failed to upload files.")
}

// Download returns a file's content through the cache.
func (c *Controller) Download(ctx context.Context, entry docs.FileEntry) (string, error) {
	start := time.Now()
	content, err := c.cache.Get(ctx, c.project, entry.FilePath)
	return content, c.report(ctx, "download", events.EventDownload, entry.FilePath, start, err,
		entry.FileName+" downloaded.", "Failed to download file")
}

func upsertByPath(entries []docs.FileEntry, e docs.FileEntry) []docs.FileEntry {
	for i := range entries {
		if entries[i].FilePath == e.FilePath {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

func appendUnique(paths []string, p string) []string {
	for _, q := range paths {
		if q == p {
			return paths
		}
	}
	return append(paths, p)
}
