// Package docs holds the knowledge-base file model and the pure listing
// logic: path normalization, three-way reconciliation, search filtering,
// category partitioning and content-kind detection.
package docs

import (
	"strings"
	"time"
)

// FileEntry is one row of the reconciled file listing.
type FileEntry struct {
	FileID          string    `json:"fileId"`
	FileName        string    `json:"fileName"`
	FilePath        string    `json:"filePath"`
	Project         string    `json:"project"`
	ContentType     string    `json:"contentType,omitempty"`
	IndexFileID     string    `json:"indexFileId"`
	IndexUploadedAt string    `json:"indexUploadedAt"`
	RawPreview      string    `json:"rawPreview"`
	IsCorrupted     bool      `json:"isCorrupted"`
	IsDeleted       bool      `json:"isDeleted"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DeleteKind selects which delete command applies to an entry.
type DeleteKind int

const (
	// DeleteViaApproval enqueues a request for an approver.
	DeleteViaApproval DeleteKind = iota
	// DeleteDirect removes the storage object immediately.
	DeleteDirect
)

func (k DeleteKind) String() string {
	if k == DeleteDirect {
		return "direct"
	}
	return "approval"
}

// DeleteKind returns DeleteDirect for corrupted entries and
// DeleteViaApproval for indexed ones.
func (e FileEntry) DeleteKind() DeleteKind {
	if e.IsCorrupted {
		return DeleteDirect
	}
	return DeleteViaApproval
}

// RelativePath returns the path without its project segment.
func (e FileEntry) RelativePath() string {
	return StripProject(e.FilePath)
}

// Category returns the path segment at index 1 ("" if absent).
func (e FileEntry) Category() string {
	return Segment(e.FilePath, 1)
}

// StripProject drops the first path segment. A path with a single segment
// yields "".
func StripProject(p string) string {
	_, rest, ok := strings.Cut(p, "/")
	if !ok {
		return ""
	}
	return rest
}

// Segment returns the i-th "/"-separated segment of p, or "".
func Segment(p string, i int) string {
	parts := strings.Split(p, "/")
	if i < 0 || i >= len(parts) {
		return ""
	}
	return parts[i]
}

// LeafName returns the last path segment. A path ending in "/" yields the
// whole path, matching how the listing names odd keys.
func LeafName(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	if leaf := p[i+1:]; leaf != "" {
		return leaf
	}
	return p
}

// ReplaceLeaf returns p with its final segment replaced by leaf. Earlier
// segments are never touched, even if they spell the same name.
func ReplaceLeaf(p, leaf string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return leaf
	}
	return p[:i+1] + leaf
}

// DeleteRequest statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// DeleteRequest asks an approver to delete an indexed file.
type DeleteRequest struct {
	ID          string     `json:"id"`
	Project     string     `json:"project"`
	FileID      string     `json:"fileId"`
	FileName    string     `json:"fileName"`
	RequestedBy string     `json:"requestedBy"`
	FilePath    string     `json:"filePath"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy  string     `json:"resolvedBy,omitempty"`
}
