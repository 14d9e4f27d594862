package docs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArchiveMarker is the suffix a file gets when it is moved to cold storage.
const ArchiveMarker = "_archived"

// CorruptedIDPrefix prefixes ids synthesized for unindexed storage objects.
const CorruptedIDPrefix = "corrupted-"

// corruptedNamespace seeds the name-based UUIDs of corrupted entries.
var corruptedNamespace = uuid.MustParse("6f1c2a4e-8d43-4b7e-9a51-2f0d7c3e5b18")

// NormalizePath strips the archive marker that sits right before the
// extension of the last segment: "kb/notes_archived.md" -> "kb/notes.md".
// Stacked markers are all removed so that the result is a fixed point.
func NormalizePath(p string) string {
	slash := strings.LastIndex(p, "/")
	dot := strings.LastIndex(p, ".")
	if dot <= slash+1 || dot == len(p)-1 {
		return p
	}
	stem, ext := p[:dot], p[dot:]
	trimmed := stem
	for strings.HasSuffix(trimmed, ArchiveMarker) {
		trimmed = strings.TrimSuffix(trimmed, ArchiveMarker)
	}
	if trimmed == stem {
		return p
	}
	return trimmed + ext
}

// CorruptedID derives the id of a corrupted entry from its full path. The
// same path always yields the same id.
func CorruptedID(fullPath string) string {
	return CorruptedIDPrefix + uuid.NewSHA1(corruptedNamespace, []byte(fullPath)).String()
}

// Reconcile merges the raw storage listing with the metadata and archive
// indexes. storagePaths are relative to the project; index entries carry
// the project as their first path segment.
//
// The result is the metadata entries followed by one corrupted entry per
// storage path that neither index knows about. Archive entries only count
// for membership and never appear in the result.
func Reconcile(project string, storagePaths []string, metadata, archive []FileEntry) []FileEntry {
	known := make(map[string]struct{}, len(metadata)+len(archive))
	for _, f := range metadata {
		known[NormalizePath(StripProject(f.FilePath))] = struct{}{}
	}
	for _, f := range archive {
		known[NormalizePath(StripProject(f.FilePath))] = struct{}{}
	}

	out := make([]FileEntry, 0, len(metadata)+len(storagePaths))
	out = append(out, metadata...)

	now := time.Now().UTC()
	seen := make(map[string]struct{}, len(storagePaths))
	for _, p := range storagePaths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, ok := known[NormalizePath(p)]; ok {
			continue
		}
		out = append(out, corruptedEntry(project, p, now))
	}
	return out
}

func corruptedEntry(project, rawPath string, now time.Time) FileEntry {
	full := project + "/" + rawPath
	return FileEntry{
		FileID:      CorruptedID(full),
		FileName:    LeafName(rawPath),
		FilePath:    full,
		Project:     project,
		IsCorrupted: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CountCorrupted returns the number of corrupted entries.
func CountCorrupted(entries []FileEntry) int {
	n := 0
	for _, e := range entries {
		if e.IsCorrupted {
			n++
		}
	}
	return n
}

// Find returns the entry with the given path.
func Find(entries []FileEntry, path string) (FileEntry, bool) {
	for _, e := range entries {
		if e.FilePath == path {
			return e, true
		}
	}
	return FileEntry{}, false
}
