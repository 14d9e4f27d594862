package docs

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filter keeps entries whose FileName contains query, ignoring case. The
// full path is not searched. An empty query returns entries as given.
func Filter(entries []FileEntry, query string) []FileEntry {
	if query == "" {
		return entries
	}
	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]FileEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(fold.String(e.FileName), needle) {
			out = append(out, e)
		}
	}
	return out
}

// Partition returns the entries whose category segment (index 1 of the
// path) contains token, sorted by FileName with a locale-aware collator.
// The input slice is not modified.
func Partition(entries []FileEntry, token string) []FileEntry {
	out := make([]FileEntry, 0)
	for _, e := range entries {
		if strings.Contains(e.Category(), token) {
			out = append(out, e)
		}
	}
	SortByName(out)
	return out
}

// SortByName sorts entries in place by FileName, locale-aware and stable.
func SortByName(entries []FileEntry) {
	// collate.Collator is not safe for concurrent use.
	c := collate.New(language.Und)
	sort.SliceStable(entries, func(i, j int) bool {
		return c.CompareString(entries[i].FileName, entries[j].FileName) < 0
	})
}
