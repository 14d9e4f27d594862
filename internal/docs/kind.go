package docs

import (
	"encoding/json"
	"strings"
)

// Kind is how a file's content should be presented.
type Kind int

const (
	// KindMarkdown is prose, rendered as markdown.
	KindMarkdown Kind = iota
	// KindStructured is data shown verbatim (JSON and similar).
	KindStructured
	// KindPlain is text shown verbatim without markdown.
	KindPlain
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindPlain:
		return "plain"
	default:
		return "markdown"
	}
}

// DetectKind decides how to present content. A content type declared on
// the metadata record wins; otherwise the content is sniffed. Sniffing is
// best effort: it looks for a parseable {...} block and never fails.
func DetectKind(e FileEntry, content string) Kind {
	if k, ok := kindFromContentType(e.ContentType); ok {
		return k
	}
	if HasJSONBlock(content) {
		return KindStructured
	}
	return KindMarkdown
}

func kindFromContentType(ct string) (Kind, bool) {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch {
	case ct == "":
		return 0, false
	case ct == "text/markdown" || ct == "text/x-markdown":
		return KindMarkdown, true
	case ct == "application/json" || strings.HasSuffix(ct, "+json"):
		return KindStructured, true
	case ct == "text/plain":
		return KindPlain, true
	}
	return 0, false
}

// HasJSONBlock reports whether the span from the first '{' to the last '}'
// parses as JSON.
func HasJSONBlock(content string) bool {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return false
	}
	return json.Valid([]byte(content[start : end+1]))
}
