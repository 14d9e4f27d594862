package docs

// Sections tracks which category sections of the listing are expanded.
// The zero value has no sections; use NewSections.
type Sections struct {
	order []string
	open  map[string]bool
	query string
}

// NewSections returns a section set with every category open.
func NewSections(tokens ...string) *Sections {
	s := &Sections{open: make(map[string]bool, len(tokens))}
	for _, t := range tokens {
		if _, dup := s.open[t]; dup {
			continue
		}
		s.order = append(s.order, t)
		s.open[t] = true
	}
	return s
}

// Tokens returns the category tokens in display order.
func (s *Sections) Tokens() []string {
	return append([]string(nil), s.order...)
}

// IsOpen reports whether the section is expanded.
func (s *Sections) IsOpen(token string) bool {
	return s.open[token]
}

// SetOpen expands or collapses one section.
func (s *Sections) SetOpen(token string, open bool) {
	if _, ok := s.open[token]; !ok {
		return
	}
	s.open[token] = open
	s.autoExpand()
}

// SetQuery records the active search text.
func (s *Sections) SetQuery(q string) {
	s.query = q
	s.autoExpand()
}

// Query returns the active search text.
func (s *Sections) Query() string {
	return s.query
}

// autoExpand opens every section when a search is active and all of them
// are collapsed. Once any section is open it has no effect.
func (s *Sections) autoExpand() {
	if s.query == "" || len(s.order) == 0 {
		return
	}
	for _, t := range s.order {
		if s.open[t] {
			return
		}
	}
	for _, t := range s.order {
		s.open[t] = true
	}
}
