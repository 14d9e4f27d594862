package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/events"
)

// Mode is the content pane state of the selected file.
type Mode int

const (
	Viewing Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "viewing"
}

// Rename is an in-progress inline rename. At most one exists at a time.
type Rename struct {
	Entry  docs.FileEntry
	Buffer string
}

// Session is the state of the selected file.
type Session struct {
	Path      string
	Buffer    string
	Baseline  string
	Loaded    bool
	Mode      Mode
	Corrupted bool
	Rename    *Rename
}

// Session returns a copy of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.Rename != nil {
		r := *s.Rename
		s.Rename = &r
	}
	return s
}

// Select makes entry the selected file in Viewing mode and drops any
// in-progress rename. Content already cached is shown immediately.
func (c *Controller) Select(entry docs.FileEntry) {
	content, cached := c.cache.Peek(c.project, entry.FilePath)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = Session{
		Path:      entry.FilePath,
		Mode:      Viewing,
		Corrupted: entry.IsCorrupted,
	}
	if cached {
		c.session.Baseline = content
		c.session.Buffer = content
		c.session.Loaded = true
	}
}

// ClearSelection deselects the current file.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = Session{}
}

// Load fetches the selected file's content through the cache. The result
// is applied only if the selection has not moved in the meantime.
func (c *Controller) Load(ctx context.Context) (string, error) {
	c.mu.Lock()
	path := c.session.Path
	c.mu.Unlock()
	if path == "" {
		return "", ErrNoSelection
	}

	content, err := c.cache.Get(ctx, c.project, path)
	if err != nil {
		c.log(ctx).Warn("load failed", zap.String("path", path), zap.Error(err))
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Path != path {
		c.log(ctx).Debug("discarding stale load", zap.String("path", path))
		return content, nil
	}
	c.session.Baseline = content
	c.session.Loaded = true
	if c.session.Mode == Viewing {
		c.session.Buffer = content
	}
	return content, nil
}

// Reload refetches the selected file bypassing the cache. An unsaved edit
// buffer is left alone.
func (c *Controller) Reload(ctx context.Context) (string, error) {
	c.mu.Lock()
	path := c.session.Path
	c.mu.Unlock()
	if path == "" {
		return "", ErrNoSelection
	}

	content, err := c.cache.Refetch(ctx, c.project, path)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Path == path {
		c.session.Baseline = content
		c.session.Loaded = true
		if c.session.Mode == Viewing {
			c.session.Buffer = content
		}
	}
	return content, nil
}

// StartEdit enters Editing with the buffer seeded from the loaded content.
func (c *Controller) StartEdit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.session.Path == "":
		return ErrNoSelection
	case c.session.Corrupted:
		return ErrCorrupted
	case !c.session.Loaded:
		return ErrNotLoaded
	}
	c.session.Mode = Editing
	c.session.Buffer = c.session.Baseline
	return nil
}

// SetBuffer replaces the edit buffer.
func (c *Controller) SetBuffer(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Mode != Editing {
		return ErrNotEditing
	}
	c.session.Buffer = s
	return nil
}

// CancelEdit returns to Viewing and discards the buffer.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Mode = Viewing
	c.session.Buffer = c.session.Baseline
}

// Save writes the edit buffer. On success the cache is updated first, then
// the saved text becomes the baseline and the session returns to Viewing,
// unless the buffer changed while the save was in flight. On failure the
// session stays in Editing with the buffer untouched.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	path, buffer := c.session.Path, c.session.Buffer
	var err error
	switch {
	case path == "":
		err = ErrNoSelection
	case c.session.Mode != Editing:
		err = ErrNotEditing
	case c.session.Corrupted:
		err = ErrCorrupted
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}

	start := time.Now()
	err = c.store.UpdateFile(ctx, c.project, path, buffer)
	if err == nil {
		c.cache.Put(c.project, path, buffer)

		c.mu.Lock()
		if c.session.Path == path {
			c.session.Baseline = buffer
			c.session.Loaded = true
			// Edits typed while the save was in flight stay in Editing.
			if c.session.Buffer == buffer {
				c.session.Mode = Viewing
			}
		}
		c.mu.Unlock()
	}
	return c.report(ctx, "save", events.EventSave, path, start, err,
		"You've successfully updated the file.",
		"An error occurred while updating the file.")
}
