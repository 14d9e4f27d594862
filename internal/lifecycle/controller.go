// Package lifecycle owns the file listing of one project and the per-file
// view/edit/rename/delete state machine. It keeps the three source
// listings, re-reconciles them on every change and applies command results
// only after the backing store confirms them.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/config"
	"github.com/fruitsalade/kbdocs/internal/contentcache"
	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/events"
	"github.com/fruitsalade/kbdocs/internal/library"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metrics"
	"github.com/fruitsalade/kbdocs/internal/retry"
)

var (
	// ErrNoSelection is returned by session operations when no file is selected.
	ErrNoSelection = errors.New("no file selected")
	// ErrNotLoaded is returned by StartEdit before the content has loaded.
	ErrNotLoaded = errors.New("file content not loaded")
	// ErrCorrupted rejects edit, rename and delete requests on an unindexed file.
	ErrCorrupted = errors.New("file is corrupted")
	// ErrNotCorrupted rejects a direct delete of an indexed file.
	ErrNotCorrupted = errors.New("file is not corrupted")
	// ErrNotEditing is returned by SetBuffer and Save outside Editing.
	ErrNotEditing = errors.New("not editing")
	// ErrNoRename is returned when no inline rename is pending.
	ErrNoRename = errors.New("no rename in progress")
	// ErrInvalidName rejects empty names and names containing a path separator.
	ErrInvalidName = errors.New("invalid file name")
)

// Sources fetches the three listings that are reconciled.
type Sources interface {
	ListFiles(ctx context.Context, project string) ([]string, error)
	ListMetadata(ctx context.Context, project string) ([]docs.FileEntry, error)
	ListArchived(ctx context.Context, project string) ([]docs.FileEntry, error)
}

// Store performs file commands.
type Store interface {
	GetFile(ctx context.Context, project, filePath string) (string, error)
	UpdateFile(ctx context.Context, project, filePath, content string) error
	RenameFile(ctx context.Context, project string, req library.RenameRequest) error
	DeleteFile(ctx context.Context, project, relPath string) error
	UploadFiles(ctx context.Context, project string, req library.UploadRequest) ([]docs.FileEntry, error)
}

// ApprovalQueue accepts delete requests for indexed files.
type ApprovalQueue interface {
	EnqueueDeleteRequest(ctx context.Context, req docs.DeleteRequest) (docs.DeleteRequest, error)
}

// Notifier receives command outcomes. *events.Broadcaster implements it.
type Notifier interface {
	Publish(events.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(events.Event) {}

// Options configures a Controller.
type Options struct {
	Project    string
	User       string
	Categories []config.Category
	Retry      retry.Config
	Notifier   Notifier
}

// Controller is the state of one project's document view. All methods are
// safe for concurrent use; store calls run without the lock held.
type Controller struct {
	project    string
	user       string
	categories []config.Category
	retry      retry.Config

	sources  Sources
	store    Store
	queue    ApprovalQueue
	notifier Notifier
	cache    *contentcache.Cache

	mu           sync.Mutex
	storage      []string
	metadata     []docs.FileEntry
	archive      []docs.FileEntry
	haveStorage  bool
	haveMetadata bool
	entries      []docs.FileEntry
	sections     *docs.Sections
	session      Session
}

// New creates a Controller for opts.Project.
func New(sources Sources, store Store, queue ApprovalQueue, opts Options) *Controller {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if len(opts.Categories) == 0 {
		opts.Categories = config.DefaultCategories()
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	tokens := make([]string, len(opts.Categories))
	for i, c := range opts.Categories {
		tokens[i] = c.Token
	}
	return &Controller{
		project:    opts.Project,
		user:       opts.User,
		categories: opts.Categories,
		retry:      opts.Retry,
		sources:    sources,
		store:      store,
		queue:      queue,
		notifier:   opts.Notifier,
		cache:      contentcache.New(store),
		sections:   docs.NewSections(tokens...),
	}
}

// Project returns the project the controller manages.
func (c *Controller) Project() string { return c.project }

// Cache exposes the content cache.
func (c *Controller) Cache() *contentcache.Cache { return c.cache }

func (c *Controller) log(ctx context.Context) *zap.Logger {
	return logging.WithContext(logging.WithProject(ctx, c.project))
}

// ─── Inputs ──────────────────────────────────────────────────────────────────

// SetStorage replaces the storage listing (paths relative to the project).
func (c *Controller) SetStorage(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storage = append([]string(nil), paths...)
	c.haveStorage = true
	c.reconcileLocked()
}

// SetMetadata replaces the metadata listing.
func (c *Controller) SetMetadata(entries []docs.FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = append([]docs.FileEntry(nil), entries...)
	c.haveMetadata = true
	c.reconcileLocked()
}

// SetArchive replaces the archive listing.
func (c *Controller) SetArchive(entries []docs.FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archive = append([]docs.FileEntry(nil), entries...)
	c.reconcileLocked()
}

// reconcileLocked recomputes the listing. Nothing is listed until both
// storage and metadata have loaded.
func (c *Controller) reconcileLocked() {
	if !c.haveStorage || !c.haveMetadata {
		c.entries = nil
		return
	}
	c.entries = docs.Reconcile(c.project, c.storage, c.metadata, c.archive)
	if e, ok := docs.Find(c.entries, c.session.Path); ok {
		c.session.Corrupted = e.IsCorrupted
	}
	metrics.RecordReconcile(c.project, len(c.entries), docs.CountCorrupted(c.entries))
}

// Refresh fetches all three listings and reconciles once. A source whose
// fetch fails keeps its previous value; the failures are joined into the
// returned error.
func (c *Controller) Refresh(ctx context.Context) error {
	var (
		wg                          sync.WaitGroup
		storage                     []string
		metadata, archive           []docs.FileEntry
		storageErr, metaErr, arcErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		storage, storageErr = fetch(ctx, c.retry, "storage", func() ([]string, error) {
			return c.sources.ListFiles(ctx, c.project)
		})
	}()
	go func() {
		defer wg.Done()
		metadata, metaErr = fetch(ctx, c.retry, "metadata", func() ([]docs.FileEntry, error) {
			return c.sources.ListMetadata(ctx, c.project)
		})
	}()
	go func() {
		defer wg.Done()
		archive, arcErr = fetch(ctx, c.retry, "archive", func() ([]docs.FileEntry, error) {
			return c.sources.ListArchived(ctx, c.project)
		})
	}()
	wg.Wait()

	c.mu.Lock()
	if storageErr == nil {
		c.storage = append([]string(nil), storage...)
		c.haveStorage = true
	}
	if metaErr == nil {
		c.metadata = append([]docs.FileEntry(nil), metadata...)
		c.haveMetadata = true
	}
	if arcErr == nil {
		c.archive = append([]docs.FileEntry(nil), archive...)
	}
	c.reconcileLocked()
	total, ready := len(c.entries), c.entries != nil
	c.mu.Unlock()

	err := errors.Join(storageErr, metaErr, arcErr)
	if err != nil {
		c.log(ctx).Warn("refresh incomplete", zap.Error(err))
	} else {
		c.log(ctx).Debug("refreshed listing", zap.Int("files", total), zap.Bool("ready", ready))
	}
	return err
}

func fetch[T any](ctx context.Context, cfg retry.Config, source string, fn func() (T, error)) (T, error) {
	v, err := retry.DoWithResult(ctx, cfg, func() (T, error) {
		v, err := fn()
		if err != nil && ctx.Err() == nil {
			return v, retry.Retryable(err)
		}
		return v, err
	})
	metrics.RecordSourceFetch(source, err == nil)
	if err != nil {
		return v, fmt.Errorf("refresh %s: %w", source, err)
	}
	return v, nil
}

// ─── Views ───────────────────────────────────────────────────────────────────

// Ready reports whether storage and metadata have both loaded.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries != nil
}

// Entries returns a copy of the reconciled listing.
func (c *Controller) Entries() []docs.FileEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]docs.FileEntry(nil), c.entries...)
}

// Lookup finds an entry of the reconciled listing by full path.
func (c *Controller) Lookup(path string) (docs.FileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return docs.Find(c.entries, path)
}

// SetSearch sets the search query.
func (c *Controller) SetSearch(q string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections.SetQuery(q)
}

// SetSectionOpen opens or collapses a category section.
func (c *Controller) SetSectionOpen(token string, open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections.SetOpen(token, open)
}

// Visible returns the entries of one category after the search filter.
func (c *Controller) Visible(token string) []docs.FileEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return docs.Partition(docs.Filter(c.entries, c.sections.Query()), token)
}

// Section is one category of the listing as shown.
type Section struct {
	Token   string           `json:"token"`
	Title   string           `json:"title"`
	Open    bool             `json:"open"`
	Entries []docs.FileEntry `json:"entries"`
}

// Sections returns every configured category in order.
func (c *Controller) Sections() []Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := docs.Filter(c.entries, c.sections.Query())
	out := make([]Section, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, Section{
			Token:   cat.Token,
			Title:   cat.Title,
			Open:    c.sections.IsOpen(cat.Token),
			Entries: docs.Partition(filtered, cat.Token),
		})
	}
	return out
}

// ─── Outcome reporting ───────────────────────────────────────────────────────

// report records a command outcome: metric, log line and notification.
// It returns err wrapped with the command name.
func (c *Controller) report(ctx context.Context, command, eventType, path string, start time.Time, err error, okMsg, failMsg string) error {
	metrics.RecordCommand(command, time.Since(start), err == nil)
	ev := events.Event{
		Type:    eventType,
		Status:  events.StatusSuccess,
		Project: c.project,
		Path:    path,
		Message: okMsg,
	}
	if err != nil {
		ev.Status = events.StatusError
		ev.Message = failMsg
		c.log(ctx).Warn(command+" failed", zap.String("path", path), zap.Error(err))
		err = fmt.Errorf("%s %s: %w", command, path, err)
	} else {
		c.log(ctx).Info(command+" succeeded", zap.String("path", path))
	}
	c.notifier.Publish(ev)
	return err
}
