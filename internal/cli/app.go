package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/config"
	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/events"
	"github.com/fruitsalade/kbdocs/internal/library"
	"github.com/fruitsalade/kbdocs/internal/lifecycle"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metadata/postgres"
	"github.com/fruitsalade/kbdocs/internal/retry"
	"github.com/fruitsalade/kbdocs/internal/storage"
)

// app is the wired set of components one command runs against.
type app struct {
	cfg     *config.Config
	meta    *postgres.Store
	backend storage.Backend
	svc     *library.Service
	bus     *events.Broadcaster
	ctrl    *lifecycle.Controller
}

// consoleNotifier prints command outcomes and forwards them to the bus.
type consoleNotifier struct {
	w   io.Writer
	bus *events.Broadcaster
}

func (n consoleNotifier) Publish(e events.Event) {
	prefix := "ok"
	if !e.OK() {
		prefix = "error"
	}
	fmt.Fprintf(n.w, "%s: %s\n", prefix, e.Message)
	n.bus.Publish(e)
}

// loadConfig applies the global flags on top of the loaded configuration.
func loadConfig() (*config.Config, error) {
	flags := GetGlobalFlags()
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if flags.Project != "" {
		cfg.Project = flags.Project
	}
	if flags.LogLevel != "" {
		cfg.LogLevel = flags.LogLevel
	}
	if cfg.Project == "" {
		return nil, errors.New("no project: set --project or KBDOCS_PROJECT")
	}
	if strings.Contains(cfg.Project, "/") {
		return nil, fmt.Errorf("project %q must not contain '/'", cfg.Project)
	}
	return cfg, nil
}

// openApp loads configuration, connects the stores and builds the
// controller. Notifications are printed to out.
func openApp(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return nil, fmt.Errorf("logging init error: %w", err)
	}

	logging.Debug("connecting to PostgreSQL...")
	meta, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := meta.Migrate(ctx); err != nil {
		meta.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	backend, err := storage.NewBackendFromConfig(ctx, cfg)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("storage init failed: %w", err)
	}
	logging.Debug("storage backend ready", zap.String("type", backend.Type()))

	svc := library.NewService(backend, meta, cfg.UploadExtensions)
	bus := events.NewBroadcaster()
	ctrl := lifecycle.New(svc, svc, svc, lifecycle.Options{
		Project:    cfg.Project,
		User:       cfg.User,
		Categories: cfg.Categories,
		Retry: retry.Config{
			MaxAttempts: cfg.RetryAttempts,
			InitialWait: cfg.RetryWait,
			MaxWait:     10 * cfg.RetryWait,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
		Notifier: consoleNotifier{w: out, bus: bus},
	})

	return &app{
		cfg:     cfg,
		meta:    meta,
		backend: backend,
		svc:     svc,
		bus:     bus,
		ctrl:    ctrl,
	}, nil
}

// Close releases the stores.
func (a *app) Close() {
	a.backend.Close()
	a.meta.Close()
	logging.Sync()
}

// refresh loads the listing; partial failures are logged, but nothing can
// be shown until storage and metadata have both loaded.
func (a *app) refresh(ctx context.Context) error {
	err := a.ctrl.Refresh(ctx)
	if !a.ctrl.Ready() {
		return fmt.Errorf("listing unavailable: %w", err)
	}
	return nil
}

// resolve finds a listed entry by full or project-relative path.
func (a *app) resolve(arg string) (docs.FileEntry, error) {
	path := strings.TrimPrefix(arg, "/")
	if !strings.HasPrefix(path, a.cfg.Project+"/") {
		path = a.cfg.Project + "/" + path
	}
	e, ok := a.ctrl.Lookup(path)
	if !ok {
		return docs.FileEntry{}, fmt.Errorf("file %s is not listed", path)
	}
	return e, nil
}
