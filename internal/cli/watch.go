package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/kbdocs/internal/docs"
	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metrics"
	"github.com/fruitsalade/kbdocs/internal/storage"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the listing reconciled and serve metrics",
		Long: `Refresh the listing periodically, and on every change for storage backends
that can report them, logging the reconciled totals. Prometheus metrics are
served on METRICS_ADDR until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if interval <= 0 {
				interval = a.cfg.RefreshInterval
			}
			return a.watch(ctx, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default $KBDOCS_REFRESH_INTERVAL)")
	return cmd
}

func (a *app) watch(ctx context.Context, interval time.Duration) error {
	metricsServer := &http.Server{
		Addr:    a.cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", a.cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()
	defer metricsServer.Close()

	var changes <-chan struct{}
	if w, ok := a.backend.(storage.Watcher); ok {
		ch, err := w.Watch(ctx, storage.ProjectPrefix(a.cfg.Project))
		if err != nil {
			logging.Warn("storage watch unavailable, polling only", zap.Error(err))
		} else {
			changes = ch
		}
	}

	events := a.bus.Subscribe()
	defer a.bus.Unsubscribe(events)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.refreshAndReport(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info("shutting down...")
			return nil
		case <-ticker.C:
			a.meta.UpdateConnectionMetrics()
			a.refreshAndReport(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			logging.Debug("storage changed")
			a.refreshAndReport(ctx)
		case ev := <-events:
			logging.Info("notification",
				zap.String("type", ev.Type),
				zap.String("status", ev.Status),
				zap.String("path", ev.Path))
		}
	}
}

func (a *app) refreshAndReport(ctx context.Context) {
	if err := a.ctrl.Refresh(ctx); err != nil && ctx.Err() == nil {
		logging.Warn("refresh failed", zap.Error(err))
	}
	if !a.ctrl.Ready() {
		return
	}
	entries := a.ctrl.Entries()
	corrupted := docs.CountCorrupted(entries)
	logging.Info("listing reconciled",
		zap.String("project", a.cfg.Project),
		zap.Int("files", len(entries)),
		zap.Int("corrupted", corrupted))
	for _, e := range entries {
		if e.IsCorrupted {
			logging.Debug("corrupted file", zap.String("path", e.RelativePath()))
		}
	}
}
