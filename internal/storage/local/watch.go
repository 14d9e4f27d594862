package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fruitsalade/kbdocs/internal/logging"
)

// DebounceDelay coalesces bursts of filesystem events into one signal.
var DebounceDelay = 200 * time.Millisecond

// Watch reports changes to files under prefix. Each value on the returned
// channel means "something changed, list again"; bursts are coalesced.
// The channel is closed when ctx is done.
func (b *LocalBackend) Watch(ctx context.Context, prefix string) (<-chan struct{}, error) {
	dir := b.rootPath
	if p := strings.Trim(prefix, "/"); p != "" {
		var err error
		if dir, err = b.fullPath(p); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addWatchTree(watcher, dir); err != nil {
		watcher.Close()
		return nil, err
	}

	changes := make(chan struct{}, 1)

	go func() {
		defer watcher.Close()
		defer close(changes)

		timer := time.NewTimer(DebounceDelay)
		if !timer.Stop() {
			<-timer.C
		}
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = addWatchTree(watcher, event.Name)
					}
				}
				if ok, _ := filepath.Match(tempPattern, filepath.Base(event.Name)); ok {
					continue
				}
				timer.Reset(DebounceDelay)

			case <-timer.C:
				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("storage watcher error", logging.Err(err))
			}
		}
	}()

	return changes, nil
}

func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
}
