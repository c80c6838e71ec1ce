package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"bnrun/pkg/script"
)

// WatchOptions controls Watch.
type WatchOptions struct {
	// Dir is the scripts directory to watch.
	Dir string

	// Debounce coalesces bursts of events (editors often write several times per save).
	Debounce time.Duration

	// Out receives the "watching" banner between runs.
	Out io.Writer

	Logger *slog.Logger
}

// Watch calls run once, then again every time a definition file in opt.Dir changes, until ctx is
// done. Runs never overlap: events arriving during a run are coalesced into one follow-up run.
// Errors from run are logged and do not stop watching.
func Watch(ctx context.Context, opt WatchOptions, run func(context.Context) error) error {
	if run == nil {
		return errors.New("watch: run func is nil")
	}
	dir := strings.TrimSpace(opt.Dir)
	if dir == "" {
		return errors.New("watch: scripts directory is required")
	}
	debounce := opt.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	log := loggerOrDiscard(opt.Logger).With("dir", dir)
	out := opt.Out
	if out == nil {
		out = io.Discard
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	once := func() {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			log.Error("run failed", "err", err)
		}
		fmt.Fprintf(out, "\nWatching %s for changes... (Press Ctrl+C to exit)\n", dir)
	}
	once()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			log.Debug("definition changed", "file", filepath.Base(ev.Name), "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			once()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "err", err)
		}
	}
}

// relevant reports whether ev touches a definition file.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return slices.Contains(script.Extensions, ext)
}
