// Package trigger re-runs an import when input files change (fsnotify) or
// on a cron schedule (robfig/cron). Runs never overlap.
package trigger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"csvload/internal/logging"
)

// RunFunc performs one import pass. reason is "watch", "schedule" or
// whatever the caller passes.
type RunFunc func(ctx context.Context, reason string) error

// Serialize wraps run so that concurrent callers execute one at a time.
func Serialize(run RunFunc) RunFunc {
	var mu sync.Mutex
	return func(ctx context.Context, reason string) error {
		mu.Lock()
		defer mu.Unlock()
		return run(ctx, reason)
	}
}

// Watch calls run after files in dir are created or written and no further
// events arrived for debounce. match filters base names; nil accepts all.
// It blocks until ctx is done and returns nil then.
func Watch(ctx context.Context, dir string, debounce time.Duration, match func(name string) bool, run RunFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("trigger: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("trigger: watch %s: %w", dir, err)
	}

	log := logging.WithFields(ctx, "trigger", "watch", "dir", dir)
	log.Info("watching for changes", "debounce", debounce)

	var (
		mu    sync.Mutex
		timer *time.Timer
		wg    sync.WaitGroup
	)
	fire := func() {
		defer wg.Done()
		if ctx.Err() != nil {
			return
		}
		if err := run(ctx, "watch"); err != nil {
			log.Error("run failed", "err", err)
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if match != nil && !match(name) {
				continue
			}
			log.Debug("change detected", "file", name, "op", ev.Op.String())

			mu.Lock()
			if timer != nil && timer.Stop() {
				wg.Done()
			}
			wg.Add(1)
			timer = time.AfterFunc(debounce, fire)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "err", err)
		}
	}
}

// Schedule calls run on the standard cron spec (five fields or descriptors
// such as "@every 1h"). It blocks until ctx is done, then waits for a run in
// progress to finish.
func Schedule(ctx context.Context, spec string, run RunFunc) error {
	log := logging.WithFields(ctx, "trigger", "schedule", "spec", spec)

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := run(ctx, "schedule"); err != nil {
			log.Error("run failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("trigger: invalid schedule %q: %w", spec, err)
	}

	c.Start()
	log.Info("schedule started", "next", c.Entries()[0].Next)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
