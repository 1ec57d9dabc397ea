package batch

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"courseopt/internal/logging"
	"courseopt/internal/report"
)

// Watcher runs archives as they appear in a directory. An archive is picked
// up once no write event touched it for the settle interval, so copies in
// progress are not processed half-written.
type Watcher struct {
	runner *Runner
	dir    string
	settle time.Duration
	logger *slog.Logger
}

// NewWatcher constructs a Watcher over dir.
func NewWatcher(runner *Runner, dir string, settle time.Duration, logger *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{runner: runner, dir: dir, settle: settle, logger: logging.NewComponentLogger(logger, "watch")}
}

// Watch processes archives already present, then every archive that is
// created or replaced, until ctx is cancelled. onBatch receives the reports
// of each processed group.
func (w *Watcher) Watch(ctx context.Context, onBatch func(report.Batch)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching source directory", logging.String("dir", w.dir), logging.Duration("settle", w.settle))

	pending := make(map[string]time.Time)
	if existing, err := Discover(w.dir); err == nil {
		now := time.Now().Add(-w.settle)
		for _, path := range existing {
			pending[path] = now
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil

		case <-timer.C:
			ready, wait := w.collect(pending)
			if len(ready) > 0 {
				w.logger.Info("archives ready", logging.Int("count", len(ready)))
				reports := w.runner.Run(ctx, ready)
				if onBatch != nil {
					onBatch(reports)
				}
			}
			if wait > 0 {
				timer.Reset(wait)
			}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !IsArchive(ev.Name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if len(pending) == 0 {
					timer.Reset(w.settle)
				}
				pending[ev.Name] = time.Now()
				w.logger.Debug("archive activity", logging.String("path", ev.Name), logging.String("op", ev.Op.String()))
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, ev.Name)
			}

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "watch error", "watch_error",
				logging.Error(werr),
				logging.String(logging.FieldImpact, "some archive events may be missed until restart"),
			)
		}
	}
}

// collect removes and returns the archives that have settled. wait is the
// delay until the next pending archive settles, zero when none remain.
func (w *Watcher) collect(pending map[string]time.Time) ([]string, time.Duration) {
	now := time.Now()
	var ready []string
	var wait time.Duration
	for path, last := range pending {
		remaining := w.settle - now.Sub(last)
		if remaining > 0 {
			if wait == 0 || remaining < wait {
				wait = remaining
			}
			continue
		}
		delete(pending, path)
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		ready = append(ready, path)
	}
	sort.Strings(ready)
	return ready, wait
}
