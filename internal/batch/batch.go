package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"courseopt/internal/logging"
	"courseopt/internal/report"
)

// ErrCoursesFailed is returned when at least one course of a batch failed.
var ErrCoursesFailed = errors.New("courses failed")

// Processor runs one course archive.
type Processor interface {
	Run(ctx context.Context, archivePath string) *report.Course
}

// IsArchive reports whether name looks like a course export.
func IsArchive(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	lower := strings.ToLower(base)
	return strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz")
}

// Discover lists the course archives directly inside dir, sorted by name.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}
	var archives []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsArchive(entry.Name()) {
			continue
		}
		archives = append(archives, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(archives)
	return archives, nil
}

// Runner processes archives with at most Workers courses in flight.
type Runner struct {
	proc    Processor
	workers int
	logger  *slog.Logger
}

// NewRunner constructs a Runner. workers below one means one.
func NewRunner(proc Processor, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{proc: proc, workers: workers, logger: logging.NewComponentLogger(logger, "batch")}
}

// Run processes every archive and returns the reports in input order. A
// failing course never stops the others; cancellation of ctx fails the
// courses still running and skips the ones not yet started.
func (r *Runner) Run(ctx context.Context, archives []string) report.Batch {
	results := make(report.Batch, len(archives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	r.logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("courses", len(archives)),
		logging.Int("workers", r.workers),
	)
	for i, path := range archives {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = r.proc.Run(gctx, path)
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, rep := range results {
		if rep != nil {
			out = append(out, rep)
		}
	}
	r.logger.Info("batch finished",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("courses", len(out)),
		logging.Int("failed", out.Failed()),
		logging.Int("not_started", len(archives)-len(out)),
	)
	return out
}

// Err returns an error wrapping ErrCoursesFailed when any course failed.
func Err(b report.Batch) error {
	if n := b.Failed(); n > 0 {
		return fmt.Errorf("%w: %d of %d", ErrCoursesFailed, n, len(b))
	}
	return nil
}
