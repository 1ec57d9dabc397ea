package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"courseopt/internal/config"
	"courseopt/internal/courseid"
	"courseopt/internal/deps"
	"courseopt/internal/fileutil"
	"courseopt/internal/history"
	"courseopt/internal/imaging"
	"courseopt/internal/logging"
	"courseopt/internal/report"
	"courseopt/internal/services"
	"courseopt/internal/transcode"
)

// OutputSuffix is appended to the course id to name the optimized archive.
const OutputSuffix = "-optimized.tar.gz"

// Pipeline processes course archives with one shared configuration. Run is
// safe to call concurrently for different courses.
type Pipeline struct {
	cfg     *config.Config
	encoder imaging.Encoder
	history *history.Store
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithHistory records every run and enables skip-unchanged.
func WithHistory(store *history.Store) Option {
	return func(p *Pipeline) { p.history = store }
}

// WithEncoder overrides the encoder selected from the configuration.
func WithEncoder(enc imaging.Encoder) Option {
	return func(p *Pipeline) { p.encoder = enc }
}

// WithClock overrides the time source, which also stamps packaged entries.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New constructs a Pipeline.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.encoder == nil {
		binary, _ := deps.ResolveMagick(cfg.Imaging.MagickBinary)
		enc, err := imaging.NewEncoder(cfg.Imaging.Encoder, binary, logger)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "select encoder", "", err)
		}
		p.encoder = enc
	}
	return p, nil
}

// Encoder returns the encoder in use.
func (p *Pipeline) Encoder() imaging.Encoder { return p.encoder }

// OutputPath returns where the optimized archive of courseID is written.
func (p *Pipeline) OutputPath(courseID string) string {
	return filepath.Join(p.cfg.Paths.OptimizedDir, courseID+OutputSuffix)
}

// WorkDir returns the extraction directory of courseID.
func (p *Pipeline) WorkDir(courseID string) string {
	return filepath.Join(p.cfg.Paths.TmpDir, courseID)
}

// run carries the state of one course run.
type run struct {
	p        *Pipeline
	id       courseid.ID
	courseID string
	archive  string
	workDir  string
	rep      *report.Course
	logger   *slog.Logger
}

// Run processes one archive and returns its report. The report has already
// been written to the log directory when Run returns; a failed course is
// reported through the report status, never through a panic or exit.
func (p *Pipeline) Run(ctx context.Context, archivePath string) *report.Course {
	id := courseid.FromArchiveName(archivePath)
	courseID := id.String()
	runID := uuid.NewString()
	rep := report.New(courseID, runID, archivePath, p.now())
	if !id.Fallback {
		rep.CourseKey = id.Key()
	}

	// The lock is taken before the course log is opened so a second process
	// never truncates the log or report of a run in progress.
	if err := os.MkdirAll(p.cfg.Paths.TmpDir, 0o755); err != nil {
		return p.refuse(rep, services.Wrap(services.ErrTransient, "lock", "create tmp dir", p.cfg.Paths.TmpDir, err))
	}
	lock := flock.New(filepath.Join(p.cfg.Paths.TmpDir, courseID+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return p.refuse(rep, services.Wrap(services.ErrTransient, "lock", "acquire", lock.Path(), err))
	}
	if !locked {
		return p.refuse(rep, services.Wrap(services.ErrValidation, "lock", "acquire", "course is being processed by another process", nil))
	}
	defer func() { _ = lock.Unlock() }()

	logger, closer := p.courseLogger(courseID)
	defer closer.Close()

	ctx = services.WithCourseID(ctx, courseID)
	ctx = services.WithRequestID(ctx, runID)
	if timeout := p.cfg.CourseTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	r := &run{
		p:        p,
		id:       id,
		courseID: courseID,
		archive:  archivePath,
		workDir:  p.WorkDir(courseID),
		rep:      rep,
		logger:   logging.WithContext(ctx, logger),
	}
	if id.Fallback {
		logging.WarnWithContext(r.logger, "course id not parsed from archive name", "course_id_fallback",
			logging.String("archive", filepath.Base(archivePath)),
			logging.String(logging.FieldErrorHint, "name archives Org+Number+Run.tar.gz"),
			logging.String(logging.FieldImpact, "manifest entries are synthesized without an asset key"),
		)
	}
	r.logger.Info("course started",
		logging.String(logging.FieldEventType, "course_start"),
		logging.String("archive", archivePath),
		logging.String("encoder", p.encoder.Name()),
	)

	if err := r.execute(ctx); err != nil {
		r.fail(ctx, err)
	}
	r.cleanup()
	r.finish()
	return rep
}

// refuse fails a course that could not be locked. The log and report paths
// belong to whichever run holds the lock, so the outcome goes to the separate
// refusal report.
func (p *Pipeline) refuse(rep *report.Course, err error) *report.Course {
	rep.Fail(err, p.now())
	logging.ErrorWithContext(p.logger, "course not started", "course_locked",
		logging.String(logging.FieldCourseID, rep.CourseID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "wait for the other run or remove a stale lock file from the tmp directory"),
		logging.String(logging.FieldImpact, "course skipped in this batch"),
	)
	if path, werr := report.WriteRefused(rep, p.cfg.Paths.LogDir, p.cfg.Report.Format); werr != nil {
		logging.WarnWithContext(p.logger, "refusal report not written", "report_write_failed",
			logging.String(logging.FieldCourseID, rep.CourseID),
			logging.Error(werr),
			logging.String(logging.FieldImpact, "refusal only recorded in the application log"),
		)
	} else {
		p.logger.Info("refusal report written",
			logging.String(logging.FieldCourseID, rep.CourseID),
			logging.String("report", path),
		)
	}
	return rep
}

func (p *Pipeline) courseLogger(courseID string) (*slog.Logger, io.Closer) {
	logger, closer, err := logging.NewCourseLogger(p.logger, p.cfg.Paths.LogDir, courseID, p.cfg.Logging.Level)
	if err != nil {
		logging.WarnWithContext(p.logger, "course log unavailable", "course_log_failed",
			logging.String(logging.FieldCourseID, courseID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "course events only reach the application log"),
		)
		return p.logger.With(logging.String(logging.FieldCourseID, courseID)), io.NopCloser(nil)
	}
	return logger, closer
}

// execute walks the states in order.
func (r *run) execute(ctx context.Context) error {
	if err := r.prepare(ctx); err != nil {
		return err
	}
	if r.rep.Status == report.StatusSkipped {
		return nil
	}

	tree, err := step(r, ctx, report.StateExtracted, r.extract)
	if err != nil {
		return err
	}
	scan, err := step(r, ctx, report.StateScanned, func(ctx context.Context) (scanState, error) {
		return r.scan(ctx, tree)
	})
	if err != nil {
		return err
	}
	rec, err := step(r, ctx, report.StateReconciled, func(ctx context.Context) (reconcileState, error) {
		return r.reconcile(ctx, scan)
	})
	if err != nil {
		return err
	}
	if _, err := step(r, ctx, report.StateTranscoded, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.transcode(ctx, scan, rec)
	}); err != nil {
		return err
	}
	if _, err := step(r, ctx, report.StatePackaged, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.pack(ctx)
	}); err != nil {
		return err
	}
	r.rep.Succeed(r.p.now())
	return nil
}

// prepare hashes the source, applies skip-unchanged, and clears the work
// directory.
func (r *run) prepare(ctx context.Context) error {
	info, err := os.Stat(r.archive)
	if err != nil {
		return services.Wrap(services.ErrExtraction, "prepare", "stat archive", r.archive, err)
	}
	r.rep.BytesIn = info.Size()
	digest, err := fileutil.HashFile(r.archive)
	if err != nil {
		return services.Wrap(services.ErrExtraction, "prepare", "hash archive", r.archive, err)
	}
	r.rep.SourceDigest = digest

	if r.p.cfg.Workflow.SkipUnchanged && r.p.history != nil {
		last, same, err := r.p.history.Unchanged(ctx, r.courseID, digest)
		if err != nil {
			logging.WarnWithContext(r.logger, "history lookup failed", "history_lookup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "course is processed even if unchanged"),
			)
		} else if same {
			if _, statErr := os.Stat(last.OutputPath); statErr == nil {
				r.rep.Output = last.OutputPath
				r.rep.Skip(fmt.Sprintf("unchanged since run %s", last.RunID), r.p.now())
				r.logger.Info("course skipped; source unchanged",
					logging.String(logging.FieldEventType, "course_skipped"),
					logging.String("previous_run", last.RunID),
				)
				return nil
			}
		}
	}

	if err := os.RemoveAll(r.workDir); err != nil {
		return services.Wrap(services.ErrExtraction, "prepare", "clear work dir", r.workDir, err)
	}
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return services.Wrap(services.ErrExtraction, "prepare", "create work dir", r.workDir, err)
	}
	return nil
}

// step runs fn as the given state, logging and timing it.
func step[T any](r *run, ctx context.Context, state report.State, fn func(context.Context) (T, error)) (T, error) {
	started := r.p.now()
	stageCtx := services.WithStage(ctx, string(state))
	logger := logging.WithContext(stageCtx, r.logger)
	logger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))

	out, err := fn(stageCtx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return out, err
	}
	finished := r.p.now()
	r.rep.Advance(state, started, finished)
	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("stage_duration", finished.Sub(started)),
	)
	return out, nil
}

func (r *run) fail(ctx context.Context, err error) {
	if ctxErr := ctx.Err(); ctxErr != nil && !services.IsTimeout(err) && !errors.Is(err, context.Canceled) {
		err = services.Wrap(services.ErrTimeout, string(r.rep.State), "", "course deadline exceeded", errors.Join(ctxErr, err))
	}
	r.rep.Fail(err, r.p.now())
	logging.ErrorWithContext(r.logger, "course failed", "course_failed",
		logging.String("failure_kind", string(r.rep.FailureKind)),
		logging.String("failed_at", string(r.rep.FailedAt)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(r.rep.FailureKind)),
		logging.String(logging.FieldImpact, "no optimized archive produced for this course"),
	)
}

// cleanup removes the work directory unless a failed workspace is kept for
// inspection.
func (r *run) cleanup() {
	if r.rep.Failed() && r.p.cfg.Workflow.KeepFailedWorkspace {
		r.logger.Info("failed workspace kept", logging.String("path", r.workDir))
		return
	}
	for _, dir := range []string{r.workDir, r.workDir + ".trash"} {
		if err := os.RemoveAll(dir); err != nil {
			logging.WarnWithContext(r.logger, "work directory not removed", "cleanup_failed",
				logging.String("path", dir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "disk space not reclaimed until the next run"),
			)
		}
	}
}

// finish persists the report and the history row.
func (r *run) finish() {
	if r.rep.FinishedAt.IsZero() {
		r.rep.FinishedAt = r.p.now().UTC()
	}
	path, err := report.Write(r.rep, r.p.cfg.Paths.LogDir, r.p.cfg.Report.Format)
	if err != nil {
		logging.ErrorWithContext(r.logger, "report not written", "report_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "course outcome only available in the log"),
		)
	}
	if r.p.history != nil {
		row := history.FromReport(r.rep, path)
		if err := r.p.history.Record(context.Background(), &row); err != nil {
			logging.WarnWithContext(r.logger, "history not recorded", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "skip-unchanged cannot use this run"),
			)
		}
	}
	counts := r.rep.ImageCounts()
	r.logger.Info("course finished",
		logging.String(logging.FieldEventType, "course_complete"),
		logging.String("status", string(r.rep.Status)),
		logging.String("report", path),
		logging.Int("removed", len(r.rep.Removed)),
		logging.Int("transcoded", counts[transcode.StatusTranscoded]),
		logging.Int("transcode_failures", counts[transcode.StatusFailed]),
		logging.Int("warnings", len(r.rep.Warnings)),
		logging.Duration("duration", r.rep.Duration()),
	)
}

func hintFor(kind report.Kind) string {
	switch kind {
	case report.KindExtractionFailure:
		return "verify the archive is a complete tar.gz course export"
	case report.KindReferenceRewriteFailure:
		return "inspect the documents named in the log; the source archive is unchanged"
	case report.KindManifestWriteFailure:
		return "check free space and permissions in the temporary directory"
	case report.KindPackagingFailure:
		return "check free space and permissions in the optimized directory"
	case report.KindTimeout:
		return "raise workflow.course_timeout or split the course"
	default:
		return "see the course log for details"
	}
}
