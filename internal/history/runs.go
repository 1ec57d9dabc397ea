package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courseopt/internal/report"
	"courseopt/internal/transcode"
)

// Run is one persisted course run.
type Run struct {
	ID           int64
	RunID        string
	CourseID     string
	Archive      string
	SourceDigest string
	Status       report.Status
	FailureKind  report.Kind
	Error        string
	OutputPath   string
	ReportPath   string
	BytesIn      int64
	BytesOut     int64
	Removed      int
	Transcoded   int
	Warnings     int
	StartedAt    time.Time
	FinishedAt   time.Time
}

// FromReport flattens a course report into a history row.
func FromReport(c *report.Course, reportPath string) Run {
	return Run{
		RunID:        c.RunID,
		CourseID:     c.CourseID,
		Archive:      c.Archive,
		SourceDigest: c.SourceDigest,
		Status:       c.Status,
		FailureKind:  c.FailureKind,
		Error:        c.Error,
		OutputPath:   c.Output,
		ReportPath:   reportPath,
		BytesIn:      c.BytesIn,
		BytesOut:     c.BytesOut,
		Removed:      len(c.Removed),
		Transcoded:   c.ImageCounts()[transcode.StatusTranscoded],
		Warnings:     len(c.Warnings),
		StartedAt:    c.StartedAt,
		FinishedAt:   c.FinishedAt,
	}
}

const runColumns = `id, run_id, course_id, archive, source_digest, status, failure_kind,
	error_message, output_path, report_path, bytes_in, bytes_out, removed, transcoded,
	warnings, started_at, finished_at`

// Record inserts a run and assigns its ID.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if run.RunID == "" || run.CourseID == "" {
		return errors.New("history: run id and course id are required")
	}
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `INSERT INTO runs (
			run_id, course_id, archive, source_digest, status, failure_kind, error_message,
			output_path, report_path, bytes_in, bytes_out, removed, transcoded, warnings,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CourseID, run.Archive, run.SourceDigest, string(run.Status),
			string(run.FailureKind), run.Error, run.OutputPath, run.ReportPath,
			run.BytesIn, run.BytesOut, run.Removed, run.Transcoded, run.Warnings,
			formatTime(run.StartedAt), formatTime(run.FinishedAt),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// LastSucceeded returns the newest successful run of a course, or nil.
func (s *Store) LastSucceeded(ctx context.Context, courseID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE course_id = ? AND status = ?
		ORDER BY finished_at DESC, id DESC LIMIT 1`,
		courseID, string(report.StatusSucceeded))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// Unchanged reports whether the course last succeeded with the same source
// digest. The caller still checks that the output archive exists.
func (s *Store) Unchanged(ctx context.Context, courseID, digest string) (*Run, bool, error) {
	if digest == "" {
		return nil, false, nil
	}
	last, err := s.LastSucceeded(ctx, courseID)
	if err != nil || last == nil {
		return last, false, err
	}
	return last, last.SourceDigest == digest, nil
}

// Recent lists the newest runs, optionally for one course.
func (s *Store) Recent(ctx context.Context, courseID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if courseID != "" {
		query += ` WHERE course_id = ?`
		args = append(args, courseID)
	}
	query += ` ORDER BY finished_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Prune removes runs that finished before cutoff and returns how many.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, formatTime(cutoff))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run               Run
		status, kind      string
		started, finished string
	)
	if err := row.Scan(
		&run.ID, &run.RunID, &run.CourseID, &run.Archive, &run.SourceDigest, &status, &kind,
		&run.Error, &run.OutputPath, &run.ReportPath, &run.BytesIn, &run.BytesOut,
		&run.Removed, &run.Transcoded, &run.Warnings, &started, &finished,
	); err != nil {
		return nil, err
	}
	run.Status = report.Status(status)
	run.FailureKind = report.Kind(kind)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}

// timeLayout keeps a fixed width so stored values sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
