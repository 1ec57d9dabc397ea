package report

import (
	"time"

	"courseopt/internal/reconcile"
	"courseopt/internal/transcode"
)

// State is the last pipeline step a course reached.
type State string

const (
	StatePending    State = "pending"
	StateExtracted  State = "extracted"
	StateScanned    State = "scanned"
	StateReconciled State = "reconciled"
	StateTranscoded State = "transcoded"
	StatePackaged   State = "packaged"
	StateFailed     State = "failed"
)

// Status is the overall result of a course run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Issue is one accumulated warning or failure.
type Issue struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// StageTiming records how long one step took.
type StageTiming struct {
	Stage      State     `json:"stage" yaml:"stage"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMS int64     `json:"duration_ms" yaml:"duration_ms"`
}

// Course is the report of one course run. It is built by a single pipeline
// run and never shared between runs.
type Course struct {
	CourseID     string    `json:"course_id" yaml:"course_id"`
	CourseKey    string    `json:"course_key,omitempty" yaml:"course_key,omitempty"`
	RunID        string    `json:"run_id" yaml:"run_id"`
	Archive      string    `json:"archive" yaml:"archive"`
	Output       string    `json:"output,omitempty" yaml:"output,omitempty"`
	SourceDigest string    `json:"source_digest,omitempty" yaml:"source_digest,omitempty"`
	Status       Status    `json:"status" yaml:"status"`
	State        State     `json:"state" yaml:"state"`
	FailedAt     State     `json:"failed_at,omitempty" yaml:"failed_at,omitempty"`
	FailureKind  Kind      `json:"failure_kind,omitempty" yaml:"failure_kind,omitempty"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt    time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time `json:"finished_at" yaml:"finished_at"`
	PackagedAt   time.Time `json:"packaged_at,omitzero" yaml:"packaged_at,omitempty"`

	Stages []StageTiming `json:"stages" yaml:"stages"`

	Documents    int                 `json:"documents" yaml:"documents"`
	StaticFiles  int                 `json:"static_files" yaml:"static_files"`
	Referenced   int                 `json:"referenced" yaml:"referenced"`
	Removed      []reconcile.Removal `json:"removed,omitempty" yaml:"removed,omitempty"`
	BytesRemoved int64               `json:"bytes_removed" yaml:"bytes_removed"`
	Synthesized  []string            `json:"synthesized_entries,omitempty" yaml:"synthesized_entries,omitempty"`
	Hidden       []string            `json:"hidden_files,omitempty" yaml:"hidden_files,omitempty"`
	Images       []transcode.Outcome `json:"images,omitempty" yaml:"images,omitempty"`
	BytesIn      int64               `json:"bytes_in" yaml:"bytes_in"`
	BytesOut     int64               `json:"bytes_out" yaml:"bytes_out"`

	Warnings []Issue `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// New starts a report for one archive.
func New(courseID, runID, archive string, now time.Time) *Course {
	return &Course{
		CourseID:  courseID,
		RunID:     runID,
		Archive:   archive,
		State:     StatePending,
		StartedAt: now.UTC(),
	}
}

// Add records an accumulated issue.
func (c *Course) Add(kind Kind, path, message string) {
	c.Warnings = append(c.Warnings, Issue{Kind: kind, Path: path, Message: message})
}

// Advance moves the course to state and records the step timing.
func (c *Course) Advance(state State, started time.Time, now time.Time) {
	c.State = state
	c.Stages = append(c.Stages, StageTiming{
		Stage:      state,
		StartedAt:  started.UTC(),
		DurationMS: now.Sub(started).Milliseconds(),
	})
}

// Fail marks the course failed. The step that was running is kept in
// FailedAt; State becomes StateFailed.
func (c *Course) Fail(err error, now time.Time) {
	c.FailedAt = c.State
	c.State = StateFailed
	c.Status = StatusFailed
	c.FailureKind = KindOf(err)
	if err != nil {
		c.Error = err.Error()
	}
	c.FinishedAt = now.UTC()
}

// Succeed marks the course finished.
func (c *Course) Succeed(now time.Time) {
	c.Status = StatusSucceeded
	c.FinishedAt = now.UTC()
}

// Skip marks a course that was not processed because its source is unchanged.
func (c *Course) Skip(reason string, now time.Time) {
	c.Status = StatusSkipped
	c.Error = reason
	c.FinishedAt = now.UTC()
}

// Failed reports whether the run failed.
func (c *Course) Failed() bool { return c.Status == StatusFailed }

// Duration is the wall time of the run.
func (c *Course) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// Count returns how many accumulated issues have the given kind.
func (c *Course) Count(kind Kind) int {
	n := 0
	for _, w := range c.Warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// ImageCounts tallies image outcomes by status.
func (c *Course) ImageCounts() map[transcode.Status]int {
	counts := make(map[transcode.Status]int, 3)
	for _, img := range c.Images {
		counts[img.Status]++
	}
	return counts
}
