// Package logging assembles the slog loggers used by courseopt.
//
// It owns the console and JSON handlers, the per-course log files that tee
// every line of a course run into <log_dir>/<course-id>.log, and retention
// pruning for old logs and reports. Context helpers tag lines with the course
// id, pipeline stage and run correlation id carried on the context.
package logging
