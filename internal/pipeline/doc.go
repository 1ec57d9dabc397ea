// Package pipeline runs one course archive through extraction, reference
// scanning, reconciliation, image transcoding and packaging.
//
// A run owns its work directory, its course log and its report. Steps run
// strictly in order; the first fatal error moves the course to the failed
// state, and the report is written whether or not the run succeeded. The
// work directory is cleared before extraction so re-running a course after a
// crash or failure is always safe.
package pipeline
