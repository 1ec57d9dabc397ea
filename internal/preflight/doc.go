// Package preflight provides readiness checks for the directories and
// external tools courseopt depends on.
//
// The batch runner calls RunAll once before processing and refuses to start
// when a required check fails. The CLI "check" command prints every result.
package preflight
