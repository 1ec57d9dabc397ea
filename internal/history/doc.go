// Package history persists one row per course run in a SQLite database so
// batch invocations can skip archives whose content has not changed since the
// last successful run and operators can list recent outcomes.
package history
