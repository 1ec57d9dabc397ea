// Package notifications pushes batch outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never branch on whether alerts are enabled. Messages are plain text
// with ntfy Title, Tags, and Priority headers.
package notifications
