// Package logs reads the application and per-course log files.
//
// Last returns the final lines of a file together with the byte offset to
// resume from; Follow streams lines appended after that offset until the
// context is cancelled.
package logs
