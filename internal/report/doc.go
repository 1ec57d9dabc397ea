// Package report holds the per-course report value produced by one pipeline
// run, the failure taxonomy used to classify errors, and the writers that
// persist reports next to the course logs and summarize a batch as a table.
package report
