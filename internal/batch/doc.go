// Package batch discovers course archives and runs them through the pipeline
// with bounded parallelism, either once or continuously as new archives land
// in the source directory.
package batch
