// Package main hosts the courseopt CLI.
//
// The Cobra command tree resolves configuration, builds the application
// logger, and hands work to the batch and pipeline packages. Commands stay
// thin: behavior lives in internal packages and is surfaced here through
// flags and rendered tables.
package main
