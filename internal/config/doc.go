// Package config loads, normalizes, and validates courseopt configuration data.
//
// It supplies repository defaults that mirror the classic directory layout
// (./source-courses, ./optimized-courses, ./tmp, ./logs), expands user paths
// (including tilde shortcuts), reads TOML files, and honours COURSEOPT_*
// environment fallbacks. The Config type centralizes every knob the batch
// runner and CLI need.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical enum values, and clear validation errors.
package config
