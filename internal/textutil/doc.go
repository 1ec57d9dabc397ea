// Package textutil provides small string helpers shared across courseopt:
// identifier sanitization for file names derived from course ids and
// case-insensitive, boundary-aware token replacement used when references to
// renamed assets are rewritten.
package textutil
