// Package courseid derives the stable course identifier that names every
// per-course artifact (work directory, lock, log, report and output archive)
// from the input archive file name.
package courseid

import (
	"path/filepath"
	"strings"

	"courseopt/internal/textutil"
)

const keyPrefix = "course-v1:"

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar"}

// ID identifies one course package.
type ID struct {
	Org    string
	Number string
	Run    string
	// Fallback is set when the name did not carry org, number and run; the
	// identifier is then a sanitized form of the file stem.
	Fallback bool
	stem     string
}

// String renders the identifier used for file names: Org_Number_Run, or the
// sanitized stem for fallback identifiers.
func (id ID) String() string {
	if id.Fallback {
		return textutil.SanitizeIdentifier(id.stem)
	}
	return textutil.SanitizeIdentifier(id.Org) + "_" +
		textutil.SanitizeIdentifier(id.Number) + "_" +
		textutil.SanitizeIdentifier(id.Run)
}

// Key renders the platform course key (course-v1:Org+Number+Run). Fallback
// identifiers have no key.
func (id ID) Key() string {
	if id.Fallback {
		return ""
	}
	return keyPrefix + id.Org + "+" + id.Number + "+" + id.Run
}

// Stem strips directory and archive extensions from an archive path.
func Stem(archivePath string) string {
	base := filepath.Base(archivePath)
	lower := strings.ToLower(base)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return base[:len(base)-len(suffix)]
		}
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// FromArchiveName parses the course identifier embedded in an archive file
// name. Accepted shapes after an optional course-v1: prefix are Org+Number+Run,
// Org_Number_Run and Org.Number.Run; with more than three separators the
// first part is the org, the last the run, and the rest the number.
func FromArchiveName(archivePath string) ID {
	stem := strings.TrimSpace(Stem(archivePath))
	candidate := stem
	if len(candidate) >= len(keyPrefix) && strings.EqualFold(candidate[:len(keyPrefix)], keyPrefix) {
		candidate = candidate[len(keyPrefix):]
	}

	for _, sep := range []string{"+", "_", "."} {
		parts := strings.Split(candidate, sep)
		if len(parts) < 3 {
			continue
		}
		org := strings.TrimSpace(parts[0])
		run := strings.TrimSpace(parts[len(parts)-1])
		number := strings.TrimSpace(strings.Join(parts[1:len(parts)-1], sep))
		if org == "" || number == "" || run == "" {
			continue
		}
		return ID{Org: org, Number: number, Run: run, stem: stem}
	}
	return ID{Fallback: true, stem: stem}
}
