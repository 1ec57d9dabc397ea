// Package scanner builds the set of static assets that course content
// actually uses.
//
// Every content document under the course root is parsed according to its
// format (markup, JSON, Markdown or plain text) and its string segments are
// matched against the static root: explicit /static/, c4x and asset-v1
// references, plus bare file names so templated or computed paths that still
// spell the name keep their asset alive. Text assets inside the static root
// contribute references only once they are themselves in use.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"courseopt/internal/course"
	"courseopt/internal/logging"
	"courseopt/internal/manifest"
)

// Options control manifest-derived usage.
type Options struct {
	// KeepLocked treats manifest entries marked locked as in use.
	KeepLocked bool
	// KeepPatterns are static-relative globs that are always in use.
	KeepPatterns []string
}

// Reference is one (document, asset) pair.
type Reference struct {
	Document string `json:"document" yaml:"document"`
	Asset    string `json:"asset" yaml:"asset"`
}

// Warning reports a document that could not be read or parsed. The document
// contributed no references.
type Warning struct {
	Document string `json:"document" yaml:"document"`
	Message  string `json:"message" yaml:"message"`
}

// Reason explains why an asset is considered in use.
type Reason string

const (
	ReasonContent Reason = "content"
	ReasonAsset   Reason = "asset"
	ReasonLocked  Reason = "locked"
	ReasonPattern Reason = "keep_pattern"
)

// Result is the outcome of one scan.
type Result struct {
	// InUse maps static-relative paths (as listed on disk) to the first
	// reason they were kept.
	InUse map[string]Reason
	// Referrers maps static-relative paths to the sorted ids of every
	// document that mentions them, reachable or not.
	Referrers map[string][]string
	// Missing lists explicit references that resolve to no static file.
	Missing   []Reference
	Warnings  []Warning
	Documents int
}

// Uses reports whether rel is in use.
func (r Result) Uses(rel string) bool {
	_, ok := r.InUse[rel]
	return ok
}

// Scanner extracts asset references from a course tree. It never writes.
type Scanner struct {
	opts   Options
	logger *slog.Logger
}

// New constructs a Scanner.
func New(opts Options, logger *slog.Logger) *Scanner {
	return &Scanner{opts: opts, logger: logging.NewComponentLogger(logger, "scanner")}
}

// Scan is shorthand for New(opts, logger).Scan.
func Scan(ctx context.Context, tree *course.Tree, man *manifest.Manifest, listing course.StaticListing, opts Options, logger *slog.Logger) (Result, error) {
	return New(opts, logger).Scan(ctx, tree, man, listing)
}

type docRefs struct {
	id   string
	hits map[string]struct{}
}

// Scan walks every content document of tree and resolves references against
// the files in listing.
func (s *Scanner) Scan(ctx context.Context, tree *course.Tree, man *manifest.Manifest, listing course.StaticListing) (Result, error) {
	result := Result{
		InUse:     make(map[string]Reason),
		Referrers: make(map[string][]string),
	}
	docs, err := tree.Documents()
	if err != nil {
		return result, err
	}

	idx := newIndex(listing.Files)
	staticDocs := make(map[string]docRefs)
	referrers := make(map[string]map[string]struct{})

	for _, id := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		format, ok := FormatFor(id)
		if !ok {
			continue
		}
		result.Documents++

		segments, err := readSegments(tree.DocPath(id), format)
		if err != nil {
			result.Warnings = append(result.Warnings, Warning{Document: id, Message: err.Error()})
			logging.WarnWithContext(s.logger, "document skipped; contributes no references", "parse_warning",
				logging.String("document", id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix or re-export the document"),
				logging.String(logging.FieldImpact, "assets referenced only here may be removed"),
			)
			continue
		}

		hits, missing := idx.match(segments)
		self, isStatic := course.StaticRel(id)
		if isStatic {
			delete(hits, self)
		}
		for rel := range hits {
			if referrers[rel] == nil {
				referrers[rel] = make(map[string]struct{})
			}
			referrers[rel][id] = struct{}{}
		}
		for _, miss := range missing {
			result.Missing = append(result.Missing, Reference{Document: id, Asset: miss})
		}

		if isStatic {
			staticDocs[self] = docRefs{id: id, hits: hits}
			continue
		}
		for rel := range hits {
			markInUse(result.InUse, rel, ReasonContent)
		}
	}

	s.applyManifest(result.InUse, man, listing.Files)
	s.applyPatterns(result.InUse, listing.Files)
	expandThroughAssets(result.InUse, staticDocs)

	for rel, set := range referrers {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		result.Referrers[rel] = ids
	}
	sort.Slice(result.Missing, func(i, j int) bool {
		if result.Missing[i].Document != result.Missing[j].Document {
			return result.Missing[i].Document < result.Missing[j].Document
		}
		return result.Missing[i].Asset < result.Missing[j].Asset
	})

	s.logger.Info("references collected",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int("documents", result.Documents),
		logging.Int("static_files", len(listing.Files)),
		logging.Int("in_use", len(result.InUse)),
		logging.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

func markInUse(inUse map[string]Reason, rel string, reason Reason) bool {
	if _, ok := inUse[rel]; ok {
		return false
	}
	inUse[rel] = reason
	return true
}

func (s *Scanner) applyManifest(inUse map[string]Reason, man *manifest.Manifest, files []string) {
	if man == nil || !s.opts.KeepLocked {
		return
	}
	for _, rel := range files {
		key, ok := man.KeyFor(rel)
		if !ok {
			continue
		}
		if entry, ok := man.Entry(key); ok && entry.Locked() {
			markInUse(inUse, rel, ReasonLocked)
		}
	}
}

func (s *Scanner) applyPatterns(inUse map[string]Reason, files []string) {
	if len(s.opts.KeepPatterns) == 0 {
		return
	}
	for _, rel := range files {
		lower := strings.ToLower(rel)
		for _, pattern := range s.opts.KeepPatterns {
			pattern = strings.ToLower(pattern)
			full, _ := path.Match(pattern, lower)
			base, _ := path.Match(pattern, path.Base(lower))
			if full || base {
				markInUse(inUse, rel, ReasonPattern)
				break
			}
		}
	}
}

// expandThroughAssets adds references made by in-use static text assets
// until nothing changes.
func expandThroughAssets(inUse map[string]Reason, staticDocs map[string]docRefs) {
	applied := make(map[string]bool, len(staticDocs))
	for changed := true; changed; {
		changed = false
		keys := make([]string, 0, len(staticDocs))
		for rel := range staticDocs {
			keys = append(keys, rel)
		}
		sort.Strings(keys)
		for _, rel := range keys {
			if applied[rel] {
				continue
			}
			if _, ok := inUse[rel]; !ok {
				continue
			}
			applied[rel] = true
			for hit := range staticDocs[rel].hits {
				if markInUse(inUse, hit, ReasonAsset) {
					changed = true
				}
			}
		}
	}
}

func readSegments(p string, format Format) ([]string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return extractStrings(format, data)
}
