// Package reconcile aligns the static root and the asset manifest with the
// set of assets content actually uses.
//
// Orphans are first moved into a trash directory outside the course tree.
// The new manifest is computed from what actually moved, written atomically,
// and only then is the trash discarded. If the manifest cannot be written the
// orphans are moved back, so the tree never holds a manifest that disagrees
// with the files next to it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"courseopt/internal/course"
	"courseopt/internal/fileutil"
	"courseopt/internal/logging"
	"courseopt/internal/manifest"
	"courseopt/internal/scanner"
	"courseopt/internal/services"
)

var moveFile = fileutil.MoveFile

// Policy decides how files without a manifest entry are handled.
type Policy string

const (
	// PolicyLenient tolerates untracked files and only reports them.
	PolicyLenient Policy = "lenient"
	// PolicyStrict requires one entry per file and synthesizes missing ones.
	PolicyStrict Policy = "strict"
)

// Options configure one reconciliation.
type Options struct {
	Policy Policy
	// TrashDir receives orphans until the manifest is committed. It must be
	// on the same filesystem as the course tree and outside of it.
	TrashDir string
	// CourseKey is used when synthesizing manifest filenames.
	CourseKey string
}

// Removal records one deleted orphan.
type Removal struct {
	Path        string `json:"path" yaml:"path"`
	Bytes       int64  `json:"bytes" yaml:"bytes"`
	ManifestKey string `json:"manifest_key,omitempty" yaml:"manifest_key,omitempty"`
}

// DeleteFailure records an orphan that could not be removed. It keeps its
// manifest entry.
type DeleteFailure struct {
	Path  string `json:"path" yaml:"path"`
	Error string `json:"error" yaml:"error"`
}

// Warning records a manifest and file mismatch.
type Warning struct {
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Key     string `json:"key,omitempty" yaml:"key,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// Result is the outcome of one reconciliation.
type Result struct {
	Removed        []Removal
	DeleteFailures []DeleteFailure
	Warnings       []Warning
	Synthesized    []string
	Hidden         []string
	Kept           int
	BytesRemoved   int64
	// Manifest is the committed manifest; callers continue with it.
	Manifest *manifest.Manifest
	// Remaining is the static listing after removal.
	Remaining []string
}

// Reconcile deletes orphans and rewrites the manifest to match.
func Reconcile(ctx context.Context, tree *course.Tree, man *manifest.Manifest, listing course.StaticListing, refs scanner.Result, opts Options, logger *slog.Logger) (Result, error) {
	logger = logging.NewComponentLogger(logger, "reconcile")
	result := Result{Hidden: append([]string(nil), listing.Hidden...)}
	if opts.Policy == "" {
		opts.Policy = PolicyLenient
	}
	trash := opts.TrashDir
	if trash == "" {
		trash = tree.WorkDir + ".trash"
	}
	if err := os.RemoveAll(trash); err != nil {
		return result, services.Wrap(services.ErrManifestWrite, "reconcile", "prepare trash", trash, err)
	}

	for _, rel := range listing.Hidden {
		logger.Debug("hidden static file ignored",
			logging.String(logging.FieldAsset, rel),
			logging.String(logging.FieldEventType, "hidden_ignored"),
		)
	}

	var moved []Removal
	remaining := make([]string, 0, len(listing.Files))
	for _, rel := range listing.Files {
		if refs.Uses(rel) {
			remaining = append(remaining, rel)
			continue
		}
		if err := ctx.Err(); err != nil {
			restore(tree, trash, moved, logger)
			return result, err
		}
		src := tree.StaticPath(rel)
		var size int64
		if info, err := os.Stat(src); err == nil {
			size = info.Size()
		}
		if err := moveFile(src, filepath.Join(trash, filepath.FromSlash(rel))); err != nil {
			result.DeleteFailures = append(result.DeleteFailures, DeleteFailure{Path: rel, Error: err.Error()})
			remaining = append(remaining, rel)
			logging.WarnWithContext(logger, "orphan removal failed; file kept", "delete_failure",
				logging.String(logging.FieldAsset, rel),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the extracted course tree"),
				logging.String(logging.FieldImpact, "unused asset stays in the optimized package"),
			)
			continue
		}
		moved = append(moved, Removal{Path: rel, Bytes: size})
	}

	next := man.Clone()
	for i := range moved {
		if key, ok := man.KeyFor(moved[i].Path); ok {
			next.Delete(key)
			moved[i].ManifestKey = key
		}
	}
	result.Warnings, result.Synthesized = alignManifest(next, remaining, opts)

	if next.Exists() || len(result.Synthesized) > 0 {
		if err := next.Save(); err != nil {
			restore(tree, trash, moved, logger)
			return result, services.Wrap(services.ErrManifestWrite, "reconcile", "save manifest", man.Path(), err)
		}
	}

	if err := os.RemoveAll(trash); err != nil {
		logging.WarnWithContext(logger, "trash directory not removed", "trash_cleanup_failed",
			logging.String("path", trash),
			logging.Error(err),
			logging.String(logging.FieldImpact, "temporary disk space not reclaimed until the next run"),
		)
	}

	for _, r := range moved {
		result.BytesRemoved += r.Bytes
		logger.Info("orphan removed",
			logging.String(logging.FieldAsset, r.Path),
			logging.Int64("bytes", r.Bytes),
			logging.String("manifest_key", r.ManifestKey),
			logging.String(logging.FieldEventType, "orphan_removed"),
		)
	}
	for _, w := range result.Warnings {
		logging.WarnWithContext(logger, w.Message, "reconcile_warning",
			logging.String(logging.FieldAsset, w.Path),
			logging.String("manifest_key", w.Key),
			logging.String(logging.FieldImpact, "manifest and static root disagree for this asset"),
		)
	}

	result.Removed = moved
	result.Kept = len(remaining)
	result.Manifest = next
	result.Remaining = remaining
	logger.Info("reconciliation complete",
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.Int("removed", len(moved)),
		logging.Int("delete_failures", len(result.DeleteFailures)),
		logging.Int("kept", len(remaining)),
		logging.Int("manifest_entries", next.Len()),
	)
	return result, nil
}

// alignManifest drops entries without a file and handles files without an
// entry according to the policy.
func alignManifest(m *manifest.Manifest, files []string, opts Options) ([]Warning, []string) {
	var warnings []Warning
	var synthesized []string
	claimed := make(map[string]struct{}, len(files))
	var untracked []string
	for _, rel := range files {
		if key, ok := m.KeyFor(rel); ok {
			claimed[key] = struct{}{}
			continue
		}
		untracked = append(untracked, rel)
	}

	if m.Exists() || opts.Policy == PolicyStrict {
		for _, key := range m.Keys() {
			if _, ok := claimed[key]; ok {
				continue
			}
			m.Delete(key)
			warnings = append(warnings, Warning{Key: key, Message: "manifest entry has no file; entry dropped"})
		}
	}

	for _, rel := range untracked {
		if opts.Policy == PolicyStrict {
			m.Set(rel, manifest.Synthesize(rel, opts.CourseKey))
			synthesized = append(synthesized, rel)
			continue
		}
		if m.Exists() {
			warnings = append(warnings, Warning{Path: rel, Message: "file has no manifest entry"})
		}
	}
	sort.Strings(synthesized)
	return warnings, synthesized
}

func restore(tree *course.Tree, trash string, moved []Removal, logger *slog.Logger) {
	var errs []error
	for _, r := range moved {
		if err := moveFile(filepath.Join(trash, filepath.FromSlash(r.Path)), tree.StaticPath(r.Path)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Path, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("orphan restore incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "restore_failed"),
			logging.String(logging.FieldErrorHint, "the course run is discarded; re-run from the source archive"),
		)
	}
}
