// Package transcode applies the image policy to files of the static root.
//
// Every write goes through a temporary sibling that is verified before it
// replaces anything. When the output format changes the file name, the new
// file is committed first, then every document and the manifest are rewritten
// to the new name and re-checked, and only then is the old file removed. A
// failure in that chain is fatal for the course because a dangling reference
// is worse than an unoptimized image. Any other per-image failure leaves the
// original untouched.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"courseopt/internal/course"
	"courseopt/internal/fileutil"
	"courseopt/internal/imaging"
	"courseopt/internal/logging"
	"courseopt/internal/manifest"
	"courseopt/internal/scanner"
	"courseopt/internal/services"
	"courseopt/internal/textutil"
)

var writeFileAtomic = fileutil.WriteFileAtomic

// Status of one image.
type Status string

const (
	StatusTranscoded  Status = "transcoded"
	StatusPassThrough Status = "passthrough"
	StatusFailed      Status = "failed"
)

// Job names one static file to process.
type Job struct {
	// Rel is the static-relative path as listed on disk.
	Rel string
	// Referrers are document ids known to mention the file.
	Referrers []string
}

// Outcome reports what happened to one image.
type Outcome struct {
	Path          string                  `json:"path" yaml:"path"`
	NewPath       string                  `json:"new_path,omitempty" yaml:"new_path,omitempty"`
	Status        Status                  `json:"status" yaml:"status"`
	Encoder       string                  `json:"encoder,omitempty" yaml:"encoder,omitempty"`
	Before        imaging.Asset           `json:"before" yaml:"before"`
	After         *imaging.Asset          `json:"after,omitempty" yaml:"after,omitempty"`
	Result        imaging.TransformResult `json:"-" yaml:"-"`
	Digest        string                  `json:"digest,omitempty" yaml:"digest,omitempty"`
	RewrittenDocs []string                `json:"rewritten_docs,omitempty" yaml:"rewritten_docs,omitempty"`
	Error         string                  `json:"error,omitempty" yaml:"error,omitempty"`
	Warning       string                  `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// Renamed reports whether the file name changed.
func (o Outcome) Renamed() bool { return o.NewPath != "" && o.NewPath != o.Path }

// Transcoder processes the images of one course tree sequentially.
type Transcoder struct {
	tree    *course.Tree
	man     *manifest.Manifest
	encoder imaging.Encoder
	logger  *slog.Logger
	docs    []string
	names   map[string][]string
}

// New constructs a Transcoder. files is the static listing after
// reconciliation; it is used to refuse renames whose bare name is shared by
// another file.
func New(tree *course.Tree, man *manifest.Manifest, encoder imaging.Encoder, files []string, logger *slog.Logger) (*Transcoder, error) {
	all, err := tree.Documents()
	if err != nil {
		return nil, err
	}
	docs := make([]string, 0, len(all))
	for _, id := range all {
		if scanner.IsDocument(id) {
			docs = append(docs, id)
		}
	}
	names := make(map[string][]string, len(files))
	for _, rel := range files {
		base := strings.ToLower(path.Base(rel))
		names[base] = append(names[base], rel)
	}
	return &Transcoder{
		tree:    tree,
		man:     man,
		encoder: encoder,
		logger:  logging.NewComponentLogger(logger, "transcode"),
		docs:    docs,
		names:   names,
	}, nil
}

// Transcode processes one image. A returned error wrapping
// services.ErrTranscode is a per-image failure; any other error is fatal for
// the course.
func (t *Transcoder) Transcode(ctx context.Context, job Job) (Outcome, error) {
	out := Outcome{Path: job.Rel}
	src := t.tree.StaticPath(job.Rel)

	before, probeErr := imaging.Probe(src)
	out.Before = before
	if probeErr != nil {
		if !imaging.Transcodable(before.Format) {
			out.Status = StatusPassThrough
			return out, nil
		}
		return t.fail(out, "probe", probeErr)
	}
	result := imaging.Decide(before.Width, before.Format)
	out.Result = result
	if !result.Transcode {
		out.Status = StatusPassThrough
		return out, nil
	}
	out.Encoder = t.encoder.Name()

	newRel := targetPath(job.Rel)
	renamed := newRel != job.Rel
	oldKey, hasKey := t.man.KeyFor(job.Rel)
	newKey := ""
	if renamed {
		if _, err := os.Stat(t.tree.StaticPath(newRel)); err == nil {
			return t.fail(out, "rename", fmt.Errorf("target %s already exists", newRel))
		}
		if others := t.names[strings.ToLower(path.Base(job.Rel))]; len(others) > 1 {
			return t.fail(out, "rename", fmt.Errorf("file name %s is shared by %d files", path.Base(job.Rel), len(others)))
		}
		if hasKey {
			newKey = targetPath(oldKey)
			if newKey != oldKey && t.man.Has(newKey) {
				return t.fail(out, "rename", fmt.Errorf("manifest key %s already present", newKey))
			}
		}
	}

	tmp := filepath.Join(filepath.Dir(src), "."+filepath.Base(src)+".courseopt-tmp")
	_ = os.Remove(tmp)
	if err := t.encoder.Encode(ctx, src, tmp, result); err != nil {
		_ = os.Remove(tmp)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return t.fail(out, "encode", err)
	}
	after, digest, err := verify(tmp, before, result)
	if err != nil {
		_ = os.Remove(tmp)
		return t.fail(out, "verify", err)
	}
	out.Digest = digest

	if !renamed {
		if err := os.Rename(tmp, src); err != nil {
			_ = os.Remove(tmp)
			return t.fail(out, "commit", err)
		}
		after.Path = src
		out.After = &after
		out.Status = StatusTranscoded
		t.logOutcome(out)
		return out, nil
	}

	dst := t.tree.StaticPath(newRel)
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return t.fail(out, "commit", err)
	}
	after.Path = dst
	out.After = &after
	out.NewPath = newRel

	rewritten, err := t.propagate(ctx, job, newRel)
	out.RewrittenDocs = rewritten
	if err == nil && hasKey {
		if err = t.man.Rename(oldKey, newKey, path.Base(job.Rel), path.Base(newRel)); err == nil {
			err = t.man.Save()
		}
	}
	if err == nil {
		err = t.verifyNoReferences(path.Base(job.Rel))
	}
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		return out, services.Wrap(services.ErrReferenceRewrite, "transcode", "rename "+job.Rel, "references not fully rewritten", err)
	}

	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		out.Warning = fmt.Sprintf("old file not removed: %v", err)
		logging.WarnWithContext(t.logger, "old image not removed after rename", "rename_cleanup_failed",
			logging.String(logging.FieldAsset, job.Rel),
			logging.Error(err),
			logging.String(logging.FieldImpact, "unreferenced original stays in the package"),
		)
	}
	out.Status = StatusTranscoded
	t.logOutcome(out)
	return out, nil
}

func (t *Transcoder) fail(out Outcome, step string, err error) (Outcome, error) {
	out.Status = StatusFailed
	out.Error = err.Error()
	logging.WarnWithContext(t.logger, "image left unchanged", "transcode_failure",
		logging.String(logging.FieldAsset, out.Path),
		logging.String("step", step),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "inspect the file; it may be corrupt or use an unsupported color space"),
		logging.String(logging.FieldImpact, "original image kept unoptimized"),
	)
	return out, services.Wrap(services.ErrTranscode, "transcode", step, out.Path, err)
}

func (t *Transcoder) logOutcome(out Outcome) {
	attrs := []logging.Attr{
		logging.String(logging.FieldAsset, out.Path),
		logging.String(logging.FieldEventType, "image_transcoded"),
		logging.String("encoder", out.Encoder),
		logging.Int64("bytes_before", out.Before.Bytes),
		logging.Int("width_before", out.Before.Width),
	}
	if out.After != nil {
		attrs = append(attrs,
			logging.Int64("bytes_after", out.After.Bytes),
			logging.Int("width_after", out.After.Width),
		)
	}
	if out.Renamed() {
		attrs = append(attrs,
			logging.String("new_path", out.NewPath),
			logging.Int("rewritten_docs", len(out.RewrittenDocs)),
		)
	}
	t.logger.Info("image transcoded", logging.Args(attrs...)...)
}

// targetPath swaps the extension for .jpg unless it already names JPEG.
func targetPath(rel string) string {
	ext := path.Ext(rel)
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return rel
	}
	return strings.TrimSuffix(rel, ext) + imaging.FormatJPEG.Extension()
}

func verify(tmp string, before imaging.Asset, result imaging.TransformResult) (imaging.Asset, string, error) {
	after, err := imaging.Probe(tmp)
	if err != nil {
		return after, "", err
	}
	if after.Bytes == 0 {
		return after, "", errors.New("encoder produced an empty file")
	}
	if after.Format != imaging.FormatJPEG {
		return after, "", fmt.Errorf("encoder produced %s, want jpeg", after.Format)
	}
	if before.Width > 0 && after.Width != result.TargetWidth {
		return after, "", fmt.Errorf("encoder produced width %d, want %d", after.Width, result.TargetWidth)
	}
	digest, err := fileutil.HashFile(tmp)
	if err != nil {
		return after, "", err
	}
	return after, digest, nil
}

type namePair struct{ old, new string }

// nameForms lists the spellings under which content may embed a file name.
func nameForms(oldBase, newBase string) []namePair {
	pairs := []namePair{{oldBase, newBase}}
	if esc := url.PathEscape(oldBase); esc != oldBase {
		pairs = append(pairs, namePair{esc, url.PathEscape(newBase)})
	}
	if flat := strings.ReplaceAll(oldBase, "@", "_"); flat != oldBase {
		pairs = append(pairs, namePair{flat, strings.ReplaceAll(newBase, "@", "_")})
	}
	return pairs
}

// propagate rewrites every document that mentions the old name.
func (t *Transcoder) propagate(ctx context.Context, job Job, newRel string) ([]string, error) {
	forms := nameForms(path.Base(job.Rel), path.Base(newRel))
	targets := make(map[string]struct{}, len(job.Referrers))
	for _, id := range job.Referrers {
		targets[id] = struct{}{}
	}
	for _, id := range t.docs {
		targets[id] = struct{}{}
	}
	ids := make([]string, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rewritten []string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return rewritten, err
		}
		p := t.tree.DocPath(id)
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return rewritten, fmt.Errorf("read %s: %w", id, err)
		}
		content := string(data)
		total := 0
		for _, f := range forms {
			var n int
			content, n = textutil.ReplaceFold(content, f.old, f.new)
			total += n
		}
		if total == 0 {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return rewritten, err
		}
		if err := writeFileAtomic(p, []byte(content), info.Mode().Perm()); err != nil {
			return rewritten, fmt.Errorf("rewrite %s: %w", id, err)
		}
		rewritten = append(rewritten, id)
		t.logger.Debug("references rewritten",
			logging.String("document", id),
			logging.Int("replacements", total),
			logging.String(logging.FieldEventType, "reference_rewritten"),
		)
	}
	return rewritten, nil
}

// verifyNoReferences re-reads every document and fails if the old name
// survived in any spelling.
func (t *Transcoder) verifyNoReferences(oldBase string) error {
	forms := nameForms(oldBase, oldBase)
	for _, id := range t.docs {
		data, err := os.ReadFile(t.tree.DocPath(id))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("re-check %s: %w", id, err)
		}
		for _, f := range forms {
			if textutil.ContainsFold(string(data), f.old) {
				return fmt.Errorf("document %s still references %s", id, f.old)
			}
		}
	}
	return nil
}
