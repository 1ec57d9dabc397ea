package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"courseopt/internal/archive"
	"courseopt/internal/course"
	"courseopt/internal/imaging"
	"courseopt/internal/logging"
	"courseopt/internal/manifest"
	"courseopt/internal/reconcile"
	"courseopt/internal/report"
	"courseopt/internal/scanner"
	"courseopt/internal/services"
	"courseopt/internal/transcode"
)

type scanState struct {
	tree    *course.Tree
	man     *manifest.Manifest
	listing course.StaticListing
	refs    scanner.Result
}

type reconcileState struct {
	man       *manifest.Manifest
	remaining []string
}

func (r *run) extract(ctx context.Context) (*course.Tree, error) {
	res, err := archive.Extract(ctx, r.archive, r.workDir)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extract", "unpack", filepath.Base(r.archive), err)
	}
	for _, name := range res.Skipped {
		r.logger.Debug("archive entry skipped",
			logging.String("entry", name),
			logging.String(logging.FieldEventType, "entry_skipped"),
		)
	}
	tree, err := course.Locate(r.workDir)
	if err != nil {
		return nil, services.Wrap(services.ErrExtraction, "extract", "locate course root", "", err)
	}
	r.logger.Info("archive extracted",
		logging.Int("files", res.Files),
		logging.Int64("bytes", res.Bytes),
		logging.String("course_root", tree.Root),
	)
	return tree, nil
}

func (r *run) scan(ctx context.Context, tree *course.Tree) (scanState, error) {
	st := scanState{tree: tree}
	man, err := manifest.Load(tree.ManifestPath())
	if err != nil {
		return st, services.Wrap(services.ErrValidation, "scan", "load manifest", course.ManifestRelPath, err)
	}
	if !man.Exists() {
		logging.WarnWithContext(r.logger, "course has no asset manifest", "manifest_missing",
			logging.String("path", course.ManifestRelPath),
			logging.String(logging.FieldImpact, "static files are reconciled without manifest metadata"),
		)
	}
	listing, err := tree.ListStatic()
	if err != nil {
		return st, services.Wrap(services.ErrExtraction, "scan", "list static root", "", err)
	}
	cfg := r.p.cfg.Scan
	refs, err := scanner.Scan(ctx, tree, man, listing, scanner.Options{
		KeepLocked:   cfg.KeepLocked,
		KeepPatterns: cfg.KeepPatterns,
	}, r.logger)
	if err != nil {
		return st, err
	}
	for _, w := range refs.Warnings {
		r.rep.Add(report.KindParseWarning, w.Document, w.Message)
	}
	for _, m := range refs.Missing {
		r.rep.Add(report.KindReconcileWarning, m.Document, "reference to missing asset "+m.Asset)
	}
	r.rep.Documents = refs.Documents
	r.rep.StaticFiles = len(listing.Files)
	r.rep.Referenced = len(refs.InUse)

	st.man, st.listing, st.refs = man, listing, refs
	return st, nil
}

func (r *run) reconcile(ctx context.Context, st scanState) (reconcileState, error) {
	opts := reconcile.Options{
		Policy:   reconcile.Policy(r.p.cfg.Manifest.Policy),
		TrashDir: r.workDir + ".trash",
	}
	if !r.id.Fallback {
		opts.CourseKey = r.id.Key()
	}
	res, err := reconcile.Reconcile(ctx, st.tree, st.man, st.listing, st.refs, opts, r.logger)
	if err != nil {
		return reconcileState{}, err
	}
	for _, f := range res.DeleteFailures {
		r.rep.Add(report.KindDeleteFailure, f.Path, f.Error)
	}
	for _, w := range res.Warnings {
		path := w.Path
		if path == "" {
			path = w.Key
		}
		r.rep.Add(report.KindReconcileWarning, path, w.Message)
	}
	r.rep.Removed = res.Removed
	r.rep.BytesRemoved = res.BytesRemoved
	r.rep.Synthesized = res.Synthesized
	r.rep.Hidden = res.Hidden
	return reconcileState{man: res.Manifest, remaining: res.Remaining}, nil
}

func (r *run) transcode(ctx context.Context, st scanState, rec reconcileState) error {
	tc, err := transcode.New(st.tree, rec.man, r.p.encoder, rec.remaining, r.logger)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcode", "list documents", "", err)
	}
	for _, rel := range rec.remaining {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := tc.Transcode(ctx, transcode.Job{Rel: rel, Referrers: st.refs.Referrers[rel]})
		if out.Before.Format != imaging.FormatUnknown && out.Before.Format != "" {
			r.rep.Images = append(r.rep.Images, out)
		}
		if err == nil {
			continue
		}
		if services.IsFatal(err) {
			return err
		}
		r.rep.Add(report.KindTranscodeFailure, rel, out.Error)
	}
	return nil
}

func (r *run) pack(ctx context.Context) error {
	out := r.p.OutputPath(r.courseID)
	packagedAt := r.p.now().UTC()
	res, err := archive.Pack(ctx, r.workDir, out, packagedAt)
	if err != nil {
		return services.Wrap(services.ErrPackaging, "package", "write archive", out, err)
	}
	info, err := os.Stat(out)
	if err != nil {
		return services.Wrap(services.ErrPackaging, "package", "stat archive", out, err)
	}
	r.rep.Output = out
	r.rep.PackagedAt = packagedAt
	r.rep.BytesOut = info.Size()
	r.logger.Info("course packaged",
		logging.String("output", out),
		logging.Int("files", res.Files),
		logging.Int64("bytes", info.Size()),
	)
	return nil
}
