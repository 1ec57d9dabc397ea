package transcode

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"courseopt/internal/course"
	"courseopt/internal/imaging"
	"courseopt/internal/logging"
	"courseopt/internal/manifest"
	"courseopt/internal/services"
	"courseopt/internal/testsupport"
)

type env struct {
	tree *course.Tree
	man  *manifest.Manifest
	tc   *Transcoder
}

func newEnv(t *testing.T, files map[string][]byte) env {
	t.Helper()
	work := t.TempDir()
	testsupport.WriteTree(t, filepath.Join(work, "course"), files)
	tree, err := course.Locate(work)
	if err != nil {
		t.Fatal(err)
	}
	man, err := manifest.Load(tree.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	listing, err := tree.ListStatic()
	if err != nil {
		t.Fatal(err)
	}
	tc, err := New(tree, man, imaging.NewNative(), listing.Files, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return env{tree: tree, man: man, tc: tc}
}

func TestTranscodeRenamePropagation(t *testing.T) {
	e := newEnv(t, testsupport.ScenarioCourse(t))

	out, err := e.tc.Transcode(context.Background(), Job{Rel: "banner.png", Referrers: []string{"html/intro.html", "about/overview.html"}})
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if out.Status != StatusTranscoded || out.NewPath != "banner.jpg" || !out.Renamed() {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Before.Width != 2280 || out.After.Width != 1400 || out.After.Format != imaging.FormatJPEG {
		t.Fatalf("before/after = %+v / %+v", out.Before, out.After)
	}
	if _, err := os.Stat(e.tree.StaticPath("banner.png")); !os.IsNotExist(err) {
		t.Fatal("old file should be removed")
	}
	asset, err := imaging.Probe(e.tree.StaticPath("banner.jpg"))
	if err != nil || asset.Width != 1400 {
		t.Fatalf("new file = %+v, %v", asset, err)
	}

	wantDocs := []string{"about/overview.html", "html/intro.html", "policies/2024/policy.json"}
	if !reflect.DeepEqual(out.RewrittenDocs, wantDocs) {
		t.Fatalf("rewritten = %v", out.RewrittenDocs)
	}
	for _, id := range wantDocs {
		body := testsupport.ReadFile(t, e.tree.DocPath(id))
		if strings.Contains(body, "banner.png") || !strings.Contains(body, "banner.jpg") {
			t.Fatalf("%s not rewritten: %s", id, body)
		}
	}

	reloaded, err := manifest.Load(e.tree.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Has("banner.png") {
		t.Fatal("manifest still has old key")
	}
	entry, ok := reloaded.Entry("banner.jpg")
	if !ok || entry[manifest.FieldContentType] != "image/jpeg" || entry.DisplayName() != "banner.jpg" {
		t.Fatalf("manifest entry = %v", entry)
	}
}

func TestTranscodeInPlaceKeepsWidth(t *testing.T) {
	e := newEnv(t, testsupport.ScenarioCourse(t))
	original := testsupport.ReadFile(t, e.tree.StaticPath("dragtile.jpg"))

	out, err := e.tc.Transcode(context.Background(), Job{Rel: "dragtile.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Renamed() || out.After.Width != 300 || out.Before.Width != 300 {
		t.Fatalf("outcome = %+v", out)
	}
	if testsupport.ReadFile(t, e.tree.StaticPath("dragtile.jpg")) == original {
		t.Fatal("expected the file to be re-encoded")
	}
	if out.Digest == "" {
		t.Fatal("expected digest")
	}
	entries, _ := os.ReadDir(e.tree.StaticRoot())
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "courseopt-tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestTranscodeCorruptImageLeftUntouched(t *testing.T) {
	corrupt := []byte("\x89PNG\r\n\x1a\nthis is not really a png")
	e := newEnv(t, map[string][]byte{
		"html/a.html":       []byte(`<img src="/static/broken.png">`),
		"static/broken.png": corrupt,
	})
	out, err := e.tc.Transcode(context.Background(), Job{Rel: "broken.png"})
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if services.IsFatal(err) {
		t.Fatal("per-image failure must not be fatal")
	}
	if out.Status != StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	got, _ := os.ReadFile(e.tree.StaticPath("broken.png"))
	if !bytes.Equal(got, corrupt) {
		t.Fatal("original must be untouched")
	}
	if body := testsupport.ReadFile(t, e.tree.DocPath("html/a.html")); !strings.Contains(body, "broken.png") {
		t.Fatal("references must be untouched")
	}
}

func TestTranscodeNameCollision(t *testing.T) {
	e := newEnv(t, map[string][]byte{
		"html/a.html":     []byte(`<img src="/static/logo.png"><img src="/static/logo.jpg">`),
		"static/logo.png": testsupport.PNG(t, 20, 20),
		"static/logo.jpg": testsupport.JPEG(t, 20, 20),
	})
	_, err := e.tc.Transcode(context.Background(), Job{Rel: "logo.png"})
	if !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if _, err := os.Stat(e.tree.StaticPath("logo.png")); err != nil {
		t.Fatal("logo.png must remain")
	}
}

func TestTranscodePassThrough(t *testing.T) {
	e := newEnv(t, map[string][]byte{
		"static/anim.gif":  []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
		"static/icon.svg":  []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`),
		"static/notes.pdf": []byte("%PDF-1.4"),
	})
	for _, rel := range []string{"anim.gif", "icon.svg", "notes.pdf"} {
		out, err := e.tc.Transcode(context.Background(), Job{Rel: rel})
		if err != nil {
			t.Fatalf("%s: %v", rel, err)
		}
		if out.Status != StatusPassThrough {
			t.Fatalf("%s status = %s", rel, out.Status)
		}
	}
}

func TestTranscodeRewriteFailureIsFatal(t *testing.T) {
	e := newEnv(t, testsupport.ScenarioCourse(t))
	original := writeFileAtomic
	t.Cleanup(func() { writeFileAtomic = original })
	writeFileAtomic = func(path string, data []byte, perm os.FileMode) error {
		if strings.HasSuffix(path, "overview.html") {
			return errors.New("disk full")
		}
		return original(path, data, perm)
	}

	out, err := e.tc.Transcode(context.Background(), Job{Rel: "banner.png"})
	if !errors.Is(err, services.ErrReferenceRewrite) || !services.IsFatal(err) {
		t.Fatalf("expected fatal ErrReferenceRewrite, got %v", err)
	}
	if out.Status != StatusFailed {
		t.Fatalf("status = %s", out.Status)
	}
	if _, err := os.Stat(e.tree.StaticPath("banner.png")); err != nil {
		t.Fatal("old file must not be removed when propagation fails")
	}
}

func TestTargetPath(t *testing.T) {
	cases := map[string]string{
		"a.png":         "a.jpg",
		"img/b.PNG":     "img/b.jpg",
		"c.jpeg":        "c.jpeg",
		"d.JPG":         "d.JPG",
		"scan.tiff":     "scan.jpg",
		"iguana@52.bmp": "iguana@52.jpg",
	}
	for in, want := range cases {
		if got := targetPath(in); got != want {
			t.Errorf("targetPath(%q) = %q, want %q", in, got, want)
		}
	}
}
