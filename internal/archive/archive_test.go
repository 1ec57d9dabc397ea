package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"course/course.xml":              "<course/>",
		"course/static/banner.jpg":       "jpeg-bytes",
		"course/policies/assets.json":    "{}",
		"course/html/intro chapter.html": "<img src=\"/static/banner.jpg\">",
	}
	writeTree(t, src, files)

	out := filepath.Join(t.TempDir(), "c-optimized.tar.gz")
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	res, err := Pack(context.Background(), src, out, stamp)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if res.Files != len(files) {
		t.Fatalf("packed %d files, want %d", res.Files, len(files))
	}

	dest := t.TempDir()
	ext, err := Extract(context.Background(), out, dest)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Files != len(files) {
		t.Fatalf("extracted %d files", ext.Files)
	}
	for rel, body := range files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if string(got) != body {
			t.Fatalf("%s = %q", rel, got)
		}
	}
}

func TestPackIsDeterministic(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"b.txt": "b", "a/c.txt": "c", "a.txt": "a"})
	stamp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	dir := t.TempDir()
	first := filepath.Join(dir, "one.tar.gz")
	second := filepath.Join(dir, "two.tar.gz")
	if _, err := Pack(context.Background(), src, first, stamp); err != nil {
		t.Fatal(err)
	}
	// Touch a file to prove host mtimes do not leak into the archive.
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(src, "b.txt"), later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := Pack(context.Background(), src, second, stamp); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Fatal("expected byte-identical archives")
	}
}

func buildArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(t.TempDir(), "in.tar.gz")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExtractRejectsTraversal(t *testing.T) {
	p := buildArchive(t, map[string]string{"../evil.txt": "x"})
	_, err := Extract(context.Background(), p, t.TempDir())
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
}

func TestExtractRejectsCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.tar.gz")
	if err := os.WriteFile(p, []byte("not a gzip stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(context.Background(), p, t.TempDir()); err == nil {
		t.Fatal("expected error for corrupt archive")
	}
}

func TestExtractHonoursCancellation(t *testing.T) {
	p := buildArchive(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Extract(ctx, p, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
