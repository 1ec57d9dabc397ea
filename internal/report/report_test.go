package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courseopt/internal/imaging"
	"courseopt/internal/reconcile"
	"courseopt/internal/services"
	"courseopt/internal/transcode"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{services.Wrap(services.ErrExtraction, "extract", "open", "", errors.New("bad gzip")), KindExtractionFailure},
		{services.Wrap(services.ErrPackaging, "package", "write", "", nil), KindPackagingFailure},
		{services.Wrap(services.ErrReferenceRewrite, "transcode", "rename", "", nil), KindReferenceRewriteFailure},
		{services.Wrap(services.ErrManifestWrite, "reconcile", "save", "", nil), KindManifestWriteFailure},
		{services.Wrap(services.ErrTranscode, "transcode", "encode", "", nil), KindTranscodeFailure},
		{fmt.Errorf("scan: %w", context.DeadlineExceeded), KindTimeout},
		{services.Wrap(services.ErrExtraction, "extract", "", "", context.Canceled), KindTimeout},
		{errors.New("boom"), KindInternalFailure},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if KindTranscodeFailure.Fatal() || KindDeleteFailure.Fatal() {
		t.Fatal("accumulated kinds must not be fatal")
	}
	if !KindTimeout.Fatal() || !KindReferenceRewriteFailure.Fatal() {
		t.Fatal("timeout and rewrite failure must be fatal")
	}
}

func TestCourseLifecycle(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New("MITx_6.00x_2T2024", "run-1", "/src/a.tar.gz", start)
	c.Advance(StateExtracted, start, start.Add(2*time.Second))
	c.Advance(StateScanned, start.Add(2*time.Second), start.Add(3*time.Second))
	c.Fail(services.Wrap(services.ErrPackaging, "package", "", "", errors.New("disk full")), start.Add(4*time.Second))

	if c.State != StateFailed || c.FailedAt != StateScanned || c.FailureKind != KindPackagingFailure {
		t.Fatalf("course = %+v", c)
	}
	if len(c.Stages) != 2 || c.Stages[0].DurationMS != 2000 {
		t.Fatalf("stages = %+v", c.Stages)
	}
	if c.Duration() != 4*time.Second {
		t.Fatalf("duration = %v", c.Duration())
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New("MITx_6.00x_2T2024", "run-1", "a.tar.gz", now)
	c.Removed = []reconcile.Removal{{Path: "unused.png", Bytes: 120, ManifestKey: "unused.png"}}
	c.Images = []transcode.Outcome{{
		Path:    "banner.png",
		NewPath: "banner.jpg",
		Status:  transcode.StatusTranscoded,
		Before:  imaging.Asset{Format: imaging.FormatPNG, Width: 2280, Height: 60, Bytes: 4000},
		After:   &imaging.Asset{Format: imaging.FormatJPEG, Width: 1400, Height: 37, Bytes: 900, DPI: 72},
	}}
	c.Add(KindParseWarning, "html/bad.html", "invalid UTF-8")
	c.Succeed(now.Add(time.Second))

	for _, format := range []string{FormatJSON, FormatYAML} {
		path, err := Write(c, dir, format)
		if err != nil {
			t.Fatalf("Write(%s): %v", format, err)
		}
		if want := filepath.Join(dir, "MITx_6.00x_2T2024.report."+format); path != want {
			t.Fatalf("path = %s, want %s", path, want)
		}
		got, err := Read(path)
		if err != nil {
			t.Fatalf("Read(%s): %v", format, err)
		}
		if got.Status != StatusSucceeded || len(got.Images) != 1 || got.Images[0].After.Width != 1400 {
			t.Fatalf("%s roundtrip = %+v", format, got)
		}
		if got.Count(KindParseWarning) != 1 {
			t.Fatalf("%s warnings = %+v", format, got.Warnings)
		}
	}
}

func TestWriteRefusedKeepsReportPath(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New("MITx_6.00x_2T2024", "run-2", "a.tar.gz", now)
	c.Fail(errors.New("course is being processed by another process"), now)

	path, err := WriteRefused(c, dir, FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "MITx_6.00x_2T2024.refused.yaml"); path != want {
		t.Fatalf("path = %s, want %s", path, want)
	}
	if _, err := os.Stat(Path(dir, c.CourseID, FormatYAML)); !os.IsNotExist(err) {
		t.Fatal("refusal must not create the course report")
	}
	got, err := Read(path)
	if err != nil || !got.Failed() {
		t.Fatalf("Read = %+v, %v", got, err)
	}
}

func TestBatchSummary(t *testing.T) {
	now := time.Now()
	ok := New("A_B_C", "r1", "a.tar.gz", now)
	ok.BytesIn, ok.BytesOut = 2_000_000, 1_000_000
	ok.Images = []transcode.Outcome{{Status: transcode.StatusTranscoded}, {Status: transcode.StatusFailed}}
	ok.Succeed(now.Add(time.Second))
	bad := New("corrupt", "r2", "corrupt.tar.gz", now)
	bad.Fail(services.Wrap(services.ErrExtraction, "extract", "", "", nil), now)

	b := Batch{ok, bad}
	if b.Failed() != 1 {
		t.Fatalf("failed = %d", b.Failed())
	}
	out := b.Summary()
	for _, want := range []string{"A_B_C", "corrupt", "ExtractionFailure", "2 courses", "1 failed", "-50%"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
