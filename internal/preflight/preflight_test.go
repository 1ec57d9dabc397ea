package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courseopt/internal/config"
	"courseopt/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	r := CheckDirectoryAccess("Test", dir)
	if !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	r := CheckDirectoryAccess("Test", filepath.Join(t.TempDir(), "missing"))
	if r.Passed || !strings.Contains(r.Detail, "does not exist") {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := CheckDirectoryAccess("Test", file)
	if r.Passed || !strings.Contains(r.Detail, "not a directory") {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckFreeSpace("Free", dir, 1); !r.Passed {
		t.Fatalf("expected pass, got %+v", r)
	}
	if r := CheckFreeSpace("Free", dir, ^uint64(0)); r.Passed || !strings.Contains(r.Detail, "need") {
		t.Fatalf("expected failure, got %+v", r)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(nil); results != nil {
		t.Fatalf("expected nil, got %+v", results)
	}
}

func TestRunAll_NativeEncoderSkipsMagick(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(cfg)
	for _, r := range results {
		if r.Name == "ImageMagick" {
			t.Fatalf("native encoder must not require ImageMagick: %+v", r)
		}
		if strings.HasSuffix(r.Name, "directory") && !r.Passed {
			t.Fatalf("directory check failed: %+v", r)
		}
	}
}

func TestRunAll_MagickRequiredWhenSelected(t *testing.T) {
	cfg := testsupport.NewConfig(t, func(c *config.Config) {
		c.Imaging.Encoder = config.EncoderMagick
		c.Imaging.MagickBinary = "clearly-not-present-magick"
	})
	failed := Failed(RunAll(cfg))
	if len(failed) != 1 || failed[0].Name != "ImageMagick" {
		t.Fatalf("failed = %+v", failed)
	}

	cfg.Imaging.Encoder = config.EncoderAuto
	if failed := Failed(RunAll(cfg)); len(failed) != 0 {
		t.Fatalf("auto encoder treats ImageMagick as optional, failed = %+v", failed)
	}
}
