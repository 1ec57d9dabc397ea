package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"courseopt/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrPackaging, "package", "write archive", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrPackaging) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"package", "write archive", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transcode", services.Wrap(services.ErrTranscode, "transcode", "encode", "corrupt", nil), false},
		{"rewrite", services.Wrap(services.ErrReferenceRewrite, "transcode", "rewrite", "", nil), true},
		{"extraction", services.Wrap(services.ErrExtraction, "extract", "", "", nil), true},
		{"plain", errors.New("io"), true},
	}
	for _, tc := range cases {
		if got := services.IsFatal(tc.err); got != tc.want {
			t.Fatalf("%s: IsFatal = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	if !services.IsTimeout(fmt.Errorf("scan: %w", context.DeadlineExceeded)) {
		t.Fatal("expected deadline exceeded to count as timeout")
	}
	if !services.IsTimeout(services.Wrap(services.ErrTimeout, "pipeline", "", "", nil)) {
		t.Fatal("expected timeout marker to count as timeout")
	}
	if services.IsTimeout(context.Canceled) {
		t.Fatal("cancellation is not a timeout")
	}
}
