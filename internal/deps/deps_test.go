package deps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected empty command status: %#v", results[2])
	}
}

func stubLookPath(t *testing.T, found map[string]string) {
	t.Helper()
	original := lookPath
	t.Cleanup(func() { lookPath = original })
	lookPath = func(name string) (string, error) {
		if path, ok := found[name]; ok {
			return path, nil
		}
		return "", errors.New("not found")
	}
}

func TestResolveMagick(t *testing.T) {
	cases := []struct {
		name       string
		configured string
		found      map[string]string
		want       string
		ok         bool
	}{
		{"v7", "", map[string]string{"magick": "/usr/bin/magick"}, "/usr/bin/magick", true},
		{"legacy fallback", "magick", map[string]string{"convert": "/usr/bin/convert"}, "/usr/bin/convert", true},
		{"custom missing", "/opt/im/magick", map[string]string{"convert": "/usr/bin/convert"}, "/opt/im/magick", false},
		{"none", "magick", nil, "magick", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stubLookPath(t, tc.found)
			got, ok := ResolveMagick(tc.configured)
			if got != tc.want || ok != tc.ok {
				t.Fatalf("ResolveMagick(%q) = %q, %v; want %q, %v", tc.configured, got, ok, tc.want, tc.ok)
			}
		})
	}
}
