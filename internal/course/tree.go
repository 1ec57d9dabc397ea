// Package course models one extracted course package on disk.
package course

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"courseopt/internal/fileutil"
)

const (
	// StaticDirName is the asset folder under the course root.
	StaticDirName = "static"
	// ManifestRelPath is the manifest location relative to the course root.
	ManifestRelPath = "policies/assets.json"
)

// ErrNoCourseRoot reports an extraction directory that does not hold a course.
var ErrNoCourseRoot = errors.New("no course root found")

// Tree is the ownership root of one extracted course.
type Tree struct {
	// WorkDir is the extraction directory; packaging archives its contents.
	WorkDir string
	// Root is the course root, WorkDir itself or its single top-level folder.
	Root string
}

// StaticRoot holds the asset files.
func (t *Tree) StaticRoot() string { return filepath.Join(t.Root, StaticDirName) }

// ManifestPath is the absolute manifest location.
func (t *Tree) ManifestPath() string {
	return filepath.Join(t.Root, filepath.FromSlash(ManifestRelPath))
}

// StaticPath converts a slash-relative asset path to an absolute path.
func (t *Tree) StaticPath(rel string) string {
	return filepath.Join(t.StaticRoot(), filepath.FromSlash(rel))
}

// DocPath converts a slash-relative document id to an absolute path.
func (t *Tree) DocPath(docID string) string {
	return filepath.Join(t.Root, filepath.FromSlash(docID))
}

// DocID returns the slash-relative id of an absolute path under Root.
func (t *Tree) DocID(abs string) (string, error) {
	rel, err := filepath.Rel(t.Root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsManifest reports whether docID names the manifest.
func IsManifest(docID string) bool {
	return path.Clean(docID) == ManifestRelPath
}

// Locate finds the course root inside an extraction directory. Exports place
// the course either at the top level or inside one wrapper folder (usually
// "course/").
func Locate(workDir string) (*Tree, error) {
	if looksLikeCourse(workDir) {
		return &Tree{WorkDir: workDir, Root: workDir}, nil
	}
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return nil, fmt.Errorf("read extraction dir: %w", err)
	}
	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(workDir, entry.Name())
		if looksLikeCourse(dir) {
			candidates = append(candidates, dir)
		}
	}
	if len(candidates) != 1 {
		return nil, fmt.Errorf("%w in %s (%d candidates)", ErrNoCourseRoot, workDir, len(candidates))
	}
	return &Tree{WorkDir: workDir, Root: candidates[0]}, nil
}

func looksLikeCourse(dir string) bool {
	for _, marker := range []string{"course.xml", StaticDirName, "policies"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// StaticListing is the physical content of the static root.
type StaticListing struct {
	// Files are slash-relative paths of regular, non-hidden files, sorted.
	Files []string
	// Hidden are dot files that are ignored by reconciliation.
	Hidden []string
}

// ListStatic walks the static root. A missing static root yields an empty
// listing.
func (t *Tree) ListStatic() (StaticListing, error) {
	var listing StaticListing
	root := t.StaticRoot()
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return listing, nil
	}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if fileutil.IsHidden(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if fileutil.IsHidden(rel) {
			listing.Hidden = append(listing.Hidden, rel)
			return nil
		}
		listing.Files = append(listing.Files, rel)
		return nil
	})
	if err != nil {
		return StaticListing{}, fmt.Errorf("list static root: %w", err)
	}
	sort.Strings(listing.Files)
	sort.Strings(listing.Hidden)
	return listing, nil
}

// Documents returns the slash-relative ids of every non-hidden regular file
// under the course root, excluding the manifest. Static files are included;
// callers decide how to treat them.
func (t *Tree) Documents() ([]string, error) {
	var docs []string
	err := filepath.WalkDir(t.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == t.Root {
			return nil
		}
		id, err := t.DocID(p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if fileutil.IsHidden(id) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || fileutil.IsHidden(id) || IsManifest(id) {
			return nil
		}
		docs = append(docs, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	sort.Strings(docs)
	return docs, nil
}

// StaticRel reports the static-relative path of a document id, if it lives
// under the static root.
func StaticRel(docID string) (string, bool) {
	prefix := StaticDirName + "/"
	if strings.HasPrefix(docID, prefix) {
		return strings.TrimPrefix(docID, prefix), true
	}
	return "", false
}
