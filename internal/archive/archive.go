// Package archive extracts and repacks gzip-compressed tar course packages.
//
// Extraction refuses entries that would escape the destination and skips
// links and device nodes. Packing is deterministic: entries are sorted, owner
// fields are zeroed and every modification time is pinned to the supplied
// timestamp, so two packs of the same tree differ only by that timestamp.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafePath reports an entry whose name escapes the destination.
var ErrUnsafePath = errors.New("unsafe archive entry path")

// ExtractResult summarises an extraction.
type ExtractResult struct {
	Files   int
	Dirs    int
	Bytes   int64
	Skipped []string
}

// Extract unpacks the tar.gz at archivePath into dest, which must exist.
func Extract(ctx context.Context, archivePath, dest string) (ExtractResult, error) {
	var result ExtractResult
	f, err := os.Open(archivePath)
	if err != nil {
		return result, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return result, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read tar entry: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return result, err
		}
		if target == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return result, fmt.Errorf("create dir %s: %w", hdr.Name, err)
			}
			result.Dirs++
		case tar.TypeReg:
			n, err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return result, fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			result.Files++
			result.Bytes += n
		case tar.TypeXGlobalHeader:
			continue
		default:
			result.Skipped = append(result.Skipped, hdr.Name)
		}
	}
	if result.Files == 0 && result.Dirs == 0 {
		return result, errors.New("archive contains no entries")
	}
	return result, nil
}

func writeEntry(r io.Reader, target string, perm os.FileMode) (int64, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

// safeJoin resolves an entry name under dest. It returns "" for the archive
// root itself.
func safeJoin(dest, name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	if clean == "/" {
		return "", nil
	}
	if strings.Contains(name, "..") {
		for _, part := range strings.Split(strings.ReplaceAll(name, "\\", "/"), "/") {
			if part == ".." {
				return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
			}
		}
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return filepath.Join(dest, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// PackResult summarises a pack.
type PackResult struct {
	Files int
	Bytes int64
}

// Pack archives the contents of srcDir into a tar.gz at outPath. The archive
// is written to a temporary sibling and renamed into place.
func Pack(ctx context.Context, srcDir, outPath string, modTime time.Time) (PackResult, error) {
	var result PackResult
	entries, err := collect(srcDir)
	if err != nil {
		return result, err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return result, fmt.Errorf("ensure output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return result, fmt.Errorf("create temp archive: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	gz := gzip.NewWriter(tmp)
	gz.ModTime = modTime.UTC()
	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := writeHeader(tw, srcDir, entry, modTime)
		if err != nil {
			return result, fmt.Errorf("pack %s: %w", entry.name, err)
		}
		if !entry.dir {
			result.Files++
			result.Bytes += n
		}
	}

	if err := tw.Close(); err != nil {
		return result, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return result, fmt.Errorf("close gzip: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return result, err
	}
	if err := tmp.Close(); err != nil {
		return result, err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return result, err
	}
	if err := os.Rename(tmpName, outPath); err != nil {
		return result, fmt.Errorf("commit archive: %w", err)
	}
	committed = true
	return result, nil
}

type packEntry struct {
	name string
	dir  bool
	mode fs.FileMode
}

func collect(srcDir string) ([]packEntry, error) {
	var entries []packEntry
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == srcDir {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			entries = append(entries, packEntry{name: filepath.ToSlash(rel) + "/", dir: true, mode: info.Mode().Perm()})
		case d.Type().IsRegular():
			entries = append(entries, packEntry{name: filepath.ToSlash(rel), mode: info.Mode().Perm()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", srcDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

func writeHeader(tw *tar.Writer, srcDir string, entry packEntry, modTime time.Time) (int64, error) {
	hdr := &tar.Header{
		Name:    entry.name,
		Mode:    int64(entry.mode),
		ModTime: modTime.UTC().Truncate(time.Second),
	}
	if entry.dir {
		hdr.Typeflag = tar.TypeDir
		return 0, tw.WriteHeader(hdr)
	}

	f, err := os.Open(filepath.Join(srcDir, filepath.FromSlash(entry.name)))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	hdr.Typeflag = tar.TypeReg
	hdr.Size = info.Size()
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	return io.Copy(tw, f)
}
