package testsupport

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// ScenarioCourse returns the files of a small course: banner.png (2280 wide)
// referenced from two documents and the course policy, dragtile.jpg (300
// wide) referenced from a drag-and-drop problem, unused.png referenced
// nowhere, and a manifest tracking all three. Paths are relative to the
// course root.
func ScenarioCourse(t testing.TB) map[string][]byte {
	t.Helper()
	return map[string][]byte{
		"course.xml":                []byte(`<course url_name="2024" org="MITx" course="6.00x"/>`),
		"html/intro.html":           []byte(`<h1>Welcome</h1><img src="/static/banner.png" alt="Course banner"/>`),
		"html/intro.xml":            []byte(`<html filename="intro" display_name="Intro"/>`),
		"about/overview.html":       []byte(`<section><img src="/static/banner.png"></section>`),
		"problem/dnd.xml":           []byte(`<drag-and-drop-v2 data='{"targetImg": "/static/dragtile.jpg"}'/>`),
		"policies/2024/policy.json": []byte(`{"course/2024": {"course_image": "banner.png", "display_name": "Intro to CS"}}`),
		"policies/assets.json": []byte(`{
    "banner.png": {
        "contentType": "image/png",
        "displayname": "banner.png",
        "filename": "asset-v1:MITx+6.00x+2T2024+type@asset+block@banner.png",
        "import_path": null,
        "locked": false,
        "thumbnail_location": ["c4x", "MITx", "6.00x", "thumbnail", "banner-png.jpg", null]
    },
    "dragtile.jpg": {
        "contentType": "image/jpeg",
        "displayname": "dragtile.jpg",
        "filename": "asset-v1:MITx+6.00x+2T2024+type@asset+block@dragtile.jpg",
        "import_path": null,
        "locked": false,
        "thumbnail_location": null
    },
    "unused.png": {
        "contentType": "image/png",
        "displayname": "unused.png",
        "filename": "asset-v1:MITx+6.00x+2T2024+type@asset+block@unused.png",
        "import_path": null,
        "locked": false,
        "thumbnail_location": null
    }
}`),
		"static/banner.png":   PNG(t, 2280, 60),
		"static/dragtile.jpg": JPEG(t, 300, 120),
		"static/unused.png":   PNG(t, 500, 50),
	}
}

// BuildArchive writes a tar.gz at dir/name whose entries live under the
// "course/" folder, matching platform exports.
func BuildArchive(t testing.TB, dir, name string, files map[string][]byte) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for rel := range files {
		names = append(names, rel)
	}
	sort.Strings(names)
	for _, rel := range names {
		data := files[rel]
		hdr := &tar.Header{
			Name:     "course/" + rel,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", rel, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("tar write %s: %v", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	path := filepath.Join(dir, name)
	WriteFile(t, path, buf.Bytes())
	return path
}

// WriteCorruptArchive writes bytes that are not a gzip stream.
func WriteCorruptArchive(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("this is not a course archive"), 0o644); err != nil {
		t.Fatalf("write corrupt archive: %v", err)
	}
	return path
}
