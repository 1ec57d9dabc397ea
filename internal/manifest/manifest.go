// Package manifest reads and writes the course asset manifest
// (policies/assets.json): a JSON object mapping asset keys to metadata.
//
// Entries keep every field found in the source document so a rewrite only
// changes what reconciliation or renaming touched. Output is written with
// sorted keys and four-space indentation through an atomic replace.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"

	"courseopt/internal/fileutil"
	"courseopt/internal/textutil"
)

const (
	FieldDisplayName = "displayname"
	FieldFilename    = "filename"
	FieldContentType = "contentType"
	FieldLocked      = "locked"
	FieldImportPath  = "import_path"
	FieldThumbnail   = "thumbnail_location"
)

// Entry is the raw metadata object of one asset.
type Entry map[string]any

// DisplayName returns the displayname field, if any.
func (e Entry) DisplayName() string {
	s, _ := e[FieldDisplayName].(string)
	return s
}

// Locked reports whether the platform marks the asset as locked.
func (e Entry) Locked() bool {
	b, _ := e[FieldLocked].(bool)
	return b
}

// Manifest is an in-memory copy of the asset manifest.
type Manifest struct {
	path    string
	exists  bool
	entries map[string]any
}

// Load reads the manifest at path. A missing file yields an empty manifest
// whose Exists method reports false.
func Load(path string) (*Manifest, error) {
	m := &Manifest{path: path, entries: map[string]any{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m.exists = true
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parse manifest: top level is %T, want object", raw)
	}
	m.entries = obj
	return m, nil
}

// Path returns the file the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Exists reports whether the manifest file was present when loaded.
func (m *Manifest) Exists() bool { return m.exists }

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Keys returns all keys sorted.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present.
func (m *Manifest) Has(key string) bool {
	_, ok := m.entries[key]
	return ok
}

// Entry returns the metadata object for key. Non-object values yield an
// empty entry and false.
func (m *Manifest) Entry(key string) (Entry, bool) {
	v, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return Entry(obj), true
}

// Set stores entry under key, replacing any previous value.
func (m *Manifest) Set(key string, entry Entry) {
	m.entries[key] = map[string]any(entry)
}

// Delete removes key and reports whether it was present.
func (m *Manifest) Delete(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	return true
}

// Clone returns a copy whose entry set can be changed independently.
// Entry objects are deep-copied.
func (m *Manifest) Clone() *Manifest {
	out := &Manifest{path: m.path, exists: m.exists, entries: make(map[string]any, len(m.entries))}
	for k, v := range m.entries {
		out.entries[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(t))
		for k, val := range t {
			cp[k] = deepCopy(val)
		}
		return cp
	case []any:
		cp := make([]any, len(t))
		for i, val := range t {
			cp[i] = deepCopy(val)
		}
		return cp
	default:
		return v
	}
}

// KeyFor maps a static-relative file path to its manifest key. Exports
// store some files under a key that differs from the on-disk name (an '@'
// in the displayname becomes '_' in the key, nested paths are flattened), so
// the lookup tries, in order: the exact path, the base name, the path with
// separators flattened to '_', the '@'-to-'_' form, and finally an entry
// whose displayname equals the base name.
func (m *Manifest) KeyFor(rel string) (string, bool) {
	base := path.Base(rel)
	candidates := []string{
		rel,
		base,
		strings.ReplaceAll(rel, "/", "_"),
		strings.ReplaceAll(base, "@", "_"),
	}
	for _, c := range candidates {
		if m.Has(c) {
			return c, true
		}
	}
	for _, k := range m.Keys() {
		if e, ok := m.Entry(k); ok && e.DisplayName() == base {
			return k, true
		}
	}
	return "", false
}

// Save writes the manifest atomically to its load path.
func (m *Manifest) Save() error {
	return m.SaveAs(m.path)
}

// SaveAs writes the manifest atomically to p.
func (m *Manifest) SaveAs(p string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("ensure manifest dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(p, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	m.exists = true
	return nil
}

// Encode renders the manifest with sorted keys and four-space indentation.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(m.entries); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Synthesize builds the minimal entry written for a static file that has no
// manifest record when the strict policy is active. courseKey may be empty,
// in which case the filename falls back to the /static/ path.
func Synthesize(rel, courseKey string) Entry {
	base := path.Base(rel)
	filename := "/static/" + rel
	if run, ok := strings.CutPrefix(courseKey, "course-v1:"); ok && run != "" {
		filename = "asset-v1:" + run + "+type@asset+block@" + strings.ReplaceAll(rel, "/", "_")
	}
	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(base)))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Entry{
		FieldContentType: contentType,
		FieldDisplayName: base,
		FieldFilename:    filename,
		FieldImportPath:  nil,
		FieldLocked:      false,
		FieldThumbnail:   nil,
	}
}

// Rename moves the entry at oldKey to newKey and rewrites the fields that
// embed the file name: displayname, filename and thumbnail_location get the
// new name, and contentType follows the new extension.
func (m *Manifest) Rename(oldKey, newKey, oldName, newName string) error {
	v, ok := m.entries[oldKey]
	if !ok {
		return fmt.Errorf("rename %s: no such manifest entry", oldKey)
	}
	if oldKey != newKey && m.Has(newKey) {
		return fmt.Errorf("rename %s: target key %s already present", oldKey, newKey)
	}
	obj, isObj := v.(map[string]any)
	if isObj {
		updateEntry(Entry(obj), oldName, newName)
	}
	delete(m.entries, oldKey)
	m.entries[newKey] = v
	return nil
}

func updateEntry(e Entry, oldName, newName string) {
	oldBase, newBase := path.Base(oldName), path.Base(newName)
	if dn := e.DisplayName(); dn != "" {
		e[FieldDisplayName] = replaceName(dn, oldBase, newBase)
	}
	if fn, ok := e[FieldFilename].(string); ok {
		e[FieldFilename] = replaceName(fn, oldBase, newBase)
	}
	if _, ok := e[FieldContentType].(string); ok {
		if ct := mime.TypeByExtension(strings.ToLower(path.Ext(newBase))); ct != "" {
			e[FieldContentType] = ct
		}
	}
	if thumb, ok := e[FieldThumbnail]; ok && thumb != nil {
		e[FieldThumbnail] = rewriteStrings(thumb, func(s string) string {
			s = replaceName(s, thumbnailName(oldBase), thumbnailName(newBase))
			return replaceName(s, oldBase, newBase)
		})
	}
}

// thumbnailName follows the platform convention <stem>-<ext>.jpg.
func thumbnailName(base string) string {
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + strings.TrimPrefix(ext, ".") + ".jpg"
}

func replaceName(s, oldName, newName string) string {
	if oldName == "" || oldName == newName {
		return s
	}
	out, _ := textutil.ReplaceFold(s, oldName, newName)
	// Keys flatten '@' to '_' and filenames may use either form.
	if alt := strings.ReplaceAll(oldName, "@", "_"); alt != oldName {
		out, _ = textutil.ReplaceFold(out, alt, strings.ReplaceAll(newName, "@", "_"))
	}
	return out
}

func rewriteStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case string:
		return fn(t)
	case []any:
		for i := range t {
			t[i] = rewriteStrings(t[i], fn)
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = rewriteStrings(t[k], fn)
		}
		return t
	default:
		return v
	}
}
