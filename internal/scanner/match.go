package scanner

import (
	"path"
	"regexp"
	"strings"

	"courseopt/internal/textutil"
)

// Explicit reference forms. The captured group is the asset path or name.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/static/([^\s"'()<>\[\]{}\\,;|` + "`" + `]+)`),
	regexp.MustCompile(`(?i)/?c4x/[^/\s"']+/[^/\s"']+/asset/([^\s"'()<>\[\]{}\\,;|` + "`" + `]+)`),
	regexp.MustCompile(`(?i)asset-v1:[^\s"'/]+?\+type@asset\+block@([^\s"'()<>\[\]{}\\,;|/` + "`" + `]+)`),
}

// index resolves reference strings to files of the static root.
type index struct {
	files  []string
	byPath map[string]string
	// byAlias maps flattened and base-name spellings to every file carrying them.
	byAlias map[string][]string
	needles map[string][]string
}

func newIndex(files []string) *index {
	idx := &index{
		files:   files,
		byPath:  make(map[string]string, len(files)),
		byAlias: make(map[string][]string),
		needles: make(map[string][]string, len(files)),
	}
	for _, rel := range files {
		key := Normalize(rel)
		idx.byPath[key] = rel
		base := path.Base(key)
		aliases := uniq(base, strings.ReplaceAll(key, "/", "_"), strings.ReplaceAll(base, "@", "_"))
		for _, alias := range aliases {
			idx.byAlias[alias] = append(idx.byAlias[alias], rel)
		}
		idx.needles[rel] = aliases
	}
	return idx
}

func uniq(values ...string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// resolve maps one explicit reference to files. Unknown references are
// returned as missing.
func (idx *index) resolve(raw string) (hits []string, missing string) {
	key := strings.TrimRight(Normalize(raw), ".:")
	if key == "" {
		return nil, ""
	}
	if rel, ok := idx.byPath[key]; ok {
		return []string{rel}, ""
	}
	if rels, ok := idx.byAlias[key]; ok {
		return rels, ""
	}
	if rels, ok := idx.byAlias[path.Base(key)]; ok {
		return rels, ""
	}
	return nil, key
}

// match returns the files referenced by a document's segments together with
// explicit references that resolve to nothing.
func (idx *index) match(segments []string) (hits map[string]struct{}, missing []string) {
	hits = make(map[string]struct{})
	var folded strings.Builder
	for _, seg := range segments {
		for _, re := range referencePatterns {
			for _, m := range re.FindAllStringSubmatch(seg, -1) {
				rels, miss := idx.resolve(m[1])
				for _, rel := range rels {
					hits[rel] = struct{}{}
				}
				if miss != "" {
					missing = append(missing, miss)
				}
			}
		}
		folded.WriteString(foldText(seg))
		folded.WriteByte('\n')
		if strings.Contains(seg, "%") {
			folded.WriteString(foldText(unescape(seg)))
			folded.WriteByte('\n')
		}
	}

	text := folded.String()
	for _, rel := range idx.files {
		if _, done := hits[rel]; done {
			continue
		}
		for _, needle := range idx.needles[rel] {
			if textutil.ContainsFold(text, needle) {
				hits[rel] = struct{}{}
				break
			}
		}
	}
	return hits, missing
}
