package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// IsNameRune reports whether r can be part of an asset file name. Matches of
// a name must not be adjacent to such runes on either side.
func IsNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// IndexFold returns the byte offset of every case-insensitive, boundary
// delimited occurrence of needle in s.
func IndexFold(s, needle string) []int {
	if needle == "" || len(needle) > len(s) {
		return nil
	}
	lowerS := strings.ToLower(s)
	lowerN := strings.ToLower(needle)
	if len(lowerS) != len(s) || len(lowerN) != len(needle) {
		// Lowercasing changed byte lengths; fall back to a rune-aligned scan.
		return indexFoldSlow(s, needle)
	}
	var out []int
	for start := 0; start <= len(lowerS)-len(lowerN); {
		idx := strings.Index(lowerS[start:], lowerN)
		if idx < 0 {
			break
		}
		pos := start + idx
		if boundaryAt(s, pos, pos+len(needle)) {
			out = append(out, pos)
			start = pos + len(needle)
			continue
		}
		start = pos + 1
	}
	return out
}

func indexFoldSlow(s, needle string) []int {
	var out []int
	n := utf8.RuneCountInString(needle)
	for i := 0; i < len(s); {
		j := i
		for k := 0; k < n && j < len(s); k++ {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
		}
		if strings.EqualFold(s[i:j], needle) && boundaryAt(s, i, j) {
			out = append(out, i)
			i = j
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return out
}

func boundaryAt(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if IsNameRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if IsNameRune(r) {
			return false
		}
	}
	return true
}

// ContainsFold reports whether s holds at least one boundary-delimited,
// case-insensitive occurrence of needle.
func ContainsFold(s, needle string) bool {
	return len(IndexFold(s, needle)) > 0
}

// ReplaceFold replaces every case-insensitive, boundary-delimited occurrence
// of old in s with replacement and returns the result plus the count.
func ReplaceFold(s, old, replacement string) (string, int) {
	positions := IndexFold(s, old)
	if len(positions) == 0 {
		return s, 0
	}
	var b strings.Builder
	b.Grow(len(s) + len(positions)*(len(replacement)-len(old)))
	last := 0
	for _, pos := range positions {
		end := pos + matchLen(s[pos:], old)
		b.WriteString(s[last:pos])
		b.WriteString(replacement)
		last = end
	}
	b.WriteString(s[last:])
	return b.String(), len(positions)
}

func matchLen(s, needle string) int {
	if len(s) >= len(needle) && strings.EqualFold(s[:len(needle)], needle) {
		return len(needle)
	}
	n := utf8.RuneCountInString(needle)
	j := 0
	for k := 0; k < n && j < len(s); k++ {
		_, size := utf8.DecodeRuneInString(s[j:])
		j += size
	}
	return j
}
