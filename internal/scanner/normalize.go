package scanner

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize maps textually different spellings of an asset path onto one
// comparison key: query and fragment dropped, percent-escapes decoded,
// leading "./", "/" and "static/" removed, cleaned, NFC-composed and
// lower-cased.
func Normalize(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = unescape(p)
	p = strings.ReplaceAll(p, "\\", "/")
	for {
		trimmed := strings.TrimPrefix(p, "./")
		trimmed = strings.TrimLeft(trimmed, "/")
		if len(trimmed) >= len("static/") && strings.EqualFold(trimmed[:len("static/")], "static/") {
			trimmed = trimmed[len("static/"):]
		}
		if trimmed == p {
			break
		}
		p = trimmed
	}
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return strings.ToLower(norm.NFC.String(p))
}

// foldText prepares document text for bare-name matching.
func foldText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

var escapeRun = regexp.MustCompile(`(?:%[0-9A-Fa-f]{2})+`)

// unescape decodes valid percent-escapes and leaves malformed ones intact.
func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	return escapeRun.ReplaceAllStringFunc(s, func(run string) string {
		out, err := url.PathUnescape(run)
		if err != nil {
			return run
		}
		return out
	})
}
