package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/jsonc"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Format names the extraction rule applied to a document.
type Format string

const (
	FormatMarkup   Format = "markup"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatPlain    Format = "plain"
)

var formatsByExt = map[string]Format{
	".html":  FormatMarkup,
	".htm":   FormatMarkup,
	".xml":   FormatMarkup,
	".xhtml": FormatMarkup,
	".json":  FormatJSON,
	".md":    FormatMarkdown,
	".txt":   FormatPlain,
	".css":   FormatPlain,
	".js":    FormatPlain,
	".srt":   FormatPlain,
	".sjson": FormatPlain,
}

// FormatFor reports the extraction rule for a document path, if it is a
// scannable content document.
func FormatFor(docID string) (Format, bool) {
	f, ok := formatsByExt[strings.ToLower(path.Ext(docID))]
	return f, ok
}

// IsDocument reports whether docID is a scannable content document.
func IsDocument(docID string) bool {
	_, ok := FormatFor(docID)
	return ok
}

// extractStrings returns the string segments of a document that may carry
// asset references.
func extractStrings(format Format, data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		data = toUTF8(format, data)
	}
	switch format {
	case FormatMarkup:
		return extractMarkup(data)
	case FormatJSON:
		return extractJSON(data)
	case FormatMarkdown:
		return extractMarkdown(data), nil
	default:
		return []string{string(data)}, nil
	}
}

// toUTF8 decodes legacy-encoded content. Markup honours a declared charset;
// everything else is read as Windows-1252, which maps every byte.
func toUTF8(format Format, data []byte) []byte {
	enc := encoding.Encoding(charmap.Windows1252)
	if format == FormatMarkup {
		enc, _, _ = charset.DetermineEncoding(data, "text/html")
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return decoded
}

// extractMarkup collects every attribute value, text node and comment.
// Comments are kept because CDATA sections in XML surface as comments.
func extractMarkup(data []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			for _, attr := range n.Attr {
				if attr.Val != "" {
					out = append(out, attr.Val)
				}
			}
		case html.TextNode, html.CommentNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return out, nil
}

func extractJSON(data []byte) ([]string, error) {
	clean := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(clean)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	var out []string
	collectJSON(v, &out)
	return out, nil
}

func collectJSON(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, item := range t {
			collectJSON(item, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			*out = append(*out, k)
			collectJSON(t[k], out)
		}
	}
}

func extractMarkdown(data []byte) []string {
	root := goldmark.New().Parser().Parse(text.NewReader(data))
	var out []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			out = append(out, string(node.Destination))
		case *ast.Image:
			out = append(out, string(node.Destination))
		case *ast.AutoLink:
			out = append(out, string(node.URL(data)))
		case *ast.Text:
			out = append(out, string(node.Segment.Value(data)))
		case *ast.String:
			out = append(out, string(node.Value))
		case *ast.RawHTML:
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				out = append(out, string(seg.Value(data)))
			}
		default:
			if n.Type() == ast.TypeBlock {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					out = append(out, string(seg.Value(data)))
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}
