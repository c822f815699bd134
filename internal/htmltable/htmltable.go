// Package htmltable reads a saved invoice-page HTML file into raw rows for
// the parser. It only cares about cell text and the attribute map of each
// row's download control; everything else on the page is ignored.
package htmltable

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"

	"invoicefetch/internal/row"
)

// Load parses the HTML file at path and returns its table rows in document
// order. Header rows (th-only) are skipped. Malformed markup degrades to
// best-effort rows; only I/O and top-level parse failures are errors.
func Load(path string) ([]row.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	var rows []row.RawRow
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if r, ok := parseRow(n); ok {
				rows = append(rows, r)
			}
		}
	})
	return rows, nil
}

func parseRow(tr *html.Node) (row.RawRow, bool) {
	var r row.RawRow
	sawCell := false
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "td":
			r.Cells = append(r.Cells, collapse(text(c)))
			sawCell = true
			if r.ControlAttrs == nil {
				r.ControlAttrs = controlAttrs(c)
			}
		case "th":
			// header cell; tr with only th cells is dropped below
		}
	}
	return r, sawCell
}

// controlAttrs returns the attribute map of the first button-like element
// under n, or nil when there is none.
func controlAttrs(n *html.Node) map[string]string {
	var attrs map[string]string
	walk(n, func(c *html.Node) {
		if attrs != nil || c.Type != html.ElementNode {
			return
		}
		if c.Data == "button" || (c.Data == "a" && hasAttr(c, "data-document-id")) {
			attrs = make(map[string]string, len(c.Attr))
			for _, a := range c.Attr {
				attrs[a.Key] = a.Val
			}
		}
	})
	return attrs
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}

// collapse trims and squeezes internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
