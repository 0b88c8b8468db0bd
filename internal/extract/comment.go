package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type comment struct {
	stamp  string
	author string
	text   string
}

// parseComment finds the "Comments" label and reads the first table after it:
// row one is "<timestamp> - <author>", row two is the comment text.
func parseComment(body []byte) (comment, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return comment{}, false
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return comment{}, false
	}

	table := tableAfterLabel(doc)
	if table == nil {
		return comment{}, false
	}
	rows := tableRows(table)
	if len(rows) < 2 {
		return comment{}, false
	}

	head := nodeText(rows[0])
	stamp, author, ok := strings.Cut(head, " - ")
	if !ok {
		return comment{}, false
	}
	text := nodeText(rows[1])
	if text == "" {
		return comment{}, false
	}
	return comment{
		stamp:  strings.TrimSpace(stamp),
		author: strings.TrimSpace(author),
		text:   text,
	}, true
}

func isCommentsLabel(n *html.Node) bool {
	if n.Type != html.TextNode {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(n.Data))
	s = strings.TrimSpace(strings.TrimSuffix(s, ":"))
	return s == "comments"
}

// tableAfterLabel walks the document in order and returns the first table
// element that starts after the label text.
func tableAfterLabel(doc *html.Node) *html.Node {
	var (
		seen  bool
		found *html.Node
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if seen && n.Type == html.ElementNode && n.DataAtom == atom.Table {
			found = n
			return
		}
		if !seen && isCommentsLabel(n) {
			seen = true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// tableRows returns the rows of t, ignoring rows of nested tables.
func tableRows(t *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				rows = append(rows, c)
			default:
				walk(c)
			}
		}
	}
	walk(t)
	return rows
}

// nodeText concatenates the text beneath n with whitespace collapsed.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
