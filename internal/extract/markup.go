package extract

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	scriptSel = cascadia.MustCompile("script")
	anchorSel = cascadia.MustCompile("a[href]")
)

type markupDoc struct {
	raw  string
	root *html.Node
}

// ParseMarkup parses raw HTML into a Document.
func ParseMarkup(raw string) (Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	return &markupDoc{raw: raw, root: root}, nil
}

func (d *markupDoc) Markup() string { return d.raw }

func (d *markupDoc) Scripts() []string {
	nodes := scriptSel.MatchAll(d.root)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, textOf(n))
	}
	return out
}

func (d *markupDoc) HrefByID(id string) (string, bool) {
	sel, err := cascadia.Compile("#" + id)
	if err != nil {
		return "", false
	}
	n := sel.MatchFirst(d.root)
	if n == nil {
		return "", false
	}
	v, ok := attr(n, "href")
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (d *markupDoc) AnchorHrefs() []string {
	nodes := anchorSel.MatchAll(d.root)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		v, _ := attr(n, "href")
		out = append(out, v)
	}
	return out
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
