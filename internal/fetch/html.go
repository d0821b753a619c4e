package fetch

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML to text conversion over a parsed tree. Documentation pages are mostly
// headings, paragraphs, lists, and code blocks; pages that need real
// rendering fail the emptiness check and fall through to other discovery
// sources.

// Elements whose entire subtrees are noise for search
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Head:     true,
}

var headingMarkers = map[atom.Atom]string{
	atom.H1: "#",
	atom.H2: "##",
	atom.H3: "###",
	atom.H4: "####",
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

func extractTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	node := findElement(doc, atom.Title)
	if node == nil {
		return ""
	}
	title := strings.Join(strings.Fields(nodeText(node)), " ")
	// Drop " | Site Name" style suffixes
	for _, sep := range []string{" | ", " - ", " – "} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
			break
		}
	}
	return title
}

// extractLinks harvests absolute same-protocol links from anchor tags
func extractLinks(body []byte, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			href := attrValue(n, "href")
			if href != "" && !strings.HasPrefix(href, "#") {
				if abs := resolveLink(base, href); abs != "" {
					if _, ok := seen[abs]; !ok {
						seen[abs] = struct{}{}
						links = append(links, abs)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func htmlToText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var b strings.Builder
	writeNodeText(&b, doc)

	// Collapse horizontal whitespace per line
	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

func writeNodeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4:
			// Headings become markdown so the chunker can split on them
			b.WriteString("\n" + headingMarkers[n.DataAtom] + " " + strings.TrimSpace(nodeText(n)) + "\n")
			return
		case atom.Pre:
			b.WriteString("\n```\n" + nodeText(n) + "\n```\n")
			return
		case atom.Code:
			b.WriteString("`")
			writeChildrenText(b, n)
			b.WriteString("`")
			return
		case atom.Li:
			b.WriteString("\n- ")
			writeChildrenText(b, n)
			b.WriteString("\n")
			return
		case atom.Br:
			b.WriteString("\n")
			return
		}
	}

	writeChildrenText(b, n)

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.Div, atom.Tr, atom.Table, atom.Ul, atom.Ol,
			atom.Section, atom.Article, atom.Blockquote:
			b.WriteString("\n")
		}
	}
}

func writeChildrenText(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNodeText(b, c)
	}
}

// nodeText concatenates every text node under n
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
