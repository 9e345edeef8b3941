package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Readability extracts the main article text from HTML using structural
// heuristics tuned for article-like pages: it prefers <main> or <article>
// over <body>, keeps headings, paragraphs and list items, and skips
// navigation, footers, and cookie-consent chrome.
type Readability struct{}

func (Readability) Extract(input []byte) Document {
	node, err := html.Parse(bytes.NewReader(input))
	if err != nil || node == nil {
		return Document{}
	}

	title := strings.TrimSpace(pageTitle(node))
	content := findFirst(node, "main")
	if content == nil {
		content = findFirst(node, "article")
	}
	if content == nil {
		content = findFirst(node, "body")
	}
	var b strings.Builder
	if content != nil {
		collectText(&b, content, false)
	}
	return Document{Title: title, Text: normalizeWhitespace(b.String())}
}

func pageTitle(n *html.Node) string {
	head := findFirst(n, "head")
	if head == nil {
		return ""
	}
	t := findFirst(head, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
	var res *html.Node
	var dfs func(*html.Node)
	dfs = func(cur *html.Node) {
		if res != nil {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			res = cur
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			dfs(c)
			if res != nil {
				return
			}
		}
	}
	dfs(n)
	return res
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
	if n.Type == html.ElementNode {
		if isConsentBanner(n) {
			return
		}
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "nav", "header", "footer", "aside", "iframe":
			return
		case "pre", "code":
			inPre = true
		case "br", "hr":
			b.WriteString("\n")
		case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol":
			// Newline before block starts to ensure separation.
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li":
			b.WriteString("\n")
		case "pre", "code":
			b.WriteString("\n")
		}
	}
}

// isConsentBanner returns true if the element looks like a cookie/consent banner.
func isConsentBanner(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
			continue
		}
		val := strings.ToLower(attr.Val)
		if strings.Contains(val, "cookie") || strings.Contains(val, "consent") || strings.Contains(val, "gdpr") {
			return true
		}
	}
	return false
}

// normalizeWhitespace collapses internal space runs and keeps at most one
// consecutive blank line.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, strings.Join(strings.Fields(trimmed), " "))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
