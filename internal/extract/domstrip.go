package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DOMStrip is the blunt fallback strategy: parse the full DOM, remove
// script/style/header/footer/nav subtrees, and keep every remaining visible
// text node as one trimmed line. It recovers text from pages whose structure
// defeats the readability heuristics.
type DOMStrip struct{}

func (DOMStrip) Extract(input []byte) Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(input))
	if err != nil {
		return Document{}
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, header, footer, nav, noscript").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return Document{Title: title}
	}
	var lines []string
	for _, n := range body.Nodes {
		collectLines(n, &lines)
	}
	return Document{Title: title, Text: strings.Join(lines, "\n")}
}

// collectLines appends each non-empty text node as its own trimmed line.
func collectLines(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
			*lines = append(*lines, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLines(c, lines)
	}
}
