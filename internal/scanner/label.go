package scanner

import (
	"strings"

	"golang.org/x/net/html"
)

// cleanLabel flattens a label fragment to plain text. Portals frequently
// leave markup inside label containers (required-marker spans, tooltip
// anchors); parsing instead of regex-stripping keeps entity-encoded text
// intact.
func cleanLabel(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := html.Parse(strings.NewReader(s)); err == nil {
			var b strings.Builder
			collectText(doc, &b)
			s = b.String()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
