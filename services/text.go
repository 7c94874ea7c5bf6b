package services

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// PageText reduces a listing page to readable text for the extraction passes.
// Readability isolates the main content; when it fails or yields too little,
// the whole body text is used with script, style and navigation removed.
func PageText(rawURL, html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	if u, err := url.Parse(rawURL); err == nil {
		rp := readability.NewParser()
		article, err := rp.Parse(strings.NewReader(html), u)
		if err == nil && article.Content != "" {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
				text := blockText(doc.Selection)
				if len(text) >= 200 {
					return text
				}
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normaliseText(html)
	}
	doc.Find("script, style, noscript, nav, footer, header, svg").Remove()
	return blockText(doc.Find("body"))
}

var blockTags = map[string]bool{
	"address": true, "article": true, "br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"li": true, "main": true, "ol": true, "p": true, "section": true, "table": true,
	"td": true, "th": true, "tr": true, "ul": true,
}

// blockText renders the selection's text with a line break at every block
// element boundary, so field recognizers never see values from adjacent
// blocks glued together.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "svg":
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = normaliseText(line)
		if line == "" || (len(lines) > 0 && lines[len(lines)-1] == line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most max bytes on a rune boundary.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
