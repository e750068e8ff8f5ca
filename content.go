package linkscout

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// PageContent is the readable part of an HTML document
type PageContent struct {
	Title string
	Text  string
}

// ExtractContent parses an HTML document and returns its title and visible text.
// Text inside script, style, noscript and template elements is dropped.
func ExtractContent(r io.Reader) (*PageContent, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &PageContent{
		Title: extractTitle(doc),
		Text:  extractText(doc),
	}, nil
}

// extractTitle extracts the page title from the HTML
// Priority: og:title > twitter:title > h1 > title tag
func extractTitle(n *html.Node) string {
	var ogTitle, twitterTitle, h1Title, htmlTitle string

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && ogTitle == "" {
					ogTitle = strings.TrimSpace(content)
				}
				if name == "twitter:title" && twitterTitle == "" {
					twitterTitle = strings.TrimSpace(content)
				}
			case "h1":
				if h1Title == "" {
					h1Title = extractText(n)
				}
			case "title":
				if htmlTitle == "" && n.FirstChild != nil {
					htmlTitle = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	for _, title := range []string{ogTitle, twitterTitle, h1Title, htmlTitle} {
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return ""
}

// extractText collects the text nodes under n, skipping non-rendered elements
func extractText(n *html.Node) string {
	var buf strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.TrimSpace(buf.String())
}
