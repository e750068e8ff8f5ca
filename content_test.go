package linkscout

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		htmlDoc  string
		expected string
	}{
		{
			name: "og:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="Ten SEO Tips for 2026" />
	<title>Acme Blog</title>
</head>
<body></body>
</html>`,
			expected: "Ten SEO Tips for 2026",
		},
		{
			name: "twitter:title takes precedence over title tag",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta name="twitter:title" content="Rank Tracker Features" />
	<title>Acme</title>
</head>
<body></body>
</html>`,
			expected: "Rank Tracker Features",
		},
		{
			name: "empty og:title falls back to twitter:title",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="" />
	<meta name="twitter:title" content="Twitter Fallback" />
	<title>Site Title</title>
</head>
<body></body>
</html>`,
			expected: "Twitter Fallback",
		},
		{
			name: "h1 with nested elements",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<title>Site Name</title>
</head>
<body>
	<h1>Content <span>Calendar</span> Guide</h1>
</body>
</html>`,
			expected: "Content Calendar Guide",
		},
		{
			name: "title tag as final fallback",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<title>Pricing</title>
</head>
<body>
	<p>Content without h1</p>
</body>
</html>`,
			expected: "Pricing",
		},
		{
			name: "whitespace trimming",
			htmlDoc: `<!DOCTYPE html>
<html>
<head>
	<meta property="og:title" content="  Trimmed Title  " />
	<title>Site</title>
</head>
<body></body>
</html>`,
			expected: "Trimmed Title",
		},
		{
			name:     "empty document",
			htmlDoc:  `<!DOCTYPE html><html><head></head><body></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.htmlDoc))
			if err != nil {
				t.Fatalf("Failed to parse HTML: %v", err)
			}

			result := extractTitle(doc)
			if result != tt.expected {
				t.Errorf("extractTitle() = %q, expected %q", result, tt.expected)
			}
		})
	}
}

func TestExtractContent(t *testing.T) {
	doc := `<!DOCTYPE html>
<html>
<head>
	<title>Ten SEO tips</title>
	<style>body { color: red; }</style>
</head>
<body>
	<h1>Ten SEO tips</h1>
	<script>var seo = "dashboard";</script>
	<p>Use an <a href="/pricing">SEO dashboard</a> every day.</p>
	<noscript>Enable JavaScript</noscript>
	<template><p>hidden</p></template>
	<p>A rank tracker shows progress.</p>
</body>
</html>`

	content, err := ExtractContent(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractContent failed: %v", err)
	}

	if content.Title != "Ten SEO tips" {
		t.Errorf("Expected title %q, got %q", "Ten SEO tips", content.Title)
	}

	want := "Ten SEO tips Use an SEO dashboard every day. A rank tracker shows progress."
	if content.Text != want {
		t.Errorf("Unexpected text:\n got: %q\nwant: %q", content.Text, want)
	}

	for _, hidden := range []string{"color: red", "var seo", "Enable JavaScript", "hidden"} {
		if strings.Contains(content.Text, hidden) {
			t.Errorf("Text contains non-rendered content %q", hidden)
		}
	}
}
