// Package markdown extracts plain text from markdown documents so language
// detection sees prose instead of markup and code.
package markdown

import (
	"bytes"
	"regexp"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// reFencedCode matches fenced code blocks, removed before rendering because
// identifiers and keywords skew language detection.
var reFencedCode = regexp.MustCompile("(?s)```.*?```|(?s)~~~.*?~~~")

// PlainText renders md to HTML with the CommonMark parser and strips the
// tags, after removing fenced code blocks.
func PlainText(md string) string {
	stripped := reFencedCode.ReplaceAllString(md, "")

	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(stripped))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	return stripTags(string(rendered))
}

// stripTags removes HTML tags, keeping only text content.
func stripTags(htmlContent string) string {
	var out bytes.Buffer
	inTag := false
	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				out.WriteRune(ch)
			}
		}
	}
	return out.String()
}
