package extract

import (
	"bytes"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// HTMLExtractor extracts visible text from .html files
type HTMLExtractor struct{}

// ExtractText implements the Extractor interface for HTML files
func (e *HTMLExtractor) ExtractText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return Diagnostic("HTML", err)
	}
	return htmlToText(bytes.NewReader(data))
}

// htmlToText tokenizes HTML and keeps text nodes outside script and style
func htmlToText(r io.Reader) string {
	z := html.NewTokenizer(r)
	var b strings.Builder
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "br", "p", "div", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			case "td", "th":
				b.WriteString(cellSeparator)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
