package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/poiesic/normdoc/core"
)

var (
	pageBreakBefore = regexp.MustCompile(`(?i)page-break-before\s*:\s*always`)
	pageBreakAfter  = regexp.MustCompile(`(?i)page-break-after\s*:\s*always`)
	multiSpaces     = regexp.MustCompile(`[ \t]+`)
)

// Elements whose content is never document text.
var skippedElements = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true, "template": true,
}

// Elements that end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "blockquote": true, "pre": true,
	"table": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

type openElement struct {
	name       string
	breakAfter bool
}

// htmlPages collects text while walking the token stream.
type htmlPages struct {
	pages []core.Page
	buf   strings.Builder
}

func (h *htmlPages) newPage() {
	h.pages = append(h.pages, core.Page{Number: len(h.pages) + 1, Text: h.buf.String()})
	h.buf.Reset()
}

// extractHTML strips markup. Elements styled with page-break-before or
// page-break-after start a new page; otherwise the document is one page.
func extractHTML(data []byte) ([]core.Page, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", core.ErrCorruptDocument)
	}

	var (
		out   htmlPages
		stack []openElement
		skip  int
	)
	z := html.NewTokenizer(bytes.NewReader(data))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
			}
			out.newPage()
			return out.pages, nil

		case html.TextToken:
			if skip == 0 {
				out.buf.WriteString(multiSpaces.ReplaceAllString(string(z.Text()), " "))
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			name := tok.Data
			if skippedElements[name] {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 {
				continue
			}
			style := htmlAttr(tok, "style")
			if pageBreakBefore.MatchString(style) {
				out.newPage()
			}
			switch {
			case name == "br" || name == "hr":
				out.buf.WriteByte('\n')
				continue
			case blockElements[name]:
				out.buf.WriteByte('\n')
			}
			if tt == html.StartTagToken && !voidElement(name) {
				stack = append(stack, openElement{name: name, breakAfter: pageBreakAfter.MatchString(style)})
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedElements[tag] {
				skip = max(skip-1, 0)
				continue
			}
			if skip > 0 {
				continue
			}
			if blockElements[tag] {
				out.buf.WriteByte('\n')
			}
			// Pop to the matching element; unclosed children close with it.
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name != tag {
					continue
				}
				breakAfter := stack[i].breakAfter
				stack = stack[:i]
				if breakAfter {
					out.newPage()
				}
				break
			}
		}
	}
}

func htmlAttr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func voidElement(name string) bool {
	switch name {
	case "area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}
