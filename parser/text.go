package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/normdoc/core"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractText handles plain text and Markdown. Form feeds separate pages.
func extractText(data []byte) ([]core.Page, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid UTF-8", core.ErrCorruptDocument)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("%w: binary content", core.ErrCorruptDocument)
	}

	parts := strings.Split(string(data), "\f")
	pages := make([]core.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, core.Page{Number: i + 1, Text: part})
	}
	return pages, nil
}
