package parser

import (
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/poiesic/normdoc/core"
)

// extractFitz handles PDF and EPUB through MuPDF, one page per layout page.
func extractFitz(data []byte) ([]core.Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	defer doc.Close()

	pages := make([]core.Page, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", core.ErrCorruptDocument, i+1, err)
		}
		pages = append(pages, core.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}
