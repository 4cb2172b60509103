package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/normdoc/core"
)

const docxBody = "word/document.xml"

// extractDOCX streams word/document.xml. Paragraphs become lines separated by
// blank lines; <w:br w:type="page"/> and <w:pageBreakBefore/> start a new page.
func extractDOCX(data []byte) ([]core.Page, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}

	var body *zip.File
	for _, f := range reader.File {
		if f.Name == docxBody {
			body = f
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: missing %s", core.ErrCorruptDocument, docxBody)
	}

	rc, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	defer rc.Close()

	return parseDocumentXML(rc)
}

func parseDocumentXML(r io.Reader) ([]core.Page, error) {
	var (
		pages  []core.Page
		page   strings.Builder
		para   strings.Builder
		inText bool
	)
	flushPara := func() {
		if strings.TrimSpace(para.String()) != "" {
			if page.Len() > 0 {
				page.WriteString("\n\n")
			}
			page.WriteString(para.String())
		}
		para.Reset()
	}
	flushPage := func() {
		flushPara()
		pages = append(pages, core.Page{Number: len(pages) + 1, Text: page.String()})
		page.Reset()
	}

	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				if attr(t, "type") == "page" {
					flushPage()
				} else {
					para.WriteByte('\n')
				}
			case "pageBreakBefore":
				// Paragraph properties precede the runs, so para is still empty.
				if v := attr(t, "val"); (v == "" || v == "1" || v == "true") && page.Len() > 0 {
					flushPage()
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flushPara()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	flushPage()
	return pages, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
