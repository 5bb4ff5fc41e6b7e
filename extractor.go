package docquiz

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPages turns raw PDF bytes into ordered per-page plain text.
// Pages are numbered from 1. A page whose text cannot be decoded is
// emitted empty rather than failing the whole document; a document that
// yields no readable pages at all is a validation failure.
func ExtractPages(data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, Validationf("empty document")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, Validationf("unreadable pdf: %v", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, Validationf("pdf has no pages")
	}

	pages := make([]Page, 0, numPages)
	readable := 0
	for i := 1; i <= numPages; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Page: i})
			continue
		}

		text, err := p.GetPlainText(nil)
		if err != nil {
			VerboseLog("page %d: text extraction failed: %v", i, err)
			pages = append(pages, Page{Page: i})
			continue
		}

		text = strings.TrimSpace(text)
		if text != "" {
			readable++
		}
		pages = append(pages, Page{Page: i, Text: text})
	}

	if readable == 0 {
		return nil, Validationf("pdf contains no extractable text across %d pages", numPages)
	}

	VerboseLog("extracted %d pages (%d readable)", numPages, readable)
	return pages, nil
}
