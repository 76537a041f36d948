package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor produces plain text from a typed document payload.
type Extractor struct{}

// NewExtractor creates a text extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the file extension (txt, docx, pdf) and returns the
// extracted plain text, trimmed of surrounding whitespace. An upload whose
// text trims to nothing is a client error (ErrNoContent) since it cannot be
// indexed.
func (x *Extractor) Extract(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyInput
	}

	var (
		text string
		err  error
	)
	switch ext {
	case "txt":
		text, err = decodeText(data)
	case "docx":
		text, err = extractDOCX(data)
	case "pdf":
		text, err = extractPDF(data)
	default:
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// extractPDF pulls plain text out of every page, labeled with a page marker
// so chunk provenance survives retrieval. Pages that fail to parse are
// skipped rather than failing the whole document.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrParse, err)
	}

	var sections []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}

		sections = append(sections, fmt.Sprintf("--- Page %d ---\n%s", i, pageText))
	}

	return strings.Join(sections, "\n\n"), nil
}
