package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDOCX extracts paragraph and table text from an OOXML word document.
// A .docx file is a zip archive; all visible body text lives in
// word/document.xml as w:t runs inside w:p paragraphs, with tables as
// w:tbl > w:tr > w:tc nesting. Paragraphs become blocks, table rows become
// "cell | cell" lines, and blocks are joined with blank-line separators.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a valid docx archive: %v", ErrParse, err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrParse, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: docx archive has no word/document.xml", ErrParse)
	}
	defer docXML.Close()

	return walkDocumentXML(docXML)
}

// walkDocumentXML streams the document body once, accumulating paragraph and
// table-row blocks in document order.
func walkDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var blocks []string
	var para strings.Builder // current paragraph outside tables
	var cell strings.Builder // current table cell
	var row []string         // cells of the current table row
	tableDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed document.xml: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth > 0 {
					row = row[:0]
				}
			case "tc":
				cell.Reset()
			case "t":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("%w: malformed text run: %v", ErrParse, err)
				}
				if tableDepth > 0 {
					cell.WriteString(text)
				} else {
					para.WriteString(text)
				}
			case "tab":
				if tableDepth == 0 {
					para.WriteString("\t")
				}
			case "br":
				if tableDepth == 0 {
					para.WriteString("\n")
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				if tableDepth > 0 {
					tableDepth--
				}
			case "tr":
				if tableDepth > 0 && len(row) > 0 {
					blocks = append(blocks, strings.Join(row, " | "))
				}
			case "tc":
				if text := strings.TrimSpace(cell.String()); text != "" {
					row = append(row, text)
				}
			case "p":
				if tableDepth == 0 {
					if text := strings.TrimSpace(para.String()); text != "" {
						blocks = append(blocks, text)
					}
					para.Reset()
				}
			}
		}
	}

	return strings.Join(blocks, "\n\n"), nil
}
