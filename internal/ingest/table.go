package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is an ordered tabular structure with named columns, the common input
// shape for schema normalization regardless of source format. All cells are
// strings; typed coercion happens in the normalizer.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadTable parses raw structured-file bytes into a Table based on the file
// extension (csv, xlsx, xls). The first row is treated as the header. A
// header-only table is valid; ErrEmptyInput is reserved for uploads with no
// content at all.
func ReadTable(data []byte, ext string) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	switch ext {
	case "csv":
		return readCSV(data)
	case "xlsx", "xls":
		return readWorkbook(data)
	default:
		return nil, fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
	}
}

// sniffDelimiter picks the CSV delimiter by counting candidate separators in
// the header line. Comma wins ties so plain CSV stays the default.
func sniffDelimiter(sample string) rune {
	if i := strings.IndexAny(sample, "\r\n"); i >= 0 {
		sample = sample[:i]
	}

	best := ','
	bestCount := strings.Count(sample, ",")
	for _, cand := range []rune{';', '\t', '|'} {
		if n := strings.Count(sample, string(cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

func readCSV(data []byte) (*Table, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyInput
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	table := &Table{Columns: header}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		table.Rows = append(table.Rows, padRow(record, len(header)))
	}

	return table, nil
}

// readWorkbook reads the first sheet of an Excel workbook. Legacy binary .xls
// files that excelize cannot open surface as parse errors.
func readWorkbook(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrEmptyInput
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	table := &Table{Columns: rows[0]}
	for _, row := range rows[1:] {
		table.Rows = append(table.Rows, padRow(row, len(rows[0])))
	}

	return table, nil
}

// padRow extends short records with empty cells so every row has one cell per
// header column. Extra trailing cells are kept; the normalizer ignores them.
func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
