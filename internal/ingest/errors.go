package ingest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat indicates a file extension outside the accepted
	// structured (csv, xlsx, xls) and unstructured (txt, docx, pdf) sets.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptyInput indicates a zero-byte upload or a table with no data rows.
	ErrEmptyInput = errors.New("file is empty or contains no data")

	// ErrNoContent indicates a document that extracted to nothing but
	// whitespace. A zero-content document cannot be meaningfully indexed.
	ErrNoContent = errors.New("no text content extracted from file")

	// ErrParse indicates malformed tabular data that the reader could not
	// decode (bad CSV quoting, corrupt workbook, etc.).
	ErrParse = errors.New("failed to parse file")

	// ErrFileTooLarge indicates an upload above the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

	// ErrProjectBusy indicates a concurrent ingestion attempt against a
	// project that already has a run in flight. Callers should retry after
	// the current run reaches a terminal status.
	ErrProjectBusy = errors.New("project already has an ingestion in progress")

	// ErrInvalidChunkConfig indicates chunker settings that could never
	// terminate (overlap >= chunk size) or are otherwise nonsensical.
	ErrInvalidChunkConfig = errors.New("invalid chunker configuration")
)

// SchemaValidationError reports the required event-log columns that were
// missing after column-name normalization and alias resolution. It is always
// a client error.
type SchemaValidationError struct {
	MissingColumns []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.MissingColumns, ", "))
}

// IsClientError reports whether err belongs to the validation class of the
// taxonomy: errors caused by the uploaded file rather than by the service.
// These are surfaced as 4xx-equivalent responses and never retried.
func IsClientError(err error) bool {
	var sve *SchemaValidationError
	if errors.As(err, &sve) {
		return true
	}
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrNoContent) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrFileTooLarge)
}
