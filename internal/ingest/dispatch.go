package ingest

import (
	"path/filepath"
	"strings"
)

// UploadKind is the dispatch path for an upload, resolved exactly once at the
// ingestion entry point from the filename extension.
type UploadKind int

const (
	// KindUnsupported marks extensions outside both accepted sets.
	KindUnsupported UploadKind = iota

	// KindStructured marks tabular event logs (csv, xlsx, xls).
	KindStructured

	// KindUnstructured marks free-form documents (txt, docx, pdf).
	KindUnstructured
)

var structuredExtensions = map[string]bool{
	"csv":  true,
	"xlsx": true,
	"xls":  true,
}

var unstructuredExtensions = map[string]bool{
	"txt":  true,
	"docx": true,
	"pdf":  true,
}

// Classify resolves the upload kind and normalized extension for a filename.
// Extension matching is case-insensitive.
func Classify(filename string) (UploadKind, string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch {
	case structuredExtensions[ext]:
		return KindStructured, ext
	case unstructuredExtensions[ext]:
		return KindUnstructured, ext
	default:
		return KindUnsupported, ext
	}
}
