// Package pdftext is the text-acquisition boundary: it turns a PDF file into
// plain text plus extraction metadata (page count, detected table regions,
// per-page failures). Pattern recognition and scoring live elsewhere; this
// package only acquires text.
package pdftext

import (
	"bytes"
	"context"

	"github.com/sells-group/contract-intel/internal/resilience"
)

// MaxFileSize is the declared upload limit for contract PDFs.
const MaxFileSize = 10 << 20 // 10 MB

var pdfMagic = []byte("%PDF-")

// Table is a tabular region detected in the extracted text. Rows exclude the
// header row.
type Table struct {
	Page   int        `json:"page"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Document is the output of text acquisition for one contract file.
type Document struct {
	Name      string   `json:"name"`
	Text      string   `json:"text"`
	PageCount int      `json:"page_count"`
	Tables    []Table  `json:"tables,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// Extractor acquires a Document from a PDF file on disk.
type Extractor interface {
	ExtractDocument(ctx context.Context, pdfPath string) (*Document, error)
}

// ValidateInput rejects non-PDF and oversize inputs before extraction begins.
func ValidateInput(name string, data []byte) error {
	if len(data) == 0 {
		return resilience.NewValidationError("pdftext: %s is empty", name)
	}
	if len(data) > MaxFileSize {
		return resilience.NewValidationError("pdftext: %s exceeds %d byte limit", name, MaxFileSize)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return resilience.NewValidationError("pdftext: %s is not a PDF", name)
	}
	return nil
}
