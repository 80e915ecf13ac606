package pdftext

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PdfToText acquires text using the pdftotext CLI tool in layout mode.
// Layout mode preserves column alignment, which the table detector relies on.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractDocument validates the file, then runs pdftotext -layout and
// assembles a Document. Pages are delimited by form feeds in pdftotext
// output.
func (p *PdfToText) ExtractDocument(ctx context.Context, pdfPath string) (*Document, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftext: read %s", pdfPath)
	}
	if err := ValidateInput(filepath.Base(pdfPath), data); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "pdftext: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	doc := &Document{
		Name: filepath.Base(pdfPath),
		Text: stdout.String(),
	}

	pages := strings.Split(doc.Text, "\f")
	// pdftotext ends output with a trailing form feed.
	if len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	doc.PageCount = len(pages)

	for i, page := range pages {
		doc.Tables = append(doc.Tables, DetectTables(page, i+1)...)
	}

	// pdftotext writes per-page warnings to stderr without failing.
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		for _, line := range strings.Split(msg, "\n") {
			doc.Errors = append(doc.Errors, strings.TrimSpace(line))
		}
	}

	zap.L().Debug("pdftext: document acquired",
		zap.String("file", doc.Name),
		zap.Int("pages", doc.PageCount),
		zap.Int("tables", len(doc.Tables)),
		zap.Int("chars", len(doc.Text)),
	)

	return doc, nil
}
