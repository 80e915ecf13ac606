package pdftext

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/resilience"
)

func TestValidateInput(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid PDF", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, ValidateInput("contract.pdf", []byte("%PDF-1.7\n...")))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, ValidateInput("contract.pdf", nil))
	})

	t.Run("rejects non-PDF content", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, ValidateInput("contract.pdf", []byte("PK\x03\x04 not a pdf")))
	})

	t.Run("rejects oversize input", func(t *testing.T) {
		t.Parallel()
		big := bytes.Repeat([]byte{'x'}, MaxFileSize+1)
		copy(big, "%PDF-")
		assert.Error(t, ValidateInput("contract.pdf", big))
	})
}

func TestDetectTables(t *testing.T) {
	t.Parallel()

	t.Run("detects an aligned payment schedule", func(t *testing.T) {
		t.Parallel()
		page := "Payment Schedule\n" +
			"Milestone          Due Date      Amount\n" +
			"Kickoff            01/15/2025    $10,000\n" +
			"Design complete    03/01/2025    $25,000\n" +
			"Final delivery     06/30/2025    $15,000\n" +
			"\n" +
			"All invoices are due Net 30.\n"

		tables := DetectTables(page, 1)
		require.Len(t, tables, 1)
		assert.Equal(t, 1, tables[0].Page)
		assert.Equal(t, []string{"Milestone", "Due Date", "Amount"}, tables[0].Header)
		require.Len(t, tables[0].Rows, 3)
		assert.Equal(t, []string{"Kickoff", "01/15/2025", "$10,000"}, tables[0].Rows[0])
	})

	t.Run("ignores prose", func(t *testing.T) {
		t.Parallel()
		page := "This agreement is made between the parties.\nPayment is due monthly.\n"
		assert.Empty(t, DetectTables(page, 1))
	})

	t.Run("requires at least header plus one row", func(t *testing.T) {
		t.Parallel()
		page := "Milestone          Due Date      Amount\nsome prose follows here\n"
		assert.Empty(t, DetectTables(page, 1))
	})

	t.Run("splits on column count change", func(t *testing.T) {
		t.Parallel()
		page := "Item      Amount\n" +
			"Kickoff   $10,000\n" +
			"Phase     Date        Amount\n" +
			"One       01/01/2025  $5,000\n"
		tables := DetectTables(page, 2)
		require.Len(t, tables, 2)
		assert.Len(t, tables[0].Header, 2)
		assert.Len(t, tables[1].Header, 3)
	})
}

func TestExtractDocumentValidatesBeforeRunning(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// A binary name that cannot resolve: reaching exec at all would surface
	// a different error shape than the validation failures asserted here.
	p := NewPdfToText(filepath.Join(dir, "no-such-pdftotext"))

	t.Run("non-PDF file", func(t *testing.T) {
		path := filepath.Join(dir, "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("plain text, no magic bytes"), 0644))

		_, err := p.ExtractDocument(context.Background(), path)
		var ve *resilience.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.pdf")
		require.NoError(t, os.WriteFile(path, nil, 0644))

		_, err := p.ExtractDocument(context.Background(), path)
		var ve *resilience.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("missing file is an I/O error, not a validation failure", func(t *testing.T) {
		_, err := p.ExtractDocument(context.Background(), filepath.Join(dir, "missing.pdf"))
		require.Error(t, err)
		var ve *resilience.ValidationError
		assert.False(t, errors.As(err, &ve))
	})
}
