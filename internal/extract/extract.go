// Package extract converts acquired contract text into a structured
// ExtractionResult plus UncertainField markers. Two interchangeable
// strategies implement the Extractor interface: a deterministic pattern
// battery and a model-assisted extractor that delegates understanding to the
// Anthropic API and validates the payload at the boundary.
package extract

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
)

// Extractor is the common contract both strategies satisfy. Extract must be
// idempotent: the same document yields an identical result and marker list,
// with no wall-clock-dependent fields and deterministic ordering.
type Extractor interface {
	Extract(ctx context.Context, doc *pdftext.Document) (*model.ExtractionResult, []model.UncertainField, error)
}

// Required field paths. A pattern extraction that finds nothing for one of
// these raises an UncertainField with reason no_match.
var requiredFields = []string{
	"client_name",
	"total_value",
	"currency",
	"payment_frequency",
	"start_date",
}

// dateLayouts are tried in order, US-style first.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"1-2-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
}

// parseAmount strips currency symbols and thousands separators and parses the
// remainder as a float. Returns false when no usable number remains.
func parseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseDate tries the known layouts and normalizes to UTC midnight.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// validCurrencyCode reports whether code is a well-formed ISO 4217 unit.
func validCurrencyCode(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}

// percentOf derives a milestone's share of the contract total.
func percentOf(amount, total float64) *float64 {
	if total == 0 {
		return nil
	}
	pct := amount / total * 100
	return &pct
}
