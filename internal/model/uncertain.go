package model

import "time"

// UncertainReason explains why the extraction engine could not commit a value.
type UncertainReason string

const (
	ReasonAmbiguousMatch     UncertainReason = "ambiguous_match"
	ReasonConflictingMatches UncertainReason = "conflicting_matches"
	ReasonNoMatch            UncertainReason = "no_match"
	ReasonLowOCRQuality      UncertainReason = "low_ocr_quality"
	ReasonNonEnglish         UncertainReason = "non_english"
	ReasonMultiCurrency      UncertainReason = "multi_currency"
	ReasonRevenueShare       UncertainReason = "revenue_share"
)

// maxContextLen bounds the context snippet carried on an UncertainField so a
// reviewer sees enough surrounding text without dragging whole pages along.
const maxContextLen = 240

// UncertainField flags a field the extraction engine could not resolve
// confidently. It is created during extraction and transitions from
// unresolved to resolved exactly once, driven by a human answer.
type UncertainField struct {
	FieldPath       string          `json:"field_path"`
	Candidate       any             `json:"candidate,omitempty"`
	Reason          UncertainReason `json:"reason"`
	Context         string          `json:"context,omitempty"`
	Resolved        bool            `json:"resolved"`
	ResolutionValue any             `json:"resolution_value,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

// NewUncertainField creates an unresolved marker, truncating the context
// snippet to the bounded length.
func NewUncertainField(fieldPath string, candidate any, reason UncertainReason, context string) UncertainField {
	return UncertainField{
		FieldPath: fieldPath,
		Candidate: candidate,
		Reason:    reason,
		Context:   TruncateContext(context),
	}
}

// TruncateContext bounds a context snippet to maxContextLen runes.
func TruncateContext(s string) string {
	runes := []rune(s)
	if len(runes) <= maxContextLen {
		return s
	}
	return string(runes[:maxContextLen-3]) + "..."
}
