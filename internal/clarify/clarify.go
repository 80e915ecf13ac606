// Package clarify manages the human-in-the-loop resolution of uncertain
// extraction fields: generating reviewer questions, accepting write-once
// answers, and merging resolved values back into the extraction result.
package clarify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/resilience"
)

// State is the lifecycle position of a clarification set.
type State string

const (
	StateNoClarificationNeeded State = "no_clarification_needed"
	StateAwaitingAnswers       State = "awaiting_answers"
	StatePartiallyResolved     State = "partially_resolved"
	StateFullyResolved         State = "fully_resolved"
	StateApplied               State = "applied"
)

// UnknownFieldError is returned when an answer targets a field path that was
// never flagged uncertain.
type UnknownFieldError struct {
	FieldPath string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("no uncertain field %q", e.FieldPath)
}

// AlreadyResolvedError enforces write-once answers: a resolved field cannot
// be answered again.
type AlreadyResolvedError struct {
	FieldPath string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("field %q is already resolved", e.FieldPath)
}

// Question is one reviewer-facing prompt derived from an uncertain field.
type Question struct {
	FieldPath string `json:"field_path"`
	Prompt    string `json:"prompt"`
	Context   string `json:"context,omitempty"`
	Candidate any    `json:"candidate,omitempty"`
}

var milestonePathRe = regexp.MustCompile(`^milestones\[(\d+)\]\.(name|description|amount|due_date)$`)

var answerDateLayouts = []string{"2006-01-02", time.RFC3339, "1/2/2006", "January 2, 2006", "Jan 2, 2006"}

// Resolver tracks the uncertain fields of one extraction through answering
// and application. Not safe for concurrent use.
type Resolver struct {
	base    *model.ExtractionResult
	fields  []model.UncertainField
	applied bool
	now     func() time.Time
}

// NewResolver wraps an extraction and its uncertain fields. The field slice
// is copied; the caller's slice is not mutated.
func NewResolver(base *model.ExtractionResult, fields []model.UncertainField) *Resolver {
	return &Resolver{
		base:   base,
		fields: append([]model.UncertainField(nil), fields...),
		now:    time.Now,
	}
}

// State derives the lifecycle position from the resolution counts.
func (r *Resolver) State() State {
	if len(r.fields) == 0 {
		return StateNoClarificationNeeded
	}
	resolved := len(r.fields) - r.Pending()
	switch {
	case resolved == len(r.fields) && r.applied:
		return StateApplied
	case resolved == len(r.fields):
		return StateFullyResolved
	case resolved > 0:
		return StatePartiallyResolved
	default:
		return StateAwaitingAnswers
	}
}

// Pending counts fields still awaiting an answer.
func (r *Resolver) Pending() int {
	n := 0
	for _, f := range r.fields {
		if !f.Resolved {
			n++
		}
	}
	return n
}

// Fields returns a copy of the tracked uncertain fields.
func (r *Resolver) Fields() []model.UncertainField {
	return append([]model.UncertainField(nil), r.fields...)
}

// Questions generates one reviewer prompt per unresolved field, in flag
// order.
func (r *Resolver) Questions() []Question {
	var out []Question
	for _, f := range r.fields {
		if f.Resolved {
			continue
		}
		out = append(out, Question{
			FieldPath: f.FieldPath,
			Prompt:    promptFor(f),
			Context:   f.Context,
			Candidate: f.Candidate,
		})
	}
	return out
}

func promptFor(f model.UncertainField) string {
	switch f.Reason {
	case model.ReasonNoMatch:
		return fmt.Sprintf("No value for %s was found in the contract. What is the correct value?", f.FieldPath)
	case model.ReasonAmbiguousMatch:
		if f.Candidate != nil {
			return fmt.Sprintf("Found %v for %s, but the match is ambiguous. Confirm or correct it.", f.Candidate, f.FieldPath)
		}
		return fmt.Sprintf("The value for %s is ambiguous. What is the correct value?", f.FieldPath)
	case model.ReasonConflictingMatches:
		return fmt.Sprintf("The contract contains conflicting values for %s. Which is correct?", f.FieldPath)
	case model.ReasonMultiCurrency:
		return "The contract mentions more than one currency. Which currency governs the payment amounts?"
	case model.ReasonLowOCRQuality:
		return fmt.Sprintf("The text around %s is low quality. Please verify the value against the source document.", f.FieldPath)
	case model.ReasonNonEnglish:
		return fmt.Sprintf("The passage for %s is not in English. Please provide the value.", f.FieldPath)
	case model.ReasonRevenueShare:
		return fmt.Sprintf("The amount for %s depends on a revenue share. What fixed value, if any, applies?", f.FieldPath)
	default:
		return fmt.Sprintf("Please confirm the value for %s.", f.FieldPath)
	}
}

// AnswerField records a reviewer answer for one uncertain field. Answers are
// write-once: resolving an already-resolved field fails with
// AlreadyResolvedError. The value is validated against the field's type
// before the resolution is recorded.
func (r *Resolver) AnswerField(fieldPath string, value any) error {
	idx := -1
	for i := range r.fields {
		if r.fields[i].FieldPath == fieldPath {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &UnknownFieldError{FieldPath: fieldPath}
	}
	if r.fields[idx].Resolved {
		return &AlreadyResolvedError{FieldPath: fieldPath}
	}

	coerced, err := coerceValue(fieldPath, value)
	if err != nil {
		return err
	}

	now := r.now().UTC()
	r.fields[idx].Resolved = true
	r.fields[idx].ResolutionValue = coerced
	r.fields[idx].ResolvedAt = &now

	zap.L().Info("clarify: field resolved",
		zap.String("field", fieldPath),
		zap.Int("pending", r.Pending()),
	)
	return nil
}

// ApplyResolved merges every resolved answer into a copy of the base
// extraction and returns it with the count of still-pending fields. Merging
// is incremental and idempotent: calling it again after more answers merges
// the new resolutions without disturbing earlier ones, and the base
// extraction is never mutated.
func (r *Resolver) ApplyResolved() (*model.ExtractionResult, int, error) {
	if r.base == nil {
		return nil, r.Pending(), resilience.NewValidationError("no extraction result to merge answers into")
	}
	merged := r.base.Clone()
	for _, f := range r.fields {
		if !f.Resolved {
			continue
		}
		if err := mergeField(merged, f.FieldPath, f.ResolutionValue); err != nil {
			return nil, r.Pending(), err
		}
	}
	pending := r.Pending()
	if pending == 0 && len(r.fields) > 0 {
		r.applied = true
	}
	return merged, pending, nil
}

// coerceValue validates and normalizes an answer for its target field.
// String answers are parsed into the field's native type; structurally wrong
// values are rejected as validation errors.
func coerceValue(fieldPath string, value any) (any, error) {
	if m := milestonePathRe.FindStringSubmatch(fieldPath); m != nil {
		switch m[2] {
		case "amount":
			return coerceAmount(fieldPath, value)
		case "due_date":
			return coerceDate(fieldPath, value)
		default:
			return coerceString(fieldPath, value)
		}
	}

	switch fieldPath {
	case "client_name":
		return coerceString(fieldPath, value)
	case "total_value":
		return coerceAmount(fieldPath, value)
	case "currency":
		s, err := coerceString(fieldPath, value)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s.(string)), nil
	case "start_date", "end_date":
		return coerceDate(fieldPath, value)
	case "payment_frequency":
		s, err := coerceString(fieldPath, value)
		if err != nil {
			return nil, err
		}
		freq := model.ParseFrequency(s.(string))
		if freq == model.FrequencyUnknown {
			return nil, resilience.NewValidationError("unrecognized payment frequency %q", s)
		}
		return freq, nil
	default:
		// Fields with no merge target (e.g. the milestone-sum consistency
		// flag) accept any answer; it is recorded for audit only.
		return value, nil
	}
}

func coerceString(fieldPath string, value any) (any, error) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil, resilience.NewValidationError("field %s requires a non-empty string", fieldPath)
	}
	return strings.TrimSpace(s), nil
}

func coerceAmount(fieldPath string, value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, v)
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f, nil
		}
	}
	return nil, resilience.NewValidationError("field %s requires a numeric amount", fieldPath)
}

func coerceDate(fieldPath string, value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		for _, layout := range answerDateLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
	}
	return nil, resilience.NewValidationError("field %s requires a date (YYYY-MM-DD)", fieldPath)
}

// mergeField writes one resolved value into the extraction copy.
func mergeField(res *model.ExtractionResult, fieldPath string, value any) error {
	if m := milestonePathRe.FindStringSubmatch(fieldPath); m != nil {
		idx, _ := strconv.Atoi(m[1])
		if idx >= len(res.Milestones) {
			return resilience.NewValidationError("milestone index %d out of range", idx)
		}
		ms := &res.Milestones[idx]
		switch m[2] {
		case "name":
			ms.Name = value.(string)
		case "description":
			ms.Description = value.(string)
		case "amount":
			v := value.(float64)
			ms.Amount = &v
		case "due_date":
			v := value.(time.Time)
			ms.DueDate = &v
		}
		return nil
	}

	switch fieldPath {
	case "client_name":
		v := value.(string)
		res.ClientName = &v
	case "total_value":
		v := value.(float64)
		res.TotalValue = &v
	case "currency":
		res.Currency = value.(string)
	case "start_date":
		v := value.(time.Time)
		res.StartDate = &v
	case "end_date":
		v := value.(time.Time)
		res.EndDate = &v
	case "payment_frequency":
		res.PaymentFrequency = value.(model.PaymentFrequency)
	}
	return nil
}
