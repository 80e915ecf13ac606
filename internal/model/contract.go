package model

import (
	"sort"
	"time"
)

// PaymentFrequency classifies how often a contract pays out.
type PaymentFrequency string

const (
	FrequencyOneTime   PaymentFrequency = "one_time"
	FrequencyMonthly   PaymentFrequency = "monthly"
	FrequencyQuarterly PaymentFrequency = "quarterly"
	FrequencyAnnual    PaymentFrequency = "annual"
	FrequencyHourly    PaymentFrequency = "hourly"
	FrequencyMilestone PaymentFrequency = "milestone"
	FrequencyUnknown   PaymentFrequency = "unknown"
)

// ParseFrequency maps free-form frequency strings (as returned by the model
// service or stored records) to a PaymentFrequency. Unrecognized values map
// to FrequencyUnknown.
func ParseFrequency(s string) PaymentFrequency {
	switch s {
	case "one_time", "one-time", "once":
		return FrequencyOneTime
	case "monthly":
		return FrequencyMonthly
	case "quarterly":
		return FrequencyQuarterly
	case "annual", "annually", "yearly":
		return FrequencyAnnual
	case "hourly":
		return FrequencyHourly
	case "milestone":
		return FrequencyMilestone
	default:
		return FrequencyUnknown
	}
}

// Milestone is one expected payment event extracted from a contract.
// Insertion order in ExtractionResult.Milestones is document order, not
// necessarily chronological.
type Milestone struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Amount         *float64   `json:"amount,omitempty"`
	PercentOfTotal *float64   `json:"percent_of_total,omitempty"`
}

// ExtractionResult is the structured output of one extraction pass over a
// contract's text. Optional fields stay nil when the text does not commit a
// value; in particular a nil EndDate means ongoing/perpetual and is never
// defaulted here.
type ExtractionResult struct {
	ClientName       *string             `json:"client_name,omitempty"`
	Currency         string              `json:"currency"`
	TotalValue       *float64            `json:"total_value,omitempty"`
	StartDate        *time.Time          `json:"start_date,omitempty"`
	EndDate          *time.Time          `json:"end_date,omitempty"`
	PaymentFrequency PaymentFrequency    `json:"payment_frequency"`
	Milestones       []Milestone         `json:"milestones,omitempty"`
	RawSignals       map[string][]string `json:"raw_signals,omitempty"`
}

// NewExtractionResult returns an ExtractionResult with defaults applied
// (USD currency, unknown frequency, empty signal map).
func NewExtractionResult() *ExtractionResult {
	return &ExtractionResult{
		Currency:         "USD",
		PaymentFrequency: FrequencyUnknown,
		RawSignals:       make(map[string][]string),
	}
}

// AddSignal appends a matched value under the given signal name. Signals are
// append-only during extraction and kept for audit/debugging.
func (r *ExtractionResult) AddSignal(name, value string) {
	if r.RawSignals == nil {
		r.RawSignals = make(map[string][]string)
	}
	r.RawSignals[name] = append(r.RawSignals[name], value)
}

// SignalNames returns the raw signal names in sorted order, for deterministic
// logging and serialization.
func (r *ExtractionResult) SignalNames() []string {
	names := make([]string, 0, len(r.RawSignals))
	for name := range r.RawSignals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy. The clarification resolver merges answers into a
// copy so the base extraction stays auditable.
func (r *ExtractionResult) Clone() *ExtractionResult {
	out := *r
	out.Milestones = make([]Milestone, len(r.Milestones))
	copy(out.Milestones, r.Milestones)
	if r.ClientName != nil {
		v := *r.ClientName
		out.ClientName = &v
	}
	if r.TotalValue != nil {
		v := *r.TotalValue
		out.TotalValue = &v
	}
	if r.StartDate != nil {
		v := *r.StartDate
		out.StartDate = &v
	}
	if r.EndDate != nil {
		v := *r.EndDate
		out.EndDate = &v
	}
	for i := range out.Milestones {
		m := &out.Milestones[i]
		if m.DueDate != nil {
			v := *m.DueDate
			m.DueDate = &v
		}
		if m.Amount != nil {
			v := *m.Amount
			m.Amount = &v
		}
		if m.PercentOfTotal != nil {
			v := *m.PercentOfTotal
			m.PercentOfTotal = &v
		}
	}
	out.RawSignals = make(map[string][]string, len(r.RawSignals))
	for k, vals := range r.RawSignals {
		out.RawSignals[k] = append([]string(nil), vals...)
	}
	return &out
}
