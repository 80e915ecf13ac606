package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/resilience"
)

// knownDataKeys is the fixed schema of the extracted_data object. Anything
// else in the payload is dropped with a warning rather than trusted.
var knownDataKeys = map[string]struct{}{
	"client_name":        {},
	"total_value":        {},
	"currency":           {},
	"start_date":         {},
	"end_date":           {},
	"payment_frequency":  {},
	"payment_milestones": {},
	"confidence_score":   {},
}

// payloadClarification mirrors one entry of clarifications_needed.
type payloadClarification struct {
	Field    string `json:"field"`
	Question string `json:"question"`
	Context  string `json:"context"`
}

// payloadMilestone mirrors one entry of payment_milestones. Amounts and dates
// arrive as loosely typed JSON and are validated individually.
type payloadMilestone struct {
	Amount      json.RawMessage `json:"amount"`
	DueDate     json.RawMessage `json:"due_date"`
	Description string          `json:"description"`
}

// payloadReport is the validated outcome of one model response.
type payloadReport struct {
	Result    *model.ExtractionResult
	Uncertain []model.UncertainField
	RedFlags  []string
}

// parsePayload validates a model response against the fixed schema. Any
// response that cannot yield a usable envelope is a ParseError; individually
// malformed fields are dropped (logged) rather than failing the whole pass.
func parsePayload(raw string) (*payloadReport, error) {
	cleaned := stripFences(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, resilience.NewParseError("empty model response", nil)
	}

	var envelope struct {
		ExtractedData  map[string]json.RawMessage `json:"extracted_data"`
		Clarifications []payloadClarification     `json:"clarifications_needed"`
	}
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return nil, resilience.NewParseError("invalid payload JSON", err)
	}
	if envelope.ExtractedData == nil {
		return nil, resilience.NewParseError("payload missing extracted_data", nil)
	}

	dropUnknownKeys(envelope.ExtractedData)

	report := &payloadReport{Result: model.NewExtractionResult()}
	res := report.Result

	if s, ok := stringField(envelope.ExtractedData, "client_name"); ok {
		res.ClientName = &s
	}
	if v, ok := numberField(envelope.ExtractedData, "total_value"); ok {
		res.TotalValue = &v
	}
	if s, ok := stringField(envelope.ExtractedData, "currency"); ok {
		code := strings.ToUpper(strings.TrimSpace(s))
		if validCurrencyCode(code) {
			res.Currency = code
		} else {
			zap.L().Warn("extract: dropping invalid currency code", zap.String("code", s))
		}
	}
	if d, ok := dateField(envelope.ExtractedData, "start_date"); ok {
		res.StartDate = &d
	}
	if d, ok := dateField(envelope.ExtractedData, "end_date"); ok {
		res.EndDate = &d
	}
	if s, ok := stringField(envelope.ExtractedData, "payment_frequency"); ok {
		res.PaymentFrequency = model.ParseFrequency(s)
	}

	res.Milestones = parseMilestones(envelope.ExtractedData["payment_milestones"])
	for i := range res.Milestones {
		if res.TotalValue != nil && res.Milestones[i].Amount != nil {
			res.Milestones[i].PercentOfTotal = percentOf(*res.Milestones[i].Amount, *res.TotalValue)
		}
	}

	for _, c := range envelope.Clarifications {
		if c.Field == "" || c.Question == "" {
			zap.L().Warn("extract: dropping malformed clarification",
				zap.String("field", c.Field))
			continue
		}
		uf := model.NewUncertainField(c.Field, nil, model.ReasonAmbiguousMatch, c.Context)
		uf.Context = model.TruncateContext(strings.TrimSpace(c.Question + " " + c.Context))
		report.Uncertain = append(report.Uncertain, uf)
		report.RedFlags = append(report.RedFlags, "clarification:"+c.Field)
	}

	return report, nil
}

// stripFences removes a surrounding markdown code fence, which the model
// sometimes adds despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func dropUnknownKeys(data map[string]json.RawMessage) {
	var unknown []string
	for k := range data {
		if _, ok := knownDataKeys[k]; !ok {
			unknown = append(unknown, k)
			delete(data, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		zap.L().Warn("extract: dropping unknown payload keys", zap.Strings("keys", unknown))
	}
}

// stringField reads a non-null, non-empty string value.
func stringField(data map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := data[key]
	if !ok || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		zap.L().Warn("extract: dropping non-string payload field", zap.String("key", key))
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return "", false
	}
	return s, true
}

// numberField reads a numeric value. String-wrapped numbers like "$50,000"
// are tolerated and cleaned; anything else is dropped with a warning.
func numberField(data map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := data[key]
	if !ok || isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, ok := parseAmount(s); ok {
			return v, true
		}
	}
	zap.L().Warn("extract: dropping non-numeric payload field", zap.String("key", key))
	return 0, false
}

// dateField reads an ISO date (other known layouts tolerated); invalid dates
// are dropped with a warning, never guessed.
func dateField(data map[string]json.RawMessage, key string) (time.Time, bool) {
	raw, present := data[key]
	if !present || isNull(raw) {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		zap.L().Warn("extract: dropping non-string date field", zap.String("key", key))
		return time.Time{}, false
	}
	d, parsed := parseDate(s)
	if !parsed {
		zap.L().Warn("extract: dropping unparseable date", zap.String("key", key), zap.String("value", s))
		return time.Time{}, false
	}
	return d, true
}

func parseMilestones(raw json.RawMessage) []model.Milestone {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var items []payloadMilestone
	if err := json.Unmarshal(raw, &items); err != nil {
		zap.L().Warn("extract: dropping malformed payment_milestones")
		return nil
	}
	var out []model.Milestone
	for i, it := range items {
		m := model.Milestone{
			Name:        it.Description,
			Description: it.Description,
		}
		if m.Name == "" {
			m.Name = fmt.Sprintf("Milestone %d", i+1)
		}
		if !isNull(it.Amount) && len(it.Amount) > 0 {
			var f float64
			if err := json.Unmarshal(it.Amount, &f); err == nil {
				m.Amount = &f
			} else {
				var s string
				if err := json.Unmarshal(it.Amount, &s); err == nil {
					if v, ok := parseAmount(s); ok {
						m.Amount = &v
					}
				}
			}
		}
		if !isNull(it.DueDate) && len(it.DueDate) > 0 {
			var s string
			if err := json.Unmarshal(it.DueDate, &s); err == nil {
				if d, ok := parseDate(s); ok {
					m.DueDate = &d
				}
			}
		}
		out = append(out, m)
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
}
