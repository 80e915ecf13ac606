package extract

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/cost"
	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
	"github.com/sells-group/contract-intel/internal/resilience"
	"github.com/sells-group/contract-intel/pkg/anthropic"
)

// maxPromptChars bounds how much contract text is sent to the model service.
const maxPromptChars = 8000

// defaultCallTimeout bounds a single model-service call.
const defaultCallTimeout = 30 * time.Second

const extractionSystem = "You are an expert contract analyst specializing in payment extraction. " +
	"Extract ALL payment information from contracts with high accuracy. " +
	"Ask for clarification when uncertain."

const extractionPrompt = `Extract ALL payment information from this contract. Return JSON with two sections:

{
  "extracted_data": {
    "client_name": "extracted client name or null",
    "total_value": numeric or null,
    "currency": "USD/EUR/etc",
    "start_date": "YYYY-MM-DD or null",
    "end_date": "YYYY-MM-DD or null",
    "payment_milestones": [
      {"amount": numeric, "due_date": "YYYY-MM-DD or null", "description": "text"}
    ],
    "payment_frequency": "one_time/monthly/quarterly/annual/hourly/milestone or null"
  },
  "clarifications_needed": [
    {
      "field": "field_name",
      "question": "specific question for the reviewer",
      "context": "relevant text from the contract"
    }
  ]
}

Contract text:
%s

CRITICAL RULES:
- If not 100% certain about ANY field, add a clarification
- NEVER guess dates, amounts, or names
- Extract ONLY what is explicitly written in the contract
- Use null for missing information
- Format dates as YYYY-MM-DD
- If no end date is stated, end_date must be null; never invent one

Return ONLY the JSON, no other text`

// LLMExtractor is the model-assisted extraction strategy: it delegates
// understanding to the Anthropic API with a fixed schema contract and
// validates the payload strictly at the boundary.
type LLMExtractor struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	costs   *cost.Calculator
}

// NewLLMExtractor creates the model-assisted strategy. A zero timeout uses
// the default 30s bound.
func NewLLMExtractor(client anthropic.Client, modelID string, timeout time.Duration) *LLMExtractor {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &LLMExtractor{
		client:  client,
		model:   modelID,
		timeout: timeout,
		costs:   cost.NewCalculator(cost.DefaultRates()),
	}
}

// Extract sends the contract text to the model service and validates the
// returned payload. Service failures surface as ExternalServiceError;
// malformed payloads as ParseError (the orchestrator falls back to pattern
// extraction on those).
func (e *LLMExtractor) Extract(ctx context.Context, doc *pdftext.Document) (*model.ExtractionResult, []model.UncertainField, error) {
	text := doc.Text
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	temp := 0.0
	resp, err := e.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   2000,
		System:      extractionSystem,
		Messages:    []anthropic.Message{{Role: "user", Content: strings.Replace(extractionPrompt, "%s", text, 1)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, nil, classifyServiceError(callCtx, err)
	}

	resp.Usage.LogUsage(e.model, "contract_extraction")
	if usd := e.costs.Claude(e.model, resp.Usage.InputTokens, resp.Usage.OutputTokens); usd > 0 {
		zap.L().Debug("extract: estimated model cost",
			zap.String("file", doc.Name), zap.Float64("usd", usd))
	}

	report, err := parsePayload(resp.Text())
	if err != nil {
		return nil, nil, err
	}

	uncertain := report.Uncertain
	uncertain = append(uncertain, structuralChecks(report.Result)...)

	zap.L().Info("extract: model-assisted pass complete",
		zap.String("file", doc.Name),
		zap.Int("milestones", len(report.Result.Milestones)),
		zap.Int("uncertain_fields", len(uncertain)),
		zap.Strings("red_flags", report.RedFlags),
	)

	return report.Result, uncertain, nil
}

// classifyServiceError maps transport failures onto the service error
// taxonomy so the retry policy can distinguish transient from fatal.
func classifyServiceError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return resilience.NewExternalServiceError(resilience.KindTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return resilience.NewExternalServiceError(resilience.KindAuth, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded"):
		return resilience.NewExternalServiceError(resilience.KindRateLimited, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return resilience.NewExternalServiceError(resilience.KindTimeout, err)
	default:
		return resilience.NewExternalServiceError(resilience.KindBadResponse,
			eris.Wrap(err, "extract: model call"))
	}
}

// structuralChecks flags fields that are suspicious after validation even
// when the service did not mark them uncertain.
func structuralChecks(res *model.ExtractionResult) []model.UncertainField {
	var out []model.UncertainField
	if res.StartDate != nil && res.EndDate != nil && res.EndDate.Before(*res.StartDate) {
		out = append(out, model.NewUncertainField(
			"end_date", res.EndDate.Format("2006-01-02"), model.ReasonConflictingMatches,
			"model returned an end date earlier than the start date"))
	}
	if res.TotalValue != nil && len(res.Milestones) == 0 && res.PaymentFrequency == model.FrequencyMilestone {
		out = append(out, model.NewUncertainField(
			"milestones", nil, model.ReasonNoMatch,
			"milestone frequency reported but no milestones extracted"))
	}
	return out
}
