package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/resilience"
	"github.com/sells-group/contract-intel/pkg/anthropic"
)

// stubClient records the last request and returns a canned response.
type stubClient struct {
	resp *anthropic.MessageResponse
	err  error
	req  anthropic.MessageRequest
}

func (s *stubClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func TestLLMExtractorSuccess(t *testing.T) {
	t.Parallel()

	stub := &stubClient{resp: textResponse(`{
  "extracted_data": {
    "client_name": "Acme Corp",
    "total_value": 75000,
    "currency": "USD",
    "start_date": "2024-02-01",
    "payment_frequency": "milestone",
    "payment_milestones": [
      {"amount": 25000, "due_date": "2024-03-01", "description": "Phase 1"},
      {"amount": 50000, "due_date": "2024-06-01", "description": "Phase 2"}
    ]
  },
  "clarifications_needed": []
}`)}

	ex := NewLLMExtractor(stub, "claude-sonnet-4-5", 0)
	res, uncertain, err := ex.Extract(context.Background(), textDoc("Agreement between Acme Corp and vendor."))
	require.NoError(t, err)

	require.NotNil(t, res.ClientName)
	assert.Equal(t, "Acme Corp", *res.ClientName)
	require.NotNil(t, res.TotalValue)
	assert.Equal(t, 75000.0, *res.TotalValue)
	assert.Equal(t, model.FrequencyMilestone, res.PaymentFrequency)
	require.Len(t, res.Milestones, 2)
	require.NotNil(t, res.Milestones[0].DueDate)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *res.Milestones[0].DueDate)
	assert.Empty(t, uncertain)

	// Request shape: fixed schema prompt with the contract text inlined,
	// deterministic sampling.
	assert.Equal(t, "claude-sonnet-4-5", stub.req.Model)
	require.Len(t, stub.req.Messages, 1)
	assert.Contains(t, stub.req.Messages[0].Content, "Agreement between Acme Corp")
	assert.Contains(t, stub.req.Messages[0].Content, "extracted_data")
	require.NotNil(t, stub.req.Temperature)
	assert.Equal(t, 0.0, *stub.req.Temperature)
}

func TestLLMExtractorTruncatesLongText(t *testing.T) {
	t.Parallel()

	stub := &stubClient{resp: textResponse(`{"extracted_data": {}}`)}
	ex := NewLLMExtractor(stub, "claude-sonnet-4-5", 0)

	long := strings.Repeat("x", maxPromptChars+500)
	_, _, err := ex.Extract(context.Background(), textDoc(long))
	require.NoError(t, err)
	assert.Less(t, len(stub.req.Messages[0].Content), maxPromptChars+len(extractionPrompt))
}

func TestLLMExtractorServiceErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		kind      resilience.ServiceErrorKind
		transient bool
	}{
		{"rate limited", errors.New("anthropic: 429 too many requests"), resilience.KindRateLimited, true},
		{"auth", errors.New("anthropic: 401 invalid api key"), resilience.KindAuth, false},
		{"timeout", errors.New("request timeout while waiting for response"), resilience.KindTimeout, true},
		{"other", errors.New("unexpected EOF"), resilience.KindBadResponse, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex := NewLLMExtractor(&stubClient{err: tc.err}, "claude-sonnet-4-5", 0)
			_, _, err := ex.Extract(context.Background(), textDoc("some contract"))
			require.Error(t, err)

			var se *resilience.ExternalServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.kind, se.Kind)
			assert.Equal(t, tc.transient, resilience.IsTransient(err))
		})
	}
}

func TestLLMExtractorMalformedPayload(t *testing.T) {
	t.Parallel()

	ex := NewLLMExtractor(&stubClient{resp: textResponse("Sorry, I cannot help with that.")}, "claude-sonnet-4-5", 0)
	_, _, err := ex.Extract(context.Background(), textDoc("some contract"))
	require.Error(t, err)
	assert.True(t, resilience.IsParseError(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestLLMExtractorServiceFlaggedFields(t *testing.T) {
	t.Parallel()

	stub := &stubClient{resp: textResponse(`{
  "extracted_data": {"client_name": "Acme Corp", "total_value": 50000, "currency": "USD"},
  "clarifications_needed": [
    {"field": "end_date", "question": "Does the contract auto-renew?", "context": "section 9 renewal clause"}
  ]
}`)}

	ex := NewLLMExtractor(stub, "claude-sonnet-4-5", 0)
	_, uncertain, err := ex.Extract(context.Background(), textDoc("some contract"))
	require.NoError(t, err)

	require.Len(t, uncertain, 1)
	assert.Equal(t, "end_date", uncertain[0].FieldPath)
	assert.False(t, uncertain[0].Resolved)
	assert.Contains(t, uncertain[0].Context, "auto-renew")
}
