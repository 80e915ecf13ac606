package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/resilience"
)

func TestParsePayloadFull(t *testing.T) {
	t.Parallel()

	raw := "```json\n" + `{
  "extracted_data": {
    "client_name": "Acme Corp",
    "total_value": 50000,
    "currency": "usd",
    "start_date": "2024-01-15",
    "end_date": null,
    "payment_frequency": "monthly",
    "payment_milestones": [
      {"amount": "$10,000", "due_date": "2024-02-01", "description": "Kickoff"},
      {"amount": 40000, "due_date": null, "description": "Delivery"}
    ]
  },
  "clarifications_needed": []
}` + "\n```"

	report, err := parsePayload(raw)
	require.NoError(t, err)
	res := report.Result

	require.NotNil(t, res.ClientName)
	assert.Equal(t, "Acme Corp", *res.ClientName)
	require.NotNil(t, res.TotalValue)
	assert.Equal(t, 50000.0, *res.TotalValue)
	assert.Equal(t, "USD", res.Currency)
	require.NotNil(t, res.StartDate)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *res.StartDate)
	assert.Nil(t, res.EndDate)
	assert.Equal(t, model.FrequencyMonthly, res.PaymentFrequency)

	require.Len(t, res.Milestones, 2)
	assert.Equal(t, "Kickoff", res.Milestones[0].Name)
	require.NotNil(t, res.Milestones[0].Amount)
	assert.Equal(t, 10000.0, *res.Milestones[0].Amount)
	require.NotNil(t, res.Milestones[0].DueDate)
	require.NotNil(t, res.Milestones[0].PercentOfTotal)
	assert.InDelta(t, 20.0, *res.Milestones[0].PercentOfTotal, 0.001)
	assert.Nil(t, res.Milestones[1].DueDate)

	assert.Empty(t, report.Uncertain)
	assert.Empty(t, report.RedFlags)
}

func TestParsePayloadClarifications(t *testing.T) {
	t.Parallel()

	raw := `{
  "extracted_data": {"currency": "USD"},
  "clarifications_needed": [
    {"field": "total_value", "question": "Is the total $50,000 or $60,000?", "context": "conflicting figures in sections 3 and 7"},
    {"field": "", "question": "dropped because no field"}
  ]
}`

	report, err := parsePayload(raw)
	require.NoError(t, err)

	require.Len(t, report.Uncertain, 1)
	u := report.Uncertain[0]
	assert.Equal(t, "total_value", u.FieldPath)
	assert.Equal(t, model.ReasonAmbiguousMatch, u.Reason)
	assert.Contains(t, u.Context, "Is the total")
	assert.False(t, u.Resolved)

	assert.Equal(t, []string{"clarification:total_value"}, report.RedFlags)
}

func TestParsePayloadDropsBadFields(t *testing.T) {
	t.Parallel()

	raw := `{
  "extracted_data": {
    "client_name": "Beta LLC",
    "total_value": "not a number",
    "currency": "FAKE",
    "start_date": "sometime next year",
    "payment_frequency": "fortnightly",
    "internal_notes": "should be dropped"
  }
}`

	report, err := parsePayload(raw)
	require.NoError(t, err)
	res := report.Result

	require.NotNil(t, res.ClientName)
	assert.Nil(t, res.TotalValue)
	assert.Equal(t, "USD", res.Currency, "invalid code keeps the default")
	assert.Nil(t, res.StartDate)
	assert.Equal(t, model.FrequencyUnknown, res.PaymentFrequency)
}

func TestParsePayloadErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "I could not process this contract."},
		{"missing envelope", `{"clarifications_needed": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parsePayload(tc.raw)
			require.Error(t, err)
			assert.True(t, resilience.IsParseError(err))
			assert.False(t, resilience.IsTransient(err))
		})
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestStructuralChecks(t *testing.T) {
	t.Parallel()

	t.Run("end before start", func(t *testing.T) {
		t.Parallel()
		res := model.NewExtractionResult()
		start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		res.StartDate = &start
		res.EndDate = &end

		flags := structuralChecks(res)
		require.Len(t, flags, 1)
		assert.Equal(t, "end_date", flags[0].FieldPath)
		assert.Equal(t, model.ReasonConflictingMatches, flags[0].Reason)
	})

	t.Run("clean result", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, structuralChecks(model.NewExtractionResult()))
	})
}
