package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{
			name:  "haiku simple",
			model: "haiku", input: 1_000_000, output: 100_000,
			want: 0.80 + 0.40,
		},
		{
			name:  "sonnet typical extraction call",
			model: "sonnet", input: 2_000, output: 500,
			// in: 0.002M * 3.00 = 0.006, out: 0.0005M * 15.00 = 0.0075
			want: 0.006 + 0.0075,
		},
		{
			name:  "unknown model costs zero",
			model: "gpt-5", input: 1_000_000, output: 1_000_000,
			want: 0,
		},
		{
			name:  "zero usage",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDefaultRatesCoverConfiguredModels(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	got := calc.Claude("claude-sonnet-4-5-20250929", 1_000_000, 0)
	assert.InDelta(t, 3.00, got, 1e-9)
}
