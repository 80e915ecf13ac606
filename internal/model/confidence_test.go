package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	t.Parallel()

	t.Run("boundaries", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, TierAutoProcess, TierFor(100))
		assert.Equal(t, TierAutoProcess, TierFor(85))
		assert.Equal(t, TierReview, TierFor(84))
		assert.Equal(t, TierReview, TierFor(60))
		assert.Equal(t, TierManual, TierFor(59))
		assert.Equal(t, TierManual, TierFor(0))
	})

	t.Run("tier is a pure function of score", func(t *testing.T) {
		t.Parallel()
		for score := 0; score <= 100; score++ {
			tier := TierFor(score)
			switch {
			case score >= 85:
				assert.Equal(t, TierAutoProcess, tier, "score %d", score)
			case score >= 60:
				assert.Equal(t, TierReview, tier, "score %d", score)
			default:
				assert.Equal(t, TierManual, tier, "score %d", score)
			}
		}
	})
}

func TestNewAssessment(t *testing.T) {
	t.Parallel()

	t.Run("sums factors", func(t *testing.T) {
		t.Parallel()
		a := NewAssessment(map[string]int{"text_quality": 30, "tables": 20, "keywords": 14})
		assert.Equal(t, 64, a.Score)
		assert.Equal(t, TierReview, a.Tier)
	})

	t.Run("floors negative sums at zero", func(t *testing.T) {
		t.Parallel()
		a := NewAssessment(map[string]int{"text_quality": 10, "errors": -40})
		assert.Equal(t, 0, a.Score)
		assert.Equal(t, TierManual, a.Tier)
	})

	t.Run("caps at 100", func(t *testing.T) {
		t.Parallel()
		a := NewAssessment(map[string]int{"a": 70, "b": 70})
		assert.Equal(t, 100, a.Score)
		assert.Equal(t, TierAutoProcess, a.Tier)
	})
}
