package model

// ConfidenceTier routes an extraction to automatic processing, human review,
// or fully manual handling.
type ConfidenceTier string

const (
	TierAutoProcess ConfidenceTier = "auto_process"
	TierReview      ConfidenceTier = "review"
	TierManual      ConfidenceTier = "manual"
)

// Tier thresholds. TierFor is the only code path that assigns a tier; the
// tier is always a pure function of the score.
const (
	autoProcessThreshold = 85
	reviewThreshold      = 60
)

// TierFor maps a 0-100 confidence score to its processing tier.
func TierFor(score int) ConfidenceTier {
	switch {
	case score >= autoProcessThreshold:
		return TierAutoProcess
	case score >= reviewThreshold:
		return TierReview
	default:
		return TierManual
	}
}

// ConfidenceAssessment is the scored outcome of one extraction. Factors
// records each contributing point value; their sum, floored at 0 and capped
// at 100, equals Score.
type ConfidenceAssessment struct {
	Score   int            `json:"score"`
	Tier    ConfidenceTier `json:"tier"`
	Factors map[string]int `json:"factors"`
}

// NewAssessment clamps the raw factor sum to [0, 100] and derives the tier.
func NewAssessment(factors map[string]int) ConfidenceAssessment {
	sum := 0
	for _, pts := range factors {
		sum += pts
	}
	if sum < 0 {
		sum = 0
	}
	if sum > 100 {
		sum = 100
	}
	return ConfidenceAssessment{
		Score:   sum,
		Tier:    TierFor(sum),
		Factors: factors,
	}
}
