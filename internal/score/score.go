// Package score turns an extraction outcome into a confidence assessment.
// Scoring is a pure function of the acquired document and the extraction
// result: no wall clock, no I/O, identical inputs always produce the same
// assessment.
package score

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
)

// Weights holds the point values of every scoring factor. The defaults sum
// to a 100-point ceiling before penalties.
type Weights struct {
	TextQuality  int `mapstructure:"text_quality"`
	MultiPage    int `mapstructure:"multi_page"`
	Tables       int `mapstructure:"tables"`
	Completeness int `mapstructure:"completeness"`
	KeywordBonus int `mapstructure:"keyword_bonus"`
	KeywordCap   int `mapstructure:"keyword_cap"`
	ErrorPenalty int `mapstructure:"error_penalty"`
}

// DefaultWeights returns the standard factor weights.
func DefaultWeights() Weights {
	return Weights{
		TextQuality:  30,
		MultiPage:    10,
		Tables:       20,
		Completeness: 15,
		KeywordBonus: 2,
		KeywordCap:   20,
		ErrorPenalty: 5,
	}
}

// fullCreditTextLen is the character count at which text quality earns its
// full weight; shorter documents earn a proportional share.
const fullCreditTextLen = 1000

// modelAssistedScore is the fixed score for a clean model-assisted
// extraction. It lands in the auto-process tier but below a perfect score,
// so downstream ordering still favors fully verified extractions.
const modelAssistedScore = 95

// paymentKeywords earn a small per-keyword bonus when present in the text.
// Distinct keywords only; repeats do not stack.
var paymentKeywords = []string{
	"payment", "invoice", "fee", "compensation", "remuneration",
	"installment", "milestone", "retainer", "deposit", "billing",
	"payable", "due", "net", "total", "amount",
}

// completenessFields are the extraction fields whose presence drives the
// completeness factor.
const completenessFields = 5

// Scorer computes confidence assessments with a fixed weight set.
type Scorer struct {
	w Weights
}

// New creates a Scorer. Zero-value weights fall back to the defaults.
func New(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Scorer{w: w}
}

// Score assesses a pattern-strategy extraction. Every factor is recorded in
// the assessment so a reviewer can see where points came from.
func (s *Scorer) Score(doc *pdftext.Document, res *model.ExtractionResult, uncertain []model.UncertainField) model.ConfidenceAssessment {
	factors := map[string]int{
		"text_quality": s.textQuality(doc),
		"multi_page":   s.multiPage(doc),
		"tables":       s.tables(doc),
		"completeness": s.completeness(res),
	}
	if bonus := s.keywordBonus(doc); bonus > 0 {
		factors["keyword_bonus"] = bonus
	}
	if penalty := s.errorPenalty(doc, uncertain); penalty < 0 {
		factors["error_penalty"] = penalty
	}

	a := model.NewAssessment(factors)
	zap.L().Debug("score: assessed extraction",
		zap.String("file", doc.Name),
		zap.Int("score", a.Score),
		zap.String("tier", string(a.Tier)),
	)
	return a
}

// ScoreModelAssisted assesses a model-assisted extraction: a fixed high
// score, unless the payload carried unresolved fields or structural
// contradictions, in which case the extraction is scored like any other.
func (s *Scorer) ScoreModelAssisted(doc *pdftext.Document, res *model.ExtractionResult, uncertain []model.UncertainField) model.ConfidenceAssessment {
	if len(uncertain) == 0 && len(doc.Errors) == 0 {
		return model.NewAssessment(map[string]int{"model_assisted": modelAssistedScore})
	}
	return s.Score(doc, res, uncertain)
}

// textQuality scales with extracted text length up to the full-credit
// threshold. Empty text earns nothing.
func (s *Scorer) textQuality(doc *pdftext.Document) int {
	n := len(strings.TrimSpace(doc.Text))
	if n >= fullCreditTextLen {
		return s.w.TextQuality
	}
	return s.w.TextQuality * n / fullCreditTextLen
}

func (s *Scorer) multiPage(doc *pdftext.Document) int {
	if doc.PageCount > 1 {
		return s.w.MultiPage
	}
	return 0
}

func (s *Scorer) tables(doc *pdftext.Document) int {
	if len(doc.Tables) > 0 {
		return s.w.Tables
	}
	return 0
}

// completeness is the fraction of core fields the extraction committed.
func (s *Scorer) completeness(res *model.ExtractionResult) int {
	present := 0
	if res.ClientName != nil {
		present++
	}
	if res.TotalValue != nil {
		present++
	}
	if res.StartDate != nil {
		present++
	}
	if res.PaymentFrequency != model.FrequencyUnknown {
		present++
	}
	if len(res.Milestones) > 0 {
		present++
	}
	return s.w.Completeness * present / completenessFields
}

// keywordBonus awards points per distinct payment keyword, capped.
func (s *Scorer) keywordBonus(doc *pdftext.Document) int {
	lower := strings.ToLower(doc.Text)
	bonus := 0
	for _, kw := range paymentKeywords {
		if strings.Contains(lower, kw) {
			bonus += s.w.KeywordBonus
		}
	}
	if bonus > s.w.KeywordCap {
		bonus = s.w.KeywordCap
	}
	return bonus
}

// errorPenalty deducts points for each acquisition error and each unresolved
// uncertain field.
func (s *Scorer) errorPenalty(doc *pdftext.Document, uncertain []model.UncertainField) int {
	count := len(doc.Errors)
	for _, u := range uncertain {
		if !u.Resolved {
			count++
		}
	}
	return -s.w.ErrorPenalty * count
}
