// Package pipeline orchestrates contract ingestion: text acquisition,
// strategy selection, confidence scoring, and routing into finalized,
// needs-clarification, or rejected outcomes.
package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/clarify"
	"github.com/sells-group/contract-intel/internal/extract"
	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
	"github.com/sells-group/contract-intel/internal/resilience"
	"github.com/sells-group/contract-intel/internal/score"
)

// Status is the terminal routing decision for one ingested contract.
type Status string

const (
	StatusFinalized          Status = "finalized"
	StatusNeedsClarification Status = "needs_clarification"
	StatusRejected           Status = "rejected"
)

// Strategy names which extraction path produced the result.
type Strategy string

const (
	StrategyModel   Strategy = "model_assisted"
	StrategyPattern Strategy = "pattern"
)

// Outcome is the full record of one ingestion.
type Outcome struct {
	ID         string
	Document   *pdftext.Document
	Result     *model.ExtractionResult
	Uncertain  []model.UncertainField
	Assessment model.ConfidenceAssessment
	Status     Status
	Strategy   Strategy
	// Degraded marks a model-assisted attempt that fell back to pattern
	// extraction after retry.
	Degraded bool
	// RejectReason is set only for rejected outcomes.
	RejectReason string
}

// Resolver returns a clarification resolver over the outcome's uncertain
// fields.
func (o *Outcome) Resolver() *clarify.Resolver {
	return clarify.NewResolver(o.Result, o.Uncertain)
}

// Orchestrator runs the ingestion flow. The model extractor is optional;
// without it every contract takes the pattern path.
type Orchestrator struct {
	acquirer        pdftext.Extractor
	pattern         extract.Extractor
	llm             extract.Extractor
	scorer          *score.Scorer
	retry           resilience.RetryConfig
	patternFallback bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModelExtractor enables the model-assisted strategy as the preferred
// path.
func WithModelExtractor(ex extract.Extractor) Option {
	return func(o *Orchestrator) { o.llm = ex }
}

// WithRetryConfig overrides the model-call retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithPatternFallback degrades to pattern extraction when the model service
// stays unavailable after retry, instead of rejecting the contract. Malformed
// payloads fall back regardless of this setting.
func WithPatternFallback() Option {
	return func(o *Orchestrator) { o.patternFallback = true }
}

// New creates an Orchestrator around the required acquisition, pattern
// extraction, and scoring components.
func New(acquirer pdftext.Extractor, pattern extract.Extractor, scorer *score.Scorer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		acquirer: acquirer,
		pattern:  pattern,
		scorer:   scorer,
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ingest runs one contract through the full flow. Malformed input is a
// rejected outcome, not an error; errors are reserved for failures outside
// the contract's control (I/O, context cancellation).
func (o *Orchestrator) Ingest(ctx context.Context, path string) (*Outcome, error) {
	out := &Outcome{ID: uuid.NewString()}

	doc, err := o.acquirer.ExtractDocument(ctx, path)
	if err != nil {
		var ve *resilience.ValidationError
		if errors.As(err, &ve) {
			out.Status = StatusRejected
			out.RejectReason = ve.Msg
			zap.L().Warn("pipeline: contract rejected",
				zap.String("path", path), zap.String("reason", ve.Msg))
			return out, nil
		}
		return nil, eris.Wrapf(err, "pipeline: acquire %s", path)
	}
	out.Document = doc

	if strings.TrimSpace(doc.Text) == "" {
		out.Status = StatusRejected
		out.RejectReason = "no extractable text"
		zap.L().Warn("pipeline: contract rejected",
			zap.String("path", path), zap.String("reason", out.RejectReason))
		return out, nil
	}

	if err := o.runExtraction(ctx, out); err != nil {
		return nil, err
	}
	if out.Status == StatusRejected {
		zap.L().Warn("pipeline: contract rejected",
			zap.String("path", path), zap.String("reason", out.RejectReason))
		return out, nil
	}

	if out.Strategy == StrategyModel {
		out.Assessment = o.scorer.ScoreModelAssisted(doc, out.Result, out.Uncertain)
	} else {
		out.Assessment = o.scorer.Score(doc, out.Result, out.Uncertain)
	}

	// Auto-process finalizes even with unresolved fields: the markers stay
	// on the record for audit, but a high-confidence extraction does not
	// wait on a human. A review-tier extraction with no uncertain fields
	// has nothing to ask a reviewer and finalizes too.
	switch {
	case out.Assessment.Tier == model.TierAutoProcess:
		out.Status = StatusFinalized
	case out.Assessment.Tier == model.TierReview && len(out.Uncertain) == 0:
		out.Status = StatusFinalized
	default:
		out.Status = StatusNeedsClarification
	}

	zap.L().Info("pipeline: contract ingested",
		zap.String("id", out.ID),
		zap.String("file", doc.Name),
		zap.String("strategy", string(out.Strategy)),
		zap.Bool("degraded", out.Degraded),
		zap.Int("score", out.Assessment.Score),
		zap.String("tier", string(out.Assessment.Tier)),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// extractionPass carries one strategy's output through the retry helper.
type extractionPass struct {
	result    *model.ExtractionResult
	uncertain []model.UncertainField
}

// runExtraction picks the strategy: model-assisted when configured, retried
// once on transient failure. A malformed payload falls back to pattern
// extraction on the same text; a service that stays unavailable rejects the
// contract unless pattern fallback is enabled.
func (o *Orchestrator) runExtraction(ctx context.Context, out *Outcome) error {
	if o.llm != nil {
		cfg := o.retry
		if cfg.OnRetry == nil {
			cfg.OnRetry = resilience.RetryLogger("anthropic", "contract_extraction")
		}
		pass, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (extractionPass, error) {
			res, unc, err := o.llm.Extract(ctx, out.Document)
			return extractionPass{result: res, uncertain: unc}, err
		})
		if err == nil {
			out.Strategy = StrategyModel
			out.Result = pass.result
			out.Uncertain = pass.uncertain
			return nil
		}
		if ctx.Err() != nil {
			return eris.Wrap(err, "pipeline: model extraction canceled")
		}
		if !resilience.IsParseError(err) && !o.patternFallback {
			out.Status = StatusRejected
			out.RejectReason = "extraction_unavailable"
			zap.L().Warn("pipeline: model extraction unavailable",
				zap.String("file", out.Document.Name), zap.Error(err))
			return nil
		}
		out.Degraded = true
		zap.L().Warn("pipeline: degrading to pattern extraction",
			zap.String("file", out.Document.Name),
			zap.Bool("parse_error", resilience.IsParseError(err)),
			zap.Error(err),
		)
	}

	res, unc, err := o.pattern.Extract(ctx, out.Document)
	if err != nil {
		return eris.Wrap(err, "pipeline: pattern extraction")
	}
	out.Strategy = StrategyPattern
	out.Result = res
	out.Uncertain = unc
	return nil
}
