package pipeline

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-intel/internal/model"
)

// BatchConfig controls concurrent ingestion.
type BatchConfig struct {
	// Workers is the number of contracts processed concurrently. Default 4.
	Workers int `mapstructure:"workers"`
	// RatePerSecond throttles ingestion starts, protecting the model service
	// quota. Zero means unlimited.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

// Tally aggregates batch results by outcome and tier.
type Tally struct {
	Total         int
	Finalized     int
	Clarification int
	Rejected      int
	Failed        int
	Degraded      int
	ByTier        map[model.ConfidenceTier]int
}

// BatchResult is one contract's slot in a batch report: either an outcome or
// the error that kept it from producing one. Failures are isolated; one bad
// contract never aborts the batch.
type BatchResult struct {
	Path    string
	Outcome *Outcome
	Err     error
}

// BatchReport is the complete output of a batch run, with results in input
// order.
type BatchReport struct {
	Results []BatchResult
	Tally   Tally
}

// IngestBatch processes the given contract paths concurrently and reports
// per-contract results plus aggregate tallies.
func (o *Orchestrator) IngestBatch(ctx context.Context, paths []string, cfg BatchConfig) *BatchReport {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	results := make([]BatchResult, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i, path := range paths {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					mu.Lock()
					results[i] = BatchResult{Path: path, Err: err}
					mu.Unlock()
					return nil
				}
			}

			out, err := o.Ingest(gctx, path)
			mu.Lock()
			results[i] = BatchResult{Path: path, Outcome: out, Err: err}
			mu.Unlock()
			if err != nil {
				zap.L().Error("pipeline: batch item failed",
					zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{Results: results, Tally: tally(results)}
	zap.L().Info("pipeline: batch complete",
		zap.Int("total", report.Tally.Total),
		zap.Int("finalized", report.Tally.Finalized),
		zap.Int("needs_clarification", report.Tally.Clarification),
		zap.Int("rejected", report.Tally.Rejected),
		zap.Int("failed", report.Tally.Failed),
		zap.Int("degraded", report.Tally.Degraded),
	)
	return report
}

func tally(results []BatchResult) Tally {
	t := Tally{
		Total:  len(results),
		ByTier: make(map[model.ConfidenceTier]int),
	}
	for _, r := range results {
		switch {
		case r.Err != nil:
			t.Failed++
		case r.Outcome.Status == StatusFinalized:
			t.Finalized++
		case r.Outcome.Status == StatusNeedsClarification:
			t.Clarification++
		case r.Outcome.Status == StatusRejected:
			t.Rejected++
		}
		if r.Err == nil && r.Outcome.Degraded {
			t.Degraded++
		}
		if r.Err == nil && r.Outcome.Status != StatusRejected {
			t.ByTier[r.Outcome.Assessment.Tier]++
		}
	}
	return t
}

// TierCounts returns the tally's tier distribution in a stable order for
// logging and report rendering.
func (t Tally) TierCounts() []struct {
	Tier  model.ConfidenceTier
	Count int
} {
	tiers := make([]model.ConfidenceTier, 0, len(t.ByTier))
	for tier := range t.ByTier {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })

	out := make([]struct {
		Tier  model.ConfidenceTier
		Count int
	}, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, struct {
			Tier  model.ConfidenceTier
			Count int
		}{tier, t.ByTier[tier]})
	}
	return out
}
