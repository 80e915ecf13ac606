// Package monitoring watches the contract pipeline's recent output: it
// collects snapshot metrics from the store, evaluates them against alert
// thresholds, and delivers webhook alerts when the review queue or rejection
// rate drifts out of bounds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/store"
)

// collectLimit bounds how many contracts a snapshot considers.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Contract counts within the lookback window.
	ContractsTotal     int `json:"contracts_total"`
	Finalized          int `json:"finalized"`
	NeedsClarification int `json:"needs_clarification"`
	Rejected           int `json:"rejected"`
	Degraded           int `json:"degraded"`

	// Derived rates over processed (non-rejected) contracts.
	ClarificationRate float64 `json:"clarification_rate"`
	RejectedRate      float64 `json:"rejected_rate"`
	AvgScore          float64 `json:"avg_score"`

	// Review queue depth: unanswered questions across open contracts.
	OpenQuestions int `json:"open_questions"`

	TierCounts map[model.ConfidenceTier]int `json:"tier_counts"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the contract store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window. A zero window
// covers everything in the store.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		TierCounts:    make(map[model.ConfidenceTier]int),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Time{}
	if lookbackHours > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}

	recs, err := c.store.ListContracts(ctx, store.ContractFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list contracts")
	}

	var totalScore int
	var scored int
	for i := range recs {
		rec := &recs[i]
		if !cutoff.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		snap.ContractsTotal++

		switch rec.Status {
		case "finalized":
			snap.Finalized++
		case "needs_clarification":
			snap.NeedsClarification++
		case "rejected":
			snap.Rejected++
		}
		if rec.Degraded {
			snap.Degraded++
		}
		if rec.Status != "rejected" {
			snap.TierCounts[rec.Tier]++
			totalScore += rec.Score
			scored++

			if rec.Status == "needs_clarification" {
				pending, err := c.store.ListClarifications(ctx, rec.ID, true)
				if err != nil {
					return nil, eris.Wrapf(err, "monitoring: list clarifications for %s", rec.ID)
				}
				snap.OpenQuestions += len(pending)
			}
		}
	}

	if scored > 0 {
		snap.AvgScore = float64(totalScore) / float64(scored)
		snap.ClarificationRate = float64(snap.NeedsClarification) / float64(scored)
	}
	if snap.ContractsTotal > 0 {
		snap.RejectedRate = float64(snap.Rejected) / float64(snap.ContractsTotal)
	}

	return snap, nil
}
