package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-intel/internal/clarify"
	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pipeline"
	"github.com/sells-group/contract-intel/internal/store"
)

// reviewSession rebuilds the clarification state of a stored contract so
// answers can be validated and applied the same way whether they arrive via
// the CLI or the review API.
type reviewSession struct {
	Contract *store.ContractRecord
	Records  []store.ClarificationRecord
	Resolver *clarify.Resolver
}

// loadReview loads a contract and replays its recorded answers into a fresh
// resolver.
func loadReview(ctx context.Context, st store.Store, contractID string) (*reviewSession, error) {
	rec, err := st.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	records, err := st.ListClarifications(ctx, contractID, false)
	if err != nil {
		return nil, err
	}

	fields := make([]model.UncertainField, 0, len(records))
	for _, cr := range records {
		fields = append(fields, model.NewUncertainField(
			cr.FieldPath, cr.Candidate, model.UncertainReason(cr.Reason), cr.Context))
	}

	r := clarify.NewResolver(rec.Result, fields)
	for _, cr := range records {
		if !cr.Resolved {
			continue
		}
		if err := r.AnswerField(cr.FieldPath, cr.ResolutionValue); err != nil {
			return nil, eris.Wrapf(err, "replay answer for %s", cr.FieldPath)
		}
	}

	return &reviewSession{Contract: rec, Records: records, Resolver: r}, nil
}

// recordFor finds the stored clarification row for a field path.
func (s *reviewSession) recordFor(fieldPath string) (*store.ClarificationRecord, bool) {
	for i := range s.Records {
		if s.Records[i].FieldPath == fieldPath {
			return &s.Records[i], true
		}
	}
	return nil, false
}

// answer validates one answer against the resolver and persists it. Returns
// the coerced value that was recorded.
func (s *reviewSession) answer(ctx context.Context, st store.Store, fieldPath string, value any) (any, error) {
	cr, ok := s.recordFor(fieldPath)
	if !ok {
		return nil, &clarify.UnknownFieldError{FieldPath: fieldPath}
	}

	if err := s.Resolver.AnswerField(fieldPath, value); err != nil {
		return nil, err
	}

	var coerced any
	for _, f := range s.Resolver.Fields() {
		if f.FieldPath == fieldPath {
			coerced = f.ResolutionValue
		}
	}

	if err := st.ResolveClarification(ctx, cr.ID, coerced, time.Now().UTC()); err != nil {
		return nil, err
	}
	return coerced, nil
}

// apply merges resolved answers into the stored extraction. Fully resolved
// contracts finalize; partial resolution keeps the contract open.
func (s *reviewSession) apply(ctx context.Context, st store.Store) (*model.ExtractionResult, int, error) {
	merged, pending, err := s.Resolver.ApplyResolved()
	if err != nil {
		return nil, 0, err
	}

	status := string(pipeline.StatusFinalized)
	if pending > 0 {
		status = string(pipeline.StatusNeedsClarification)
	}
	if err := st.UpdateContractResult(ctx, s.Contract.ID, merged, status); err != nil {
		return nil, 0, err
	}
	return merged, pending, nil
}
