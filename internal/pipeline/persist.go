package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-intel/internal/store"
)

// SaveOutcome persists one ingestion outcome: the contract record plus a
// clarification row per open question.
func SaveOutcome(ctx context.Context, st store.Store, out *Outcome) error {
	rec := &store.ContractRecord{
		ID:           out.ID,
		Status:       string(out.Status),
		Strategy:     string(out.Strategy),
		Degraded:     out.Degraded,
		Score:        out.Assessment.Score,
		Tier:         out.Assessment.Tier,
		Result:       out.Result,
		RejectReason: out.RejectReason,
	}
	if out.Document != nil {
		rec.FileName = out.Document.Name
	}
	if err := st.CreateContract(ctx, rec); err != nil {
		return eris.Wrapf(err, "persist contract %s", out.ID)
	}

	if out.Status != StatusNeedsClarification {
		return nil
	}

	questions := out.Resolver().Questions()
	recs := make([]store.ClarificationRecord, 0, len(questions))
	byPath := make(map[string]int, len(out.Uncertain))
	for i, u := range out.Uncertain {
		byPath[u.FieldPath] = i
	}
	for _, q := range questions {
		cr := store.ClarificationRecord{
			ID:         uuid.NewString(),
			ContractID: out.ID,
			FieldPath:  q.FieldPath,
			Question:   q.Prompt,
			Context:    q.Context,
			Candidate:  q.Candidate,
		}
		if i, ok := byPath[q.FieldPath]; ok {
			cr.Reason = string(out.Uncertain[i].Reason)
		}
		recs = append(recs, cr)
	}
	if err := st.CreateClarifications(ctx, recs); err != nil {
		return eris.Wrapf(err, "persist clarifications for %s", out.ID)
	}
	return nil
}
