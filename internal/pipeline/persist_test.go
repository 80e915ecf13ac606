package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
	"github.com/sells-group/contract-intel/internal/score"
	"github.com/sells-group/contract-intel/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveOutcomeFinalized(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	acq := &stubAcquirer{docs: map[string]*pdftext.Document{
		"a.pdf": richDocument("a.pdf"),
	}}
	o := New(acq, &stubExtractor{result: fullResult()}, score.New(score.DefaultWeights()))
	out, err := o.Ingest(ctx, "a.pdf")
	require.NoError(t, err)
	require.Equal(t, StatusFinalized, out.Status)

	require.NoError(t, SaveOutcome(ctx, st, out))

	rec, err := st.GetContract(ctx, out.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", rec.FileName)
	assert.Equal(t, string(StatusFinalized), rec.Status)
	assert.Equal(t, out.Assessment.Score, rec.Score)
	require.NotNil(t, rec.Result)

	// Finalized contracts carry no open questions.
	qs, err := st.ListClarifications(ctx, out.ID, true)
	require.NoError(t, err)
	assert.Empty(t, qs)
}

func TestSaveOutcomeWithClarifications(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	acq := &stubAcquirer{docs: map[string]*pdftext.Document{
		"thin.pdf": {Name: "thin.pdf", Text: "short agreement text", PageCount: 1},
	}}
	pattern := &stubExtractor{
		result: model.NewExtractionResult(),
		uncertain: []model.UncertainField{
			model.NewUncertainField("client_name", nil, model.ReasonNoMatch, ""),
			model.NewUncertainField("total_value", 50000.0, model.ReasonAmbiguousMatch, "two figures"),
		},
	}
	o := New(acq, pattern, score.New(score.DefaultWeights()))
	out, err := o.Ingest(ctx, "thin.pdf")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsClarification, out.Status)

	require.NoError(t, SaveOutcome(ctx, st, out))

	qs, err := st.ListClarifications(ctx, out.ID, true)
	require.NoError(t, err)
	require.Len(t, qs, 2)

	byField := make(map[string]store.ClarificationRecord)
	for _, q := range qs {
		byField[q.FieldPath] = q
	}
	assert.Equal(t, string(model.ReasonNoMatch), byField["client_name"].Reason)
	assert.Equal(t, string(model.ReasonAmbiguousMatch), byField["total_value"].Reason)
	assert.NotEmpty(t, byField["total_value"].Question)
	assert.Equal(t, 50000.0, byField["total_value"].Candidate)
}
