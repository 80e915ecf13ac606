package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateContract(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contracts`).
		WithArgs("c-1", "acme-msa.pdf", "finalized", "pattern", false, 92,
			"auto_process", pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateContract(context.Background(), &ContractRecord{
		ID:       "c-1",
		FileName: "acme-msa.pdf",
		Status:   "finalized",
		Strategy: "pattern",
		Score:    92,
		Tier:     model.TierAutoProcess,
		Result:   model.NewExtractionResult(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContract_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetContract(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get contract")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateContractStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE contracts SET status`).
		WithArgs("finalized", pgxmock.AnyArg(), "nonexistent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateContractStatus(context.Background(), "nonexistent", "finalized")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateClarifications_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"clarifications"},
		[]string{"id", "contract_id", "field_path", "reason", "question", "context", "candidate", "resolved", "created_at"}).
		WillReturnResult(2)

	err := s.CreateClarifications(context.Background(), []ClarificationRecord{
		{ID: "q-1", ContractID: "c-1", FieldPath: "total_value", Reason: "conflicting_matches", Question: "Which total?"},
		{ID: "q-2", ContractID: "c-1", FieldPath: "start_date", Reason: "no_match", Question: "Start date?"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateClarifications_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.CreateClarifications(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveClarification_WriteOnce(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE clarifications SET resolved = true`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "q-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ResolveClarification(context.Background(), "q-1", 60000.0, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListContracts_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "file_name", "status", "strategy", "degraded", "score", "tier",
		"result", "reject_reason", "created_at", "updated_at",
	}).AddRow("c-1", "acme-msa.pdf", "finalized", strPtr("pattern"), false, 92,
		strPtr("auto_process"), []byte(nil), (*string)(nil), now, now)

	mock.ExpectQuery(`SELECT .* FROM contracts WHERE true AND status = \$1`).
		WithArgs("finalized", 100).
		WillReturnRows(rows)

	recs, err := s.ListContracts(context.Background(), ContractFilter{Status: "finalized"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "c-1", recs[0].ID)
	assert.Equal(t, model.TierAutoProcess, recs[0].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }
