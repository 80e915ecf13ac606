package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-intel/internal/db"
	"github.com/sells-group/contract-intel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_contract":        `INSERT INTO contracts (id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"update_contract_status": `UPDATE contracts SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_contract":           `SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at FROM contracts WHERE id = $1`,
	"resolve_clarification":  `UPDATE clarifications SET resolved = true, resolution_value = $1, resolved_at = $2 WHERE id = $3 AND NOT resolved`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	strategy      TEXT,
	degraded      BOOLEAN NOT NULL DEFAULT false,
	score         INTEGER NOT NULL DEFAULT 0,
	tier          TEXT,
	result        JSONB,
	reject_reason TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS clarifications (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	contract_id      TEXT NOT NULL REFERENCES contracts(id),
	field_path       TEXT NOT NULL,
	reason           TEXT NOT NULL,
	question         TEXT NOT NULL,
	context          TEXT,
	candidate        JSONB,
	resolved         BOOLEAN NOT NULL DEFAULT false,
	resolution_value JSONB,
	resolved_at      TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
CREATE INDEX IF NOT EXISTS idx_contracts_tier ON contracts(tier);
CREATE INDEX IF NOT EXISTS idx_clarifications_contract_id ON clarifications(contract_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_resolved ON clarifications(contract_id, resolved);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateContract(ctx context.Context, rec *ContractRecord) error {
	var resultJSON []byte
	if rec.Result != nil {
		var err error
		resultJSON, err = json.Marshal(rec.Result)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.FileName, rec.Status, rec.Strategy, rec.Degraded,
		rec.Score, string(rec.Tier), resultJSON, rec.RejectReason, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert contract")
}

func (s *PostgresStore) UpdateContractStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contract status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("contract not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateContractResult(ctx context.Context, id string, result *model.ExtractionResult, status string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update contract result %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("contract not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) GetContract(ctx context.Context, id string) (*ContractRecord, error) {
	var rec ContractRecord
	var strategy, tier, rejectReason *string
	var resultJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at
		 FROM contracts WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.FileName, &rec.Status, &strategy, &rec.Degraded,
		&rec.Score, &tier, &resultJSON, &rejectReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contract %s", id)
	}

	if strategy != nil {
		rec.Strategy = *strategy
	}
	if tier != nil {
		rec.Tier = model.ConfidenceTier(*tier)
	}
	if rejectReason != nil {
		rec.RejectReason = *rejectReason
	}
	if len(resultJSON) > 0 {
		rec.Result = &model.ExtractionResult{}
		if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &rec, nil
}

func (s *PostgresStore) ListContracts(ctx context.Context, filter ContractFilter) ([]ContractRecord, error) {
	query := `SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at
	          FROM contracts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, string(filter.Tier))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contracts")
	}
	defer rows.Close()

	var recs []ContractRecord
	for rows.Next() {
		var rec ContractRecord
		var strategy, tier, rejectReason *string
		var resultJSON []byte

		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.Status, &strategy, &rec.Degraded,
			&rec.Score, &tier, &resultJSON, &rejectReason, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		if strategy != nil {
			rec.Strategy = *strategy
		}
		if tier != nil {
			rec.Tier = model.ConfidenceTier(*tier)
		}
		if rejectReason != nil {
			rec.RejectReason = *rejectReason
		}
		if len(resultJSON) > 0 {
			rec.Result = &model.ExtractionResult{}
			if err := json.Unmarshal(resultJSON, rec.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list contracts iterate")
}

// CreateClarifications bulk-inserts via the COPY protocol; clarification
// batches track uncertain-field counts, which can run long on low-quality
// scans.
func (s *PostgresStore) CreateClarifications(ctx context.Context, recs []ClarificationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		candidateJSON, err := marshalAnyJSON(rec.Candidate)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal candidate")
		}
		rows = append(rows, []any{
			rec.ID, rec.ContractID, rec.FieldPath, rec.Reason, rec.Question,
			rec.Context, candidateJSON, false, rec.CreatedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "clarifications",
		[]string{"id", "contract_id", "field_path", "reason", "question", "context", "candidate", "resolved", "created_at"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert clarifications")
}

func (s *PostgresStore) ListClarifications(ctx context.Context, contractID string, onlyPending bool) ([]ClarificationRecord, error) {
	query := `SELECT id, contract_id, field_path, reason, question, context, candidate, resolved, resolution_value, resolved_at, created_at
	          FROM clarifications WHERE contract_id = $1`
	if onlyPending {
		query += ` AND NOT resolved`
	}
	query += ` ORDER BY created_at, field_path`

	rows, err := s.pool.Query(ctx, query, contractID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clarifications")
	}
	defer rows.Close()

	var recs []ClarificationRecord
	for rows.Next() {
		var rec ClarificationRecord
		var contextCol *string
		var candidateJSON, valueJSON []byte

		if err := rows.Scan(&rec.ID, &rec.ContractID, &rec.FieldPath, &rec.Reason,
			&rec.Question, &contextCol, &candidateJSON, &rec.Resolved,
			&valueJSON, &rec.ResolvedAt, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan clarification")
		}
		if contextCol != nil {
			rec.Context = *contextCol
		}
		if len(candidateJSON) > 0 {
			if err := json.Unmarshal(candidateJSON, &rec.Candidate); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal candidate")
			}
		}
		if len(valueJSON) > 0 {
			if err := json.Unmarshal(valueJSON, &rec.ResolutionValue); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal resolution value")
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list clarifications iterate")
}

func (s *PostgresStore) ResolveClarification(ctx context.Context, id string, value any, resolvedAt time.Time) error {
	valueJSON, err := marshalAnyJSON(value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal resolution value")
	}

	// Write-once: an already-resolved row is never overwritten.
	tag, err := s.pool.Exec(ctx,
		`UPDATE clarifications SET resolved = true, resolution_value = $1, resolved_at = $2 WHERE id = $3 AND NOT resolved`,
		valueJSON, resolvedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve clarification %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("pending clarification not found: %s", id)
	}
	return nil
}

func marshalAnyJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
