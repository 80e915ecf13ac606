package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contract-intel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contracts (
	id            TEXT PRIMARY KEY,
	file_name     TEXT NOT NULL,
	status        TEXT NOT NULL,
	strategy      TEXT,
	degraded      INTEGER NOT NULL DEFAULT 0,
	score         INTEGER NOT NULL DEFAULT 0,
	tier          TEXT,
	result        TEXT,
	reject_reason TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS clarifications (
	id               TEXT PRIMARY KEY,
	contract_id      TEXT NOT NULL REFERENCES contracts(id),
	field_path       TEXT NOT NULL,
	reason           TEXT NOT NULL,
	question         TEXT NOT NULL,
	context          TEXT,
	candidate        TEXT,
	resolved         INTEGER NOT NULL DEFAULT 0,
	resolution_value TEXT,
	resolved_at      DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
CREATE INDEX IF NOT EXISTS idx_contracts_tier ON contracts(tier);
CREATE INDEX IF NOT EXISTS idx_clarifications_contract_id ON clarifications(contract_id);
CREATE INDEX IF NOT EXISTS idx_clarifications_resolved ON clarifications(resolved);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateContract(ctx context.Context, rec *ContractRecord) error {
	resultJSON, err := marshalResult(rec.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FileName, rec.Status, rec.Strategy, boolToInt(rec.Degraded),
		rec.Score, string(rec.Tier), resultJSON, rec.RejectReason, rec.CreatedAt, rec.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert contract")
}

func (s *SQLiteStore) UpdateContractStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contract status %s", id)
	}
	return checkRowsAffected(res, "contract", id)
}

func (s *SQLiteStore) UpdateContractResult(ctx context.Context, id string, result *model.ExtractionResult, status string) error {
	resultJSON, err := marshalResult(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		resultJSON, status, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update contract result %s", id)
	}
	return checkRowsAffected(res, "contract", id)
}

func (s *SQLiteStore) GetContract(ctx context.Context, id string) (*ContractRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at
		 FROM contracts WHERE id = ?`,
		id,
	)
	return scanContract(row)
}

func (s *SQLiteStore) ListContracts(ctx context.Context, filter ContractFilter) ([]ContractRecord, error) {
	query := `SELECT id, file_name, status, strategy, degraded, score, tier, result, reject_reason, created_at, updated_at
	          FROM contracts WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, string(filter.Tier))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contracts")
	}
	defer rows.Close()

	var recs []ContractRecord
	for rows.Next() {
		r, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list contracts iterate")
}

func (s *SQLiteStore) CreateClarifications(ctx context.Context, recs []ClarificationRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin clarifications")
	}
	defer tx.Rollback()

	for i := range recs {
		rec := &recs[i]
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		candidateJSON, err := marshalAny(rec.Candidate)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal candidate")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO clarifications (id, contract_id, field_path, reason, question, context, candidate, resolved, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			rec.ID, rec.ContractID, rec.FieldPath, rec.Reason, rec.Question,
			rec.Context, candidateJSON, rec.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert clarification %s", rec.FieldPath)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit clarifications")
}

func (s *SQLiteStore) ListClarifications(ctx context.Context, contractID string, onlyPending bool) ([]ClarificationRecord, error) {
	query := `SELECT id, contract_id, field_path, reason, question, context, candidate, resolved, resolution_value, resolved_at, created_at
	          FROM clarifications WHERE contract_id = ?`
	if onlyPending {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at, field_path`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clarifications")
	}
	defer rows.Close()

	var recs []ClarificationRecord
	for rows.Next() {
		var rec ClarificationRecord
		var candidateJSON, valueJSON sql.NullString
		var resolved int
		if err := rows.Scan(&rec.ID, &rec.ContractID, &rec.FieldPath, &rec.Reason,
			&rec.Question, &rec.Context, &candidateJSON, &resolved,
			&valueJSON, &rec.ResolvedAt, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan clarification")
		}
		rec.Resolved = resolved != 0
		if candidateJSON.Valid && candidateJSON.String != "" {
			if err := json.Unmarshal([]byte(candidateJSON.String), &rec.Candidate); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
			}
		}
		if valueJSON.Valid && valueJSON.String != "" {
			if err := json.Unmarshal([]byte(valueJSON.String), &rec.ResolutionValue); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal resolution value")
			}
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list clarifications iterate")
}

func (s *SQLiteStore) ResolveClarification(ctx context.Context, id string, value any, resolvedAt time.Time) error {
	valueJSON, err := marshalAny(value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal resolution value")
	}

	// Write-once: an already-resolved row is never overwritten.
	res, err := s.db.ExecContext(ctx,
		`UPDATE clarifications SET resolved = 1, resolution_value = ?, resolved_at = ? WHERE id = ? AND resolved = 0`,
		valueJSON, resolvedAt.UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: resolve clarification %s", id)
	}
	return checkRowsAffected(res, "pending clarification", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalResult(res *model.ExtractionResult) (sql.NullString, error) {
	if res == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalAny(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanContract(row scannable) (*ContractRecord, error) {
	var rec ContractRecord
	var strategy, tier, resultJSON, rejectReason sql.NullString
	var degraded int

	err := row.Scan(&rec.ID, &rec.FileName, &rec.Status, &strategy, &degraded,
		&rec.Score, &tier, &resultJSON, &rejectReason, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("contract not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan contract")
	}

	rec.Strategy = strategy.String
	rec.Tier = model.ConfidenceTier(tier.String)
	rec.RejectReason = rejectReason.String
	rec.Degraded = degraded != 0
	if resultJSON.Valid && resultJSON.String != "" {
		rec.Result = &model.ExtractionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), rec.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &rec, nil
}
