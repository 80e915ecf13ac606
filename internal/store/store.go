// Package store persists ingested contracts and their clarification
// questions. Two backends implement the same interface: SQLite for
// single-user CLI work and Postgres for shared deployments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/contract-intel/internal/model"
)

// ContractRecord is one ingested contract as persisted.
type ContractRecord struct {
	ID           string                  `json:"id"`
	FileName     string                  `json:"file_name"`
	Status       string                  `json:"status"`
	Strategy     string                  `json:"strategy,omitempty"`
	Degraded     bool                    `json:"degraded,omitempty"`
	Score        int                     `json:"score"`
	Tier         model.ConfidenceTier    `json:"tier,omitempty"`
	Result       *model.ExtractionResult `json:"result,omitempty"`
	RejectReason string                  `json:"reject_reason,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// ClarificationRecord is one uncertain field awaiting or holding a reviewer
// answer.
type ClarificationRecord struct {
	ID              string     `json:"id"`
	ContractID      string     `json:"contract_id"`
	FieldPath       string     `json:"field_path"`
	Reason          string     `json:"reason"`
	Question        string     `json:"question"`
	Context         string     `json:"context,omitempty"`
	Candidate       any        `json:"candidate,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolutionValue any        `json:"resolution_value,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ContractFilter specifies criteria for listing contracts.
type ContractFilter struct {
	Status string               `json:"status,omitempty"`
	Tier   model.ConfidenceTier `json:"tier,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// Store defines the persistence interface for the contract pipeline.
type Store interface {
	// Contracts
	CreateContract(ctx context.Context, rec *ContractRecord) error
	UpdateContractStatus(ctx context.Context, id, status string) error
	UpdateContractResult(ctx context.Context, id string, result *model.ExtractionResult, status string) error
	GetContract(ctx context.Context, id string) (*ContractRecord, error)
	ListContracts(ctx context.Context, filter ContractFilter) ([]ContractRecord, error)

	// Clarifications
	CreateClarifications(ctx context.Context, recs []ClarificationRecord) error
	ListClarifications(ctx context.Context, contractID string, onlyPending bool) ([]ClarificationRecord, error)
	ResolveClarification(ctx context.Context, id string, value any, resolvedAt time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
