package out

import (
	"context"
	"time"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
)

// SyncRunRepository keeps finished sync runs.
type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error)
}

// SyncGuard is an advisory per-account in-flight lock. Correctness never
// depends on it; it only saves redundant provider calls.
type SyncGuard interface {
	// Acquire returns false when another run holds the account.
	Acquire(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (release func(), ok bool, err error)
}

// SyncJobPublisher queues sync runs for the worker.
type SyncJobPublisher interface {
	PublishSync(ctx context.Context, job *domain.SyncJob) error
}

// StateStore binds an OAuth state value to the owner that started the flow.
type StateStore interface {
	StoreState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error
	// ValidateState returns the owner and deletes the state (one-shot).
	ValidateState(ctx context.Context, state string) (uuid.UUID, error)
}

// CredentialSealer encrypts token material at rest.
type CredentialSealer interface {
	Seal(plaintext, aad string) (string, error)
	Open(ciphertext, aad string) (string, error)
}

// FieldRefiner proposes company/role values for messages the heuristics could
// not resolve. Proposals are hints; callers verify them against the text.
type FieldRefiner interface {
	Refine(ctx context.Context, msg *domain.NormalizedMessage) (*RefinedFields, error)
}

type RefinedFields struct {
	Company string `json:"company"`
	Role    string `json:"role"`
}
