package in

import (
	"context"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
)

// ListOptions pages dashboard reads.
type ListOptions struct {
	NeedsReview *bool
	Limit       int
	Offset      int
}

type AccountService interface {
	// AuthURL starts the consent flow and binds the returned state to ownerID.
	AuthURL(ctx context.Context, ownerID uuid.UUID) (url, state string, err error)

	// ResolveState consumes a state value and returns the owner that started the flow.
	ResolveState(ctx context.Context, state string) (uuid.UUID, error)

	// LinkAccount exchanges an authorization code and upserts the account by (owner, email).
	LinkAccount(ctx context.Context, ownerID uuid.UUID, code string) (*domain.AccountView, error)

	ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*domain.AccountView, error)
	SetEnabled(ctx context.Context, ownerID, accountID uuid.UUID, enabled bool) (*domain.AccountView, error)

	// Unlink deletes the account. Records synced from it are kept.
	Unlink(ctx context.Context, ownerID, accountID uuid.UUID) error

	// TriggerSync runs an owned account now, even when sync is disabled for it.
	TriggerSync(ctx context.Context, ownerID, accountID uuid.UUID) (*domain.SyncResult, error)
	TriggerSyncAll(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error)

	ListApplications(ctx context.Context, ownerID uuid.UUID, opts ListOptions) ([]*domain.ApplicationRecord, error)
	GetApplication(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error)

	// UpdateApplication applies an owner's correction and marks the record
	// user-edited, so re-syncs no longer overwrite its inferred fields.
	UpdateApplication(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error)
	ListSyncRuns(ctx context.Context, ownerID, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error)
}
