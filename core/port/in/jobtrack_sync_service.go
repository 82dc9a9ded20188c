package in

import (
	"context"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
)

type SyncService interface {
	// SyncAccount runs one account regardless of its sync_enabled flag.
	SyncAccount(ctx context.Context, accountID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncResult, error)

	// SyncAllEnabledAccounts runs every enabled account of an owner. One
	// account failing never stops the others.
	SyncAllEnabledAccounts(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error)

	// SyncAllOwners sweeps every owner with at least one enabled account.
	SyncAllOwners(ctx context.Context) (*domain.SyncResult, error)
}
