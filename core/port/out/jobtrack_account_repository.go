package out

import (
	"context"
	"errors"
	"time"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate")
)

// AccountRepository defines the outbound port for linked account persistence.
// Every lookup is owner-scoped except GetByID, which the sync worker uses.
type AccountRepository interface {
	// ListByOwner returns all linked accounts of an owner, oldest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*LinkedAccountEntity, error)

	// ListOwnersWithEnabledAccounts returns owners having at least one sync-enabled account.
	ListOwnersWithEnabledAccounts(ctx context.Context) ([]string, error)

	// GetByID returns an account by ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*LinkedAccountEntity, error)

	// GetByEmail returns the account of an owner for an address, or ErrNotFound.
	GetByEmail(ctx context.Context, ownerID, email string) (*LinkedAccountEntity, error)

	// Create inserts a new account. A duplicate (owner, email) returns ErrDuplicate.
	Create(ctx context.Context, entity *LinkedAccountEntity) error

	// UpdateCredential replaces token material and resets status to active.
	UpdateCredential(ctx context.Context, entity *LinkedAccountEntity) error

	// UpdateTokens stores refreshed tokens without touching status.
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error

	// UpdateSyncState records the outcome of a sync run.
	UpdateSyncState(ctx context.Context, id, status string, lastError *string, lastSyncAt time.Time) error

	// SetSyncEnabled toggles sync_enabled.
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes an account. Application records are left untouched.
	Delete(ctx context.Context, id string) error
}

// LinkedAccountEntity represents a linked account in persistence.
// AccessToken and RefreshToken hold sealed values only.
type LinkedAccountEntity struct {
	ID           string     `db:"id"`
	OwnerID      string     `db:"owner_id"`
	Email        string     `db:"email"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	ExpiresAt    time.Time  `db:"expires_at"`
	SyncEnabled  bool       `db:"sync_enabled"`
	Status       string     `db:"status"`
	LastError    *string    `db:"last_error"`
	LastSyncAt   *time.Time `db:"last_sync_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// NewLinkedAccountEntity converts a domain account for persistence.
func NewLinkedAccountEntity(a *domain.LinkedAccount) *LinkedAccountEntity {
	return &LinkedAccountEntity{
		ID:           a.ID.String(),
		OwnerID:      a.OwnerID.String(),
		Email:        a.Email,
		AccessToken:  a.Credential.AccessToken,
		RefreshToken: a.Credential.RefreshToken,
		ExpiresAt:    a.Credential.Expiry,
		SyncEnabled:  a.SyncEnabled,
		Status:       string(a.Status),
		LastError:    a.LastError,
		LastSyncAt:   a.LastSyncAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// ToDomain converts the row back. Malformed ids become uuid.Nil.
func (e *LinkedAccountEntity) ToDomain() *domain.LinkedAccount {
	id, _ := uuid.Parse(e.ID)
	ownerID, _ := uuid.Parse(e.OwnerID)
	return &domain.LinkedAccount{
		ID:      id,
		OwnerID: ownerID,
		Email:   e.Email,
		Credential: domain.SealedCredential{
			AccessToken:  e.AccessToken,
			RefreshToken: e.RefreshToken,
			Expiry:       e.ExpiresAt,
		},
		SyncEnabled: e.SyncEnabled,
		Status:      domain.AccountStatus(e.Status),
		LastError:   e.LastError,
		LastSyncAt:  e.LastSyncAt,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
