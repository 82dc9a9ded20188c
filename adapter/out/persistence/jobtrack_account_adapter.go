// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jobtrack_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// AccountAdapter implements out.AccountRepository using PostgreSQL.
// Token columns hold sealed values; this adapter never sees plaintext.
type AccountAdapter struct {
	db *sqlx.DB
}

// NewAccountAdapter creates a new AccountAdapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

const accountColumns = `id, owner_id, email, access_token, refresh_token, expires_at,
		       sync_enabled, status, last_error, last_sync_at, created_at, updated_at`

// ListByOwner returns all linked accounts of an owner.
func (a *AccountAdapter) ListByOwner(ctx context.Context, ownerID string) ([]*out.LinkedAccountEntity, error) {
	var entities []*out.LinkedAccountEntity
	query := `SELECT ` + accountColumns + `
		FROM linked_accounts
		WHERE owner_id = $1
		ORDER BY created_at ASC`

	if err := a.db.SelectContext(ctx, &entities, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return entities, nil
}

// ListOwnersWithEnabledAccounts returns owners the sweep has work for.
func (a *AccountAdapter) ListOwnersWithEnabledAccounts(ctx context.Context) ([]string, error) {
	var owners []string
	query := `SELECT DISTINCT owner_id FROM linked_accounts WHERE sync_enabled = true ORDER BY owner_id`

	if err := a.db.SelectContext(ctx, &owners, query); err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}

// GetByID returns an account by ID.
func (a *AccountAdapter) GetByID(ctx context.Context, id string) (*out.LinkedAccountEntity, error) {
	var entity out.LinkedAccountEntity
	query := `SELECT ` + accountColumns + ` FROM linked_accounts WHERE id = $1`

	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// GetByEmail returns the account of an owner for an address.
func (a *AccountAdapter) GetByEmail(ctx context.Context, ownerID, email string) (*out.LinkedAccountEntity, error) {
	var entity out.LinkedAccountEntity
	query := `SELECT ` + accountColumns + ` FROM linked_accounts WHERE owner_id = $1 AND email = $2`

	if err := a.db.GetContext(ctx, &entity, query, ownerID, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entity, nil
}

// Create inserts a new account. The (owner_id, email) unique index turns a
// concurrent link of the same address into ErrDuplicate.
func (a *AccountAdapter) Create(ctx context.Context, entity *out.LinkedAccountEntity) error {
	query := `
		INSERT INTO linked_accounts (id, owner_id, email, access_token, refresh_token, expires_at,
		                             sync_enabled, status, last_error, last_sync_at, created_at, updated_at)
		VALUES (:id, :owner_id, :email, :access_token, :refresh_token, :expires_at,
		        :sync_enabled, :status, :last_error, :last_sync_at, :created_at, :updated_at)`

	if _, err := a.db.NamedExecContext(ctx, query, entity); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateCredential replaces token material and clears the error state.
func (a *AccountAdapter) UpdateCredential(ctx context.Context, entity *out.LinkedAccountEntity) error {
	query := `
		UPDATE linked_accounts
		SET access_token = $2, refresh_token = $3, expires_at = $4,
		    status = 'active', last_error = NULL, updated_at = $5
		WHERE id = $1`

	return a.execOne(ctx, query, entity.ID, entity.AccessToken, entity.RefreshToken, entity.ExpiresAt, time.Now())
}

// UpdateTokens stores a refreshed credential. Status is left to the run outcome.
func (a *AccountAdapter) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE linked_accounts
		SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = $5
		WHERE id = $1`

	return a.execOne(ctx, query, id, accessToken, refreshToken, expiresAt, time.Now())
}

// UpdateSyncState records the outcome of a sync run.
func (a *AccountAdapter) UpdateSyncState(ctx context.Context, id, status string, lastError *string, lastSyncAt time.Time) error {
	query := `
		UPDATE linked_accounts
		SET status = $2, last_error = $3, last_sync_at = $4, updated_at = $5
		WHERE id = $1`

	return a.execOne(ctx, query, id, status, lastError, lastSyncAt, time.Now())
}

// SetSyncEnabled toggles sync_enabled.
func (a *AccountAdapter) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE linked_accounts SET sync_enabled = $2, updated_at = $3 WHERE id = $1`
	return a.execOne(ctx, query, id, enabled, time.Now())
}

// Delete removes an account. Application records reference it by value only.
func (a *AccountAdapter) Delete(ctx context.Context, id string) error {
	return a.execOne(ctx, `DELETE FROM linked_accounts WHERE id = $1`, id)
}

func (a *AccountAdapter) execOne(ctx context.Context, query string, args ...any) error {
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ out.AccountRepository = (*AccountAdapter)(nil)
