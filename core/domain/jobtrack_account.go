package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusError  AccountStatus = "error"
)

// Credential is plaintext OAuth token material. It only exists inside a
// use-scope; at rest it is always sealed.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// Equal reports whether two credentials carry the same tokens and expiry.
func (c *Credential) Equal(o *Credential) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.AccessToken == o.AccessToken &&
		c.RefreshToken == o.RefreshToken &&
		c.Expiry.Equal(o.Expiry)
}

// SealedCredential is the at-rest form of a Credential.
type SealedCredential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// LinkedAccount is a Gmail identity whose inbox may be read on the owner's behalf.
type LinkedAccount struct {
	ID          uuid.UUID        `json:"id"`
	OwnerID     uuid.UUID        `json:"owner_id"`
	Email       string           `json:"email"`
	Credential  SealedCredential `json:"-"`
	SyncEnabled bool             `json:"sync_enabled"`
	Status      AccountStatus    `json:"status"`
	LastError   *string          `json:"last_error,omitempty"`
	LastSyncAt  *time.Time       `json:"last_sync_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CredentialAAD binds sealed tokens to the account they belong to.
func (a *LinkedAccount) CredentialAAD() string {
	return a.OwnerID.String() + "|" + a.Email
}

// AccountView is the client-facing projection of a LinkedAccount. It has no
// credential fields at all, so nothing can leak through serialization.
type AccountView struct {
	ID          uuid.UUID     `json:"id"`
	Email       string        `json:"email"`
	SyncEnabled bool          `json:"sync_enabled"`
	Status      AccountStatus `json:"status"`
	LastError   *string       `json:"last_error"`
	LastSyncAt  *time.Time    `json:"last_sync_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (a *LinkedAccount) View() *AccountView {
	return &AccountView{
		ID:          a.ID,
		Email:       a.Email,
		SyncEnabled: a.SyncEnabled,
		Status:      a.Status,
		LastError:   a.LastError,
		LastSyncAt:  a.LastSyncAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
