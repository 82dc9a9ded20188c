package out

import (
	"context"
	"errors"

	"jobtrack_server/core/domain"

	"golang.org/x/oauth2"
)

// OAuthProvider is the OAuth collaborator: consent URL, code exchange and identity lookup.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.Credential, error)
	IdentityEmail(ctx context.Context, ts oauth2.TokenSource) (string, error)
	// TokenSource refreshes cred on demand. Errors from Token() mean the
	// credential could not be used at all.
	TokenSource(ctx context.Context, cred *domain.Credential) oauth2.TokenSource
}

// MailProvider is the mail transport collaborator.
type MailProvider interface {
	ListMessageIDs(ctx context.Context, ts oauth2.TokenSource, query string, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, ts oauth2.TokenSource, messageID string) (*domain.RawMessage, error)
}

// ErrCredentialRejected marks failures caused by an expired, revoked or
// unrefreshable credential.
var ErrCredentialRejected = errors.New("credential rejected")

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrPermission   ProviderErrorCode = "permission_denied"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
	ProviderErrUnavailable  ProviderErrorCode = "circuit_open"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrCredentialRejected) match auth failures.
func (e *ProviderError) Is(target error) bool {
	return target == ErrCredentialRejected &&
		(e.Code == ProviderErrAuth || e.Code == ProviderErrTokenExpired)
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
