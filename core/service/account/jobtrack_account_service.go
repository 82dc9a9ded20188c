// Package account manages linked mailboxes: consent, linking, toggling and
// unlinking, plus the owner-scoped read paths of the dashboard.
package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/in"
	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"

	"github.com/google/uuid"
)

const (
	// StateTTL is how long a consent flow may take.
	StateTTL = 10 * time.Minute

	// initialSyncTimeout bounds the in-process sync started after linking.
	initialSyncTimeout = 10 * time.Minute

	defaultPageSize = 50
	maxPageSize     = 200
	defaultRunLimit = 20
)

type Deps struct {
	Accounts     out.AccountRepository
	Applications out.ApplicationRepository
	Runs         out.SyncRunRepository
	OAuth        out.OAuthProvider
	OAuthErr     error
	States       out.StateStore
	Sealer       out.CredentialSealer
	// Publisher queues the post-link sync. When nil, or when publishing fails,
	// Syncer runs it in the background instead.
	Publisher out.SyncJobPublisher
	Syncer    in.SyncService
}

type Service struct {
	accounts     out.AccountRepository
	applications out.ApplicationRepository
	runs         out.SyncRunRepository
	oauth        out.OAuthProvider
	oauthErr     error
	states       out.StateStore
	sealer       out.CredentialSealer
	publisher    out.SyncJobPublisher
	syncer       in.SyncService

	now func() time.Time
}

var _ in.AccountService = (*Service)(nil)

func NewService(deps Deps) *Service {
	return &Service{
		accounts:     deps.Accounts,
		applications: deps.Applications,
		runs:         deps.Runs,
		oauth:        deps.OAuth,
		oauthErr:     deps.OAuthErr,
		states:       deps.States,
		sealer:       deps.Sealer,
		publisher:    deps.Publisher,
		syncer:       deps.Syncer,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// Consent flow
// =============================================================================

func (s *Service) AuthURL(ctx context.Context, ownerID uuid.UUID) (string, string, error) {
	if s.oauthErr != nil {
		return "", "", s.oauthErr
	}

	state, err := newState()
	if err != nil {
		return "", "", apperr.InternalWithError(err)
	}
	if err := s.states.StoreState(ctx, state, ownerID, StateTTL); err != nil {
		return "", "", apperr.ExternalError("state store", err)
	}
	return s.oauth.AuthCodeURL(state), state, nil
}

func (s *Service) ResolveState(ctx context.Context, state string) (uuid.UUID, error) {
	if state == "" {
		return uuid.Nil, apperr.InvalidOAuthState(errors.New("missing state"))
	}
	ownerID, err := s.states.ValidateState(ctx, state)
	if err != nil {
		return uuid.Nil, apperr.InvalidOAuthState(err)
	}
	return ownerID, nil
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// =============================================================================
// Link
// =============================================================================

// LinkAccount exchanges code and upserts by (owner, email). Relinking an address
// replaces its credential in place and clears any error status.
func (s *Service) LinkAccount(ctx context.Context, ownerID uuid.UUID, code string) (*domain.AccountView, error) {
	if s.oauthErr != nil {
		return nil, s.oauthErr
	}
	if code == "" {
		return nil, apperr.MissingField("code")
	}

	cred, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}
	email, err := s.oauth.IdentityEmail(ctx, s.oauth.TokenSource(ctx, cred))
	if err != nil {
		return nil, apperr.OAuthFailed("google", err)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.OAuthFailed("google", errors.New("provider returned no email"))
	}

	account, err := s.upsert(ctx, ownerID, email, cred)
	if err != nil {
		return nil, err
	}
	logger.Info("[AccountService.LinkAccount] linked %s for owner %s", account.ID, ownerID)

	s.triggerInitialSync(ctx, account)
	return account.View(), nil
}

func (s *Service) upsert(ctx context.Context, ownerID uuid.UUID, email string, cred *domain.Credential) (*domain.LinkedAccount, error) {
	existing, err := s.accounts.GetByEmail(ctx, ownerID.String(), email)
	switch {
	case err == nil:
		return s.relink(ctx, existing.ToDomain(), cred)
	case !errors.Is(err, out.ErrNotFound):
		return nil, apperr.DatabaseError("get account", err)
	}

	now := s.now()
	account := &domain.LinkedAccount{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Email:       email,
		SyncEnabled: true,
		Status:      domain.AccountStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.seal(account, cred); err != nil {
		return nil, err
	}

	err = s.accounts.Create(ctx, out.NewLinkedAccountEntity(account))
	if errors.Is(err, out.ErrDuplicate) {
		// Lost a race with a concurrent link of the same address.
		existing, getErr := s.accounts.GetByEmail(ctx, ownerID.String(), email)
		if getErr != nil {
			return nil, apperr.DatabaseError("get account", getErr)
		}
		return s.relink(ctx, existing.ToDomain(), cred)
	}
	if err != nil {
		return nil, apperr.DatabaseError("create account", err)
	}
	return account, nil
}

func (s *Service) relink(ctx context.Context, account *domain.LinkedAccount, cred *domain.Credential) (*domain.LinkedAccount, error) {
	keptRefresh := account.Credential.RefreshToken
	if err := s.seal(account, cred); err != nil {
		return nil, err
	}
	// Google only returns a refresh token on the first consent.
	if cred.RefreshToken == "" {
		account.Credential.RefreshToken = keptRefresh
	}
	account.Status = domain.AccountStatusActive
	account.LastError = nil
	account.UpdatedAt = s.now()

	if err := s.accounts.UpdateCredential(ctx, out.NewLinkedAccountEntity(account)); err != nil {
		return nil, apperr.DatabaseError("update account", err)
	}
	return account, nil
}

func (s *Service) seal(account *domain.LinkedAccount, cred *domain.Credential) error {
	aad := account.CredentialAAD()
	access, err := s.sealer.Seal(cred.AccessToken, aad)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	refresh, err := s.sealer.Seal(cred.RefreshToken, aad)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	account.Credential = domain.SealedCredential{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       cred.Expiry,
	}
	return nil
}

// triggerInitialSync never fails the link.
func (s *Service) triggerInitialSync(ctx context.Context, account *domain.LinkedAccount) {
	if s.publisher != nil {
		job := &domain.SyncJob{
			AccountID: account.ID,
			OwnerID:   account.OwnerID,
			Trigger:   domain.TriggerLink,
			QueuedAt:  s.now(),
		}
		err := s.publisher.PublishSync(ctx, job)
		if err == nil {
			return
		}
		logger.WithError(err).Warn("[AccountService.triggerInitialSync] publish failed for %s, syncing inline", account.ID)
	}
	if s.syncer == nil {
		return
	}

	// The request context ends with the response; the sync gets its own.
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), initialSyncTimeout)
		defer cancel()
		if _, err := s.syncer.SyncAccount(bg, account.ID, domain.TriggerLink); err != nil {
			logger.WithError(err).Warn("[AccountService.triggerInitialSync] initial sync for %s failed", account.ID)
		}
	}()
}

// =============================================================================
// Owner-scoped operations
// =============================================================================

func (s *Service) ListAccounts(ctx context.Context, ownerID uuid.UUID) ([]*domain.AccountView, error) {
	entities, err := s.accounts.ListByOwner(ctx, ownerID.String())
	if err != nil {
		return nil, apperr.DatabaseError("list accounts", err)
	}
	views := make([]*domain.AccountView, 0, len(entities))
	for _, e := range entities {
		views = append(views, e.ToDomain().View())
	}
	return views, nil
}

func (s *Service) SetEnabled(ctx context.Context, ownerID, accountID uuid.UUID, enabled bool) (*domain.AccountView, error) {
	account, err := s.owned(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetSyncEnabled(ctx, accountID.String(), enabled); err != nil {
		return nil, apperr.DatabaseError("update account", err)
	}
	account.SyncEnabled = enabled
	account.UpdatedAt = s.now()
	return account.View(), nil
}

func (s *Service) Unlink(ctx context.Context, ownerID, accountID uuid.UUID) error {
	if _, err := s.owned(ctx, ownerID, accountID); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, accountID.String()); err != nil {
		return apperr.DatabaseError("delete account", err)
	}
	logger.Info("[AccountService.Unlink] %s unlinked by %s", accountID, ownerID)
	return nil
}

// TriggerSync runs a manual sync of an owned account and waits for it.
func (s *Service) TriggerSync(ctx context.Context, ownerID, accountID uuid.UUID) (*domain.SyncResult, error) {
	if _, err := s.owned(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	if s.syncer == nil {
		return nil, apperr.Internal("sync is not available")
	}
	return s.syncer.SyncAccount(ctx, accountID, domain.TriggerManual)
}

// TriggerSyncAll runs every enabled account of the owner and waits for them.
func (s *Service) TriggerSyncAll(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error) {
	if s.syncer == nil {
		return nil, apperr.Internal("sync is not available")
	}
	return s.syncer.SyncAllEnabledAccounts(ctx, ownerID)
}

func (s *Service) ListApplications(ctx context.Context, ownerID uuid.UUID, opts in.ListOptions) ([]*domain.ApplicationRecord, error) {
	filter := domain.ApplicationFilter{
		NeedsReview: opts.NeedsReview,
		Limit:       clamp(opts.Limit, defaultPageSize, maxPageSize),
		Offset:      max(opts.Offset, 0),
	}
	records, err := s.applications.List(ctx, ownerID, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list applications", err)
	}
	return records, nil
}

// GetApplication returns one of the owner's records. Records of other owners
// are reported as not found.
func (s *Service) GetApplication(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error) {
	rec, err := s.applications.Get(ctx, ownerID, id)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("application")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get application", err)
	}
	return rec, nil
}

// UpdateApplication applies an owner's correction. The record is marked
// user-edited, so later syncs only refresh its provenance.
func (s *Service) UpdateApplication(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error) {
	edit, err := normalizeEdit(edit)
	if err != nil {
		return nil, err
	}

	rec, err := s.applications.ApplyEdit(ctx, ownerID, id, edit)
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("application")
	}
	if err != nil {
		return nil, apperr.DatabaseError("update application", err)
	}
	logger.Info("[AccountService.UpdateApplication] %s edited by %s", id, ownerID)
	return rec, nil
}

func normalizeEdit(edit domain.ApplicationEdit) (domain.ApplicationEdit, error) {
	if edit.IsEmpty() {
		return edit, apperr.BadRequest("no editable fields in request")
	}
	if edit.Company != nil {
		v := strings.TrimSpace(*edit.Company)
		if v == "" {
			return edit, apperr.InvalidInput("company", "must not be empty")
		}
		edit.Company = &v
	}
	if edit.Role != nil {
		v := strings.TrimSpace(*edit.Role)
		if v == "" {
			return edit, apperr.InvalidInput("role", "must not be empty")
		}
		edit.Role = &v
	}
	if edit.Status != nil && !edit.Status.Valid() {
		return edit, apperr.InvalidInput("status", "unknown status")
	}
	if edit.Notes != nil && len(*edit.Notes) > domain.MaxNotesLength {
		return edit, apperr.InvalidInput("notes", fmt.Sprintf("must be at most %d bytes", domain.MaxNotesLength))
	}
	return edit, nil
}

func (s *Service) ListSyncRuns(ctx context.Context, ownerID, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error) {
	if _, err := s.owned(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return []*domain.SyncRun{}, nil
	}
	runs, err := s.runs.ListByAccount(ctx, accountID, clamp(limit, defaultRunLimit, maxPageSize))
	if err != nil {
		return nil, apperr.DatabaseError("list sync runs", err)
	}
	return runs, nil
}

// owned loads an account and hides accounts of other owners behind NotFound.
func (s *Service) owned(ctx context.Context, ownerID, accountID uuid.UUID) (*domain.LinkedAccount, error) {
	entity, err := s.accounts.GetByID(ctx, accountID.String())
	if errors.Is(err, out.ErrNotFound) {
		return nil, apperr.NotFound("account")
	}
	if err != nil {
		return nil, apperr.DatabaseError("get account", err)
	}
	account := entity.ToDomain()
	if account.OwnerID != ownerID {
		return nil, apperr.NotFound("account")
	}
	return account, nil
}

func clamp(v, def, ceiling int) int {
	if v <= 0 {
		return def
	}
	return min(v, ceiling)
}
