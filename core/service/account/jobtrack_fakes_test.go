package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

type fakeSealer struct{}

func (fakeSealer) Seal(plaintext, aad string) (string, error) {
	return "sealed[" + aad + "]" + plaintext, nil
}

func (fakeSealer) Open(ciphertext, aad string) (string, error) {
	prefix := "sealed[" + aad + "]"
	if !strings.HasPrefix(ciphertext, prefix) {
		return "", errors.New("decryption failed")
	}
	return strings.TrimPrefix(ciphertext, prefix), nil
}

// =============================================================================
// Accounts
// =============================================================================

type memAccounts struct {
	mu   sync.Mutex
	rows map[string]*out.LinkedAccountEntity
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]*out.LinkedAccountEntity{}}
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memAccounts) ListByOwner(ctx context.Context, ownerID string) ([]*out.LinkedAccountEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*out.LinkedAccountEntity
	for _, row := range m.rows {
		if row.OwnerID == ownerID {
			cp := *row
			list = append(list, &cp)
		}
	}
	return list, nil
}

func (m *memAccounts) ListOwnersWithEnabledAccounts(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id string) (*out.LinkedAccountEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memAccounts) GetByEmail(ctx context.Context, ownerID, email string) (*out.LinkedAccountEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OwnerID == ownerID && row.Email == email {
			cp := *row
			return &cp, nil
		}
	}
	return nil, out.ErrNotFound
}

func (m *memAccounts) Create(ctx context.Context, entity *out.LinkedAccountEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.OwnerID == entity.OwnerID && row.Email == entity.Email {
			return out.ErrDuplicate
		}
	}
	cp := *entity
	m.rows[entity.ID] = &cp
	return nil
}

func (m *memAccounts) UpdateCredential(ctx context.Context, entity *out.LinkedAccountEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[entity.ID]
	if !ok {
		return out.ErrNotFound
	}
	row.AccessToken, row.RefreshToken, row.ExpiresAt = entity.AccessToken, entity.RefreshToken, entity.ExpiresAt
	row.Status, row.LastError = string(domain.AccountStatusActive), nil
	return nil
}

func (m *memAccounts) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	return errors.New("not used")
}

func (m *memAccounts) UpdateSyncState(ctx context.Context, id, status string, lastError *string, lastSyncAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.Status, row.LastError, row.LastSyncAt = status, lastError, &lastSyncAt
	return nil
}

func (m *memAccounts) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return out.ErrNotFound
	}
	row.SyncEnabled = enabled
	return nil
}

func (m *memAccounts) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

// =============================================================================
// Applications, runs, states
// =============================================================================

type memApplications struct {
	records    []*domain.ApplicationRecord
	lastFilter domain.ApplicationFilter
	edits      int
}

func (m *memApplications) Upsert(ctx context.Context, rec *domain.ApplicationRecord) (bool, error) {
	m.records = append(m.records, rec)
	return true, nil
}

func (m *memApplications) find(ownerID uuid.UUID, id string) int {
	for i, r := range m.records {
		if r.OwnerID == ownerID && r.ID == id {
			return i
		}
	}
	return -1
}

func (m *memApplications) Get(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error) {
	i := m.find(ownerID, id)
	if i < 0 {
		return nil, out.ErrNotFound
	}
	cp := *m.records[i]
	return &cp, nil
}

func (m *memApplications) ApplyEdit(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error) {
	m.edits++
	i := m.find(ownerID, id)
	if i < 0 {
		return nil, out.ErrNotFound
	}
	m.records[i] = m.records[i].Apply(edit)
	cp := *m.records[i]
	return &cp, nil
}

func (m *memApplications) List(ctx context.Context, ownerID uuid.UUID, filter domain.ApplicationFilter) ([]*domain.ApplicationRecord, error) {
	m.lastFilter = filter
	var list []*domain.ApplicationRecord
	for _, r := range m.records {
		if r.OwnerID != ownerID {
			continue
		}
		if filter.NeedsReview != nil && r.NeedsReview != *filter.NeedsReview {
			continue
		}
		list = append(list, r)
	}
	return list, nil
}

type memRuns struct {
	runs []*domain.SyncRun
}

func (m *memRuns) Create(ctx context.Context, run *domain.SyncRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error) {
	var list []*domain.SyncRun
	for _, r := range m.runs {
		if r.AccountID == accountID && len(list) < limit {
			list = append(list, r)
		}
	}
	return list, nil
}

type memStates struct {
	mu     sync.Mutex
	states map[string]uuid.UUID
}

func (m *memStates) StoreState(ctx context.Context, state string, ownerID uuid.UUID, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = ownerID
	return nil
}

func (m *memStates) ValidateState(ctx context.Context, state string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ownerID, ok := m.states[state]
	if !ok {
		return uuid.Nil, errors.New("state not found or expired")
	}
	delete(m.states, state)
	return ownerID, nil
}

// =============================================================================
// OAuth, publisher, syncer
// =============================================================================

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// fakeOAuth maps codes to credentials and access tokens to identities.
type fakeOAuth struct {
	creds  map[string]*domain.Credential
	emails map[string]string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*domain.Credential, error) {
	cred, ok := f.creds[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	cp := *cred
	return &cp, nil
}

func (f *fakeOAuth) IdentityEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	tok, err := ts.Token()
	if err != nil {
		return "", err
	}
	return f.emails[tok.AccessToken], nil
}

func (f *fakeOAuth) TokenSource(ctx context.Context, cred *domain.Credential) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: cred.AccessToken, RefreshToken: cred.RefreshToken, Expiry: cred.Expiry}, nil
	})
}

type fakePublisher struct {
	jobs []*domain.SyncJob
	err  error
}

func (p *fakePublisher) PublishSync(ctx context.Context, job *domain.SyncJob) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type requestKey struct{}

// syncCtx is what a sync saw of its context while it ran.
type syncCtx struct {
	err          error
	hasDeadline  bool
	requestValue any
}

type fakeSyncer struct {
	calls chan uuid.UUID
	ctxs  chan syncCtx
	block chan struct{} // when set, SyncAccount waits for it to close
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{calls: make(chan uuid.UUID, 8), ctxs: make(chan syncCtx, 8)}
}

func (f *fakeSyncer) SyncAccount(ctx context.Context, accountID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	if f.block != nil {
		<-f.block
	}
	_, hasDeadline := ctx.Deadline()
	f.ctxs <- syncCtx{err: ctx.Err(), hasDeadline: hasDeadline, requestValue: ctx.Value(requestKey{})}
	f.calls <- accountID
	return &domain.SyncResult{AccountID: accountID, ProcessedCount: 1}, nil
}

func (f *fakeSyncer) SyncAllEnabledAccounts(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error) {
	return &domain.SyncResult{}, nil
}

func (f *fakeSyncer) SyncAllOwners(ctx context.Context) (*domain.SyncResult, error) {
	return &domain.SyncResult{}, nil
}
