package syncer

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// =============================================================================
// Sealer
// =============================================================================

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
	mu     sync.Mutex
	rows   map[string]*out.LinkedAccountEntity
	writes []string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[string]*out.LinkedAccountEntity{}}
}

// add stores an account whose tokens are sealed with fakeSealer.
func (m *memAccounts) add(ownerID uuid.UUID, email, accessToken string, enabled bool) uuid.UUID {
	id := uuid.New()
	aad := ownerID.String() + "|" + email
	sealer := fakeSealer{}
	access, _ := sealer.Seal(accessToken, aad)
	refresh, _ := sealer.Seal("refresh-"+accessToken, aad)
	m.rows[id.String()] = &out.LinkedAccountEntity{
		ID:           id.String(),
		OwnerID:      ownerID.String(),
		Email:        email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		SyncEnabled:  enabled,
		Status:       string(domain.AccountStatusActive),
	}
	return id
}

func (m *memAccounts) get(id uuid.UUID) out.LinkedAccountEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id.String()]
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
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var owners []string
	for _, row := range m.rows {
		if row.SyncEnabled && !seen[row.OwnerID] {
			seen[row.OwnerID] = true
			owners = append(owners, row.OwnerID)
		}
	}
	return owners, nil
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
	return nil, out.ErrNotFound
}

func (m *memAccounts) Create(ctx context.Context, entity *out.LinkedAccountEntity) error {
	return errors.New("not used")
}

func (m *memAccounts) UpdateCredential(ctx context.Context, entity *out.LinkedAccountEntity) error {
	return errors.New("not used")
}

func (m *memAccounts) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.AccessToken, row.RefreshToken, row.ExpiresAt = accessToken, refreshToken, expiresAt
	m.writes = append(m.writes, "tokens")
	return nil
}

func (m *memAccounts) UpdateSyncState(ctx context.Context, id, status string, lastError *string, lastSyncAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[id]
	row.Status, row.LastError, row.LastSyncAt = status, lastError, &lastSyncAt
	m.writes = append(m.writes, "state")
	return nil
}

func (m *memAccounts) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	return errors.New("not used")
}

func (m *memAccounts) Delete(ctx context.Context, id string) error {
	return errors.New("not used")
}

// =============================================================================
// Applications and runs
// =============================================================================

type memApplications struct {
	mu      sync.Mutex
	records map[string]*domain.ApplicationRecord
}

func newMemApplications() *memApplications {
	return &memApplications{records: map[string]*domain.ApplicationRecord{}}
}

func (m *memApplications) Upsert(ctx context.Context, rec *domain.ApplicationRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.OwnerID.String() + "/" + rec.ID
	if existing, ok := m.records[key]; ok {
		m.records[key] = existing.Merge(rec)
		return false, nil
	}
	cp := *rec
	m.records[key] = &cp
	return true, nil
}

func (m *memApplications) Get(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ownerID.String()+"/"+id]
	if !ok {
		return nil, out.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memApplications) ApplyEdit(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ownerID.String() + "/" + id
	rec, ok := m.records[key]
	if !ok {
		return nil, out.ErrNotFound
	}
	m.records[key] = rec.Apply(edit)
	cp := *m.records[key]
	return &cp, nil
}

func (m *memApplications) List(ctx context.Context, ownerID uuid.UUID, filter domain.ApplicationFilter) ([]*domain.ApplicationRecord, error) {
	return nil, nil
}

func (m *memApplications) edit(ownerID uuid.UUID, id string, fn func(*domain.ApplicationRecord)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.records[ownerID.String()+"/"+id])
}

type memRuns struct {
	mu   sync.Mutex
	runs []*domain.SyncRun
}

func (m *memRuns) Create(ctx context.Context, run *domain.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRuns) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error) {
	return nil, nil
}

// =============================================================================
// Providers
// =============================================================================

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// fakeOAuth keys behavior on the plaintext access token.
type fakeOAuth struct {
	rejected  map[string]bool
	refreshTo map[string]string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (f *fakeOAuth) Exchange(ctx context.Context, code string) (*domain.Credential, error) {
	return nil, errors.New("not used")
}

func (f *fakeOAuth) IdentityEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeOAuth) TokenSource(ctx context.Context, cred *domain.Credential) oauth2.TokenSource {
	return tokenSourceFunc(func() (*oauth2.Token, error) {
		if f.rejected[cred.AccessToken] {
			return nil, out.NewProviderError("gmail", out.ProviderErrAuth, "invalid_grant", nil, false)
		}
		tok := &oauth2.Token{AccessToken: cred.AccessToken, RefreshToken: cred.RefreshToken, Expiry: cred.Expiry}
		if next, ok := f.refreshTo[cred.AccessToken]; ok {
			tok = &oauth2.Token{AccessToken: next, Expiry: cred.Expiry.Add(time.Hour)}
		}
		return tok, nil
	})
}

type fakeMail struct {
	mu       sync.Mutex
	ids      []string
	messages map[string]*domain.RawMessage
	failing  map[string]bool
	listErr  error
	queries  []string
}

func (f *fakeMail) ListMessageIDs(ctx context.Context, ts oauth2.TokenSource, query string, maxResults int64) ([]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func (f *fakeMail) GetMessage(ctx context.Context, ts oauth2.TokenSource, id string) (*domain.RawMessage, error) {
	if f.failing[id] {
		return nil, out.NewProviderError("gmail", out.ProviderErrServer, "backend error", nil, true)
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, out.NewProviderError("gmail", out.ProviderErrNotFound, "message not found", nil, false)
	}
	return msg, nil
}

func rawMessage(id, subject, from, body string) *domain.RawMessage {
	return &domain.RawMessage{
		ID:           id,
		InternalDate: time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC).UnixMilli(),
		Payload: &domain.MessagePart{
			MimeType: "text/plain",
			Headers: []domain.MessageHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: from},
			},
			Body: &domain.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
		},
	}
}

// =============================================================================
// Guard
// =============================================================================

type fakeGuard struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
	err  error
}

func (g *fakeGuard) Acquire(ctx context.Context, accountID uuid.UUID, ttl time.Duration) (func(), bool, error) {
	if g.err != nil {
		return nil, false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[accountID] {
		return nil, false, nil
	}
	g.held[accountID] = true
	return func() {
		g.mu.Lock()
		delete(g.held, accountID)
		g.mu.Unlock()
	}, true, nil
}
