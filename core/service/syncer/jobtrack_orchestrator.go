// Package syncer pulls candidate messages from linked mailboxes and turns them
// into application records.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"
	"jobtrack_server/core/service/inference"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// ErrSyncInProgress is returned when another run holds the account.
var ErrSyncInProgress = errors.New("sync already in progress")

// finalizeTimeout bounds the bookkeeping writes that follow a run. They use a
// context detached from the run so a timed-out run still records its outcome.
const finalizeTimeout = 10 * time.Second

// Deps are the collaborators of an Orchestrator. Runs and Guard may be nil; a
// nil Engine runs heuristics only.
type Deps struct {
	Accounts     out.AccountRepository
	Applications out.ApplicationRepository
	Runs         out.SyncRunRepository
	OAuth        out.OAuthProvider
	// OAuthErr is the configuration error of the OAuth provider, if any. It is
	// returned from every run instead of failing at startup.
	OAuthErr error
	Mail     out.MailProvider
	Sealer   out.CredentialSealer
	Guard    out.SyncGuard
	Engine   *inference.Engine
}

// =============================================================================
// Orchestrator
// =============================================================================

type Orchestrator struct {
	accounts     out.AccountRepository
	applications out.ApplicationRepository
	runs         out.SyncRunRepository
	oauth        out.OAuthProvider
	oauthErr     error
	mail         out.MailProvider
	sealer       out.CredentialSealer
	guard        out.SyncGuard
	engine       *inference.Engine
	cfg          Config

	now func() time.Time
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	engine := deps.Engine
	if engine == nil {
		engine = inference.NewEngine(nil)
	}
	return &Orchestrator{
		accounts:     deps.Accounts,
		applications: deps.Applications,
		runs:         deps.Runs,
		oauth:        deps.OAuth,
		oauthErr:     deps.OAuthErr,
		mail:         deps.Mail,
		sealer:       deps.Sealer,
		guard:        deps.Guard,
		engine:       engine,
		cfg:          cfg.normalized(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SyncAccount runs one account. Account-level failures (credential, listing)
// are reported in the result and on the account, not returned; the error
// return is reserved for runs that could not start at all.
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	if o.oauthErr != nil {
		return nil, o.oauthErr
	}

	entity, err := o.accounts.GetByID(ctx, accountID.String())
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("account")
		}
		return nil, apperr.DatabaseError("get account", err)
	}
	account := entity.ToDomain()

	if o.guard != nil {
		release, ok, err := o.guard.Acquire(ctx, account.ID, o.cfg.GuardTTL)
		switch {
		case err != nil:
			logger.WithError(err).Warn("[Orchestrator.SyncAccount] guard unavailable for %s, running unguarded", account.ID)
		case !ok:
			return nil, apperr.SyncInProgress(account.ID.String()).WithError(ErrSyncInProgress)
		default:
			defer release()
		}
	}

	return o.run(ctx, account, trigger), nil
}

// SyncAllEnabledAccounts fans out over the owner's enabled accounts.
func (o *Orchestrator) SyncAllEnabledAccounts(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error) {
	return o.syncOwner(ctx, ownerID, domain.TriggerManual)
}

func (o *Orchestrator) syncOwner(ctx context.Context, ownerID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	if o.oauthErr != nil {
		return nil, o.oauthErr
	}

	entities, err := o.accounts.ListByOwner(ctx, ownerID.String())
	if err != nil {
		return nil, apperr.DatabaseError("list accounts", err)
	}

	total := &domain.SyncResult{}
	var mu sync.Mutex
	var g errgroup.Group

	for _, entity := range entities {
		if !entity.SyncEnabled {
			continue
		}
		account := entity.ToDomain()
		g.Go(func() error {
			result, err := o.SyncAccount(ctx, account.ID, trigger)
			if err != nil {
				if errors.Is(err, ErrSyncInProgress) {
					logger.Info("[Orchestrator.SyncAllEnabledAccounts] %s already syncing, skipped", account.ID)
					return nil
				}
				logger.WithError(err).Error("[Orchestrator.SyncAllEnabledAccounts] account %s failed", account.ID)
				result = &domain.SyncResult{AccountID: account.ID, Error: err.Error()}
			}
			mu.Lock()
			total.Add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("[Orchestrator.SyncAllEnabledAccounts] owner %s: processed=%d new=%d failed=%d account_errors=%d",
		ownerID, total.ProcessedCount, total.NewRecordCount, total.FailedCount, total.AccountErrors)
	return total, nil
}

// SyncAllOwners is the sweep entry point. Owners are processed one at a time.
func (o *Orchestrator) SyncAllOwners(ctx context.Context) (*domain.SyncResult, error) {
	owners, err := o.accounts.ListOwnersWithEnabledAccounts(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list owners", err)
	}

	total := &domain.SyncResult{}
	for _, raw := range owners {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			logger.Warn("[Orchestrator.SyncAllOwners] skipping malformed owner id %q", raw)
			continue
		}
		result, err := o.syncOwner(ctx, ownerID, domain.TriggerSweep)
		if err != nil {
			return total, err
		}
		total.Add(result)
	}
	return total, nil
}

// =============================================================================
// Run
// =============================================================================

func (o *Orchestrator) run(ctx context.Context, account *domain.LinkedAccount, trigger domain.SyncTrigger) *domain.SyncResult {
	startedAt := o.now()
	result := &domain.SyncResult{RunID: uuid.New(), AccountID: account.ID}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	logger.Info("[Orchestrator.run] %s started for %s (%s)", result.RunID, account.ID, trigger)

	accountErr := o.withCredential(runCtx, account, func(ts oauth2.TokenSource) error {
		return o.syncMessages(runCtx, account, ts, result)
	})
	if errors.Is(accountErr, out.ErrCredentialRejected) {
		// the owner has to reconnect; the code tells the dashboard so
		accountErr = apperr.CredentialRejected(accountErr)
	}

	finalCtx, finalCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finalCancel()
	o.finish(finalCtx, account, trigger, startedAt, result, accountErr)
	return result
}

// withCredential opens the sealed credential, hands fn a token source, and
// writes refreshed tokens back sealed. Plaintext never leaves this function.
func (o *Orchestrator) withCredential(ctx context.Context, account *domain.LinkedAccount, fn func(ts oauth2.TokenSource) error) error {
	aad := account.CredentialAAD()
	access, err := o.sealer.Open(account.Credential.AccessToken, aad)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", out.ErrCredentialRejected)
	}
	refresh, err := o.sealer.Open(account.Credential.RefreshToken, aad)
	if err != nil {
		return fmt.Errorf("decrypt credential: %w", out.ErrCredentialRejected)
	}

	cred := &domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       account.Credential.Expiry,
	}
	ts := &reportingTokenSource{base: o.oauth.TokenSource(ctx, cred)}

	runErr := func() error {
		if _, err := ts.Token(); err != nil {
			return fmt.Errorf("refresh credential: %w", err)
		}
		return fn(ts)
	}()

	if tok := ts.latest(); tok != nil {
		refreshed := &domain.Credential{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			Expiry:       tok.Expiry,
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = cred.RefreshToken
		}
		if !refreshed.Equal(cred) {
			o.persistRefreshed(context.WithoutCancel(ctx), account, refreshed)
		}
	}
	return runErr
}

func (o *Orchestrator) persistRefreshed(ctx context.Context, account *domain.LinkedAccount, cred *domain.Credential) {
	aad := account.CredentialAAD()
	access, err := o.sealer.Seal(cred.AccessToken, aad)
	if err != nil {
		logger.WithError(err).Error("[Orchestrator.persistRefreshed] seal access token for %s", account.ID)
		return
	}
	refresh, err := o.sealer.Seal(cred.RefreshToken, aad)
	if err != nil {
		logger.WithError(err).Error("[Orchestrator.persistRefreshed] seal refresh token for %s", account.ID)
		return
	}
	if err := o.accounts.UpdateTokens(ctx, account.ID.String(), access, refresh, cred.Expiry); err != nil {
		logger.WithError(err).Error("[Orchestrator.persistRefreshed] store refreshed tokens for %s", account.ID)
		return
	}
	logger.Debug("[Orchestrator.persistRefreshed] refreshed tokens stored for %s", account.ID)
}

// syncMessages returns an error only for account-level failures. Per-message
// failures are counted in result.
func (o *Orchestrator) syncMessages(ctx context.Context, account *domain.LinkedAccount, ts oauth2.TokenSource, result *domain.SyncResult) error {
	ids, err := o.mail.ListMessageIDs(ctx, ts, BuildQuery(o.cfg.LookbackDays), o.cfg.MaxResults)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	logger.Debug("[Orchestrator.syncMessages] %d candidate messages for %s", len(ids), account.ID)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.cfg.MessageConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			created, err := o.syncMessage(ctx, account, ts, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.WithError(err).Warn("[Orchestrator.syncMessages] message %s skipped", id)
				result.FailedCount++
				result.FailedIDs = append(result.FailedIDs, id)
				return nil
			}
			result.ProcessedCount++
			if created {
				result.NewRecordCount++
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) syncMessage(ctx context.Context, account *domain.LinkedAccount, ts oauth2.TokenSource, id string) (bool, error) {
	raw, err := o.mail.GetMessage(ctx, ts, id)
	if err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}
	record := o.engine.Infer(ctx, inference.InferInput{
		OwnerID:     account.OwnerID,
		AccountID:   account.ID,
		SourceEmail: account.Email,
		Message:     raw,
		Now:         o.now(),
	})
	if record.ID == "" {
		record.ID = id
		record.MessageLink = inference.MessageLink(id)
	}
	created, err := o.applications.Upsert(ctx, record)
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}
	return created, nil
}

// finish writes the account outcome, then the history row. It runs after all
// message work so the account status reflects the whole run.
func (o *Orchestrator) finish(ctx context.Context, account *domain.LinkedAccount, trigger domain.SyncTrigger, startedAt time.Time, result *domain.SyncResult, accountErr error) {
	finishedAt := o.now()

	status := domain.AccountStatusActive
	var lastError *string
	if accountErr != nil {
		status = domain.AccountStatusError
		msg := accountErr.Error()
		lastError = &msg
		result.Error = msg
		logger.WithError(accountErr).Error("[Orchestrator.finish] account %s sync failed", account.ID)
	}

	if err := o.accounts.UpdateSyncState(ctx, account.ID.String(), string(status), lastError, finishedAt); err != nil {
		logger.WithError(err).Error("[Orchestrator.finish] update sync state for %s", account.ID)
	}

	if o.runs != nil {
		run := &domain.SyncRun{
			ID:               result.RunID,
			AccountID:        account.ID,
			OwnerID:          account.OwnerID,
			Trigger:          trigger,
			StartedAt:        startedAt,
			FinishedAt:       finishedAt,
			ProcessedCount:   result.ProcessedCount,
			NewRecordCount:   result.NewRecordCount,
			FailedCount:      result.FailedCount,
			FailedMessageIDs: result.FailedIDs,
			Error:            lastError,
		}
		if err := o.runs.Create(ctx, run); err != nil {
			logger.WithError(err).Warn("[Orchestrator.finish] sync run history for %s not written", account.ID)
		}
	}

	logger.Info("[Orchestrator.finish] %s done for %s: processed=%d new=%d failed=%d in %v",
		result.RunID, account.ID, result.ProcessedCount, result.NewRecordCount, result.FailedCount, finishedAt.Sub(startedAt))
}
