package worker

import (
	"context"
	"fmt"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/in"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"

	"github.com/google/uuid"
)

// SyncProcessor runs queued sync jobs through the orchestrator.
type SyncProcessor struct {
	syncer in.SyncService
}

func NewSyncProcessor(syncer in.SyncService) *SyncProcessor {
	return &SyncProcessor{syncer: syncer}
}

// ProcessSyncAccount syncs one account. Account-level failures are recorded on
// the account by the orchestrator and are not job failures.
func (p *SyncProcessor) ProcessSyncAccount(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[SyncPayload](msg)
	if err != nil {
		return permanent(fmt.Errorf("failed to parse payload: %w", err))
	}
	accountID, err := uuid.Parse(payload.AccountID)
	if err != nil {
		return permanent(apperr.InvalidInput("account_id", "must be a uuid"))
	}

	result, err := p.syncer.SyncAccount(ctx, accountID, triggerOf(payload.Trigger))
	if err != nil {
		if apperr.HasCode(err, apperr.CodeSyncInProgress) {
			logger.Info("[SyncProcessor.ProcessSyncAccount] account=%s already syncing, skipped", accountID)
			return nil
		}
		return err
	}

	logger.Info("[SyncProcessor.ProcessSyncAccount] account=%s processed=%d new=%d failed=%d error=%q",
		accountID, result.ProcessedCount, result.NewRecordCount, result.FailedCount, result.Error)
	return nil
}

// ProcessSyncOwner syncs all enabled accounts of an owner.
func (p *SyncProcessor) ProcessSyncOwner(ctx context.Context, msg *Message) error {
	payload, err := ParsePayload[SyncPayload](msg)
	if err != nil {
		return permanent(fmt.Errorf("failed to parse payload: %w", err))
	}
	ownerID, err := uuid.Parse(payload.OwnerID)
	if err != nil {
		return permanent(apperr.InvalidInput("owner_id", "must be a uuid"))
	}

	result, err := p.syncer.SyncAllEnabledAccounts(ctx, ownerID)
	if err != nil {
		return err
	}

	logger.Info("[SyncProcessor.ProcessSyncOwner] owner=%s processed=%d new=%d account_errors=%d",
		ownerID, result.ProcessedCount, result.NewRecordCount, result.AccountErrors)
	return nil
}

func triggerOf(s string) domain.SyncTrigger {
	switch t := domain.SyncTrigger(s); t {
	case domain.TriggerLink, domain.TriggerManual, domain.TriggerSweep:
		return t
	default:
		return domain.TriggerStream
	}
}

// permanentError marks failures a retry cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}
