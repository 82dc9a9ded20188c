package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncTrigger records what started a sync run.
type SyncTrigger string

const (
	TriggerLink   SyncTrigger = "link"
	TriggerManual SyncTrigger = "manual"
	TriggerSweep  SyncTrigger = "sweep"
	TriggerStream SyncTrigger = "stream"
)

// SyncResult summarizes one or more sync runs. Partial success is still success.
type SyncResult struct {
	RunID          uuid.UUID `json:"run_id,omitempty"`
	AccountID      uuid.UUID `json:"account_id,omitempty"`
	ProcessedCount int       `json:"processed_count"`
	NewRecordCount int       `json:"new_record_count"`
	FailedCount    int       `json:"failed_count"`
	FailedIDs      []string  `json:"failed_ids,omitempty"`
	AccountErrors  int       `json:"account_errors,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Add folds another result into r.
func (r *SyncResult) Add(o *SyncResult) {
	if o == nil {
		return
	}
	r.ProcessedCount += o.ProcessedCount
	r.NewRecordCount += o.NewRecordCount
	r.FailedCount += o.FailedCount
	r.FailedIDs = append(r.FailedIDs, o.FailedIDs...)
	if o.Error != "" {
		r.AccountErrors++
	}
	r.AccountErrors += o.AccountErrors
}

// SyncRun is the history row written once a run has finished. No row exists for a
// run that is still going, so a dropped run leaves nothing to clean up.
type SyncRun struct {
	ID               uuid.UUID   `json:"id"`
	AccountID        uuid.UUID   `json:"account_id"`
	OwnerID          uuid.UUID   `json:"owner_id"`
	Trigger          SyncTrigger `json:"trigger"`
	StartedAt        time.Time   `json:"started_at"`
	FinishedAt       time.Time   `json:"finished_at"`
	ProcessedCount   int         `json:"processed_count"`
	NewRecordCount   int         `json:"new_record_count"`
	FailedCount      int         `json:"failed_count"`
	FailedMessageIDs []string    `json:"failed_message_ids"`
	Error            *string     `json:"error,omitempty"`
}

// SyncJob is the payload published to the sync stream.
type SyncJob struct {
	AccountID uuid.UUID   `json:"account_id"`
	OwnerID   uuid.UUID   `json:"owner_id"`
	Trigger   SyncTrigger `json:"trigger"`
	QueuedAt  time.Time   `json:"queued_at"`
}
