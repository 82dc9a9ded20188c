package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeSyncService struct {
	mu       sync.Mutex
	accounts []uuid.UUID
	triggers []domain.SyncTrigger
	owners   []uuid.UUID
	err      error
}

func (f *fakeSyncService) SyncAccount(ctx context.Context, accountID uuid.UUID, trigger domain.SyncTrigger) (*domain.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, accountID)
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SyncResult{AccountID: accountID, ProcessedCount: 2}, nil
}

func (f *fakeSyncService) SyncAllEnabledAccounts(ctx context.Context, ownerID uuid.UUID) (*domain.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, ownerID)
	return &domain.SyncResult{}, f.err
}

func (f *fakeSyncService) SyncAllOwners(ctx context.Context) (*domain.SyncResult, error) {
	return &domain.SyncResult{}, nil
}

func TestNewSyncMessage(t *testing.T) {
	owner, account := uuid.New(), uuid.New()

	msg := NewSyncMessage(&domain.SyncJob{AccountID: account, OwnerID: owner, Trigger: domain.TriggerLink})
	if msg.Type != JobSyncAccount {
		t.Errorf("type = %s, want %s", msg.Type, JobSyncAccount)
	}
	payload, err := ParsePayload[SyncPayload](msg)
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if payload.AccountID != account.String() || payload.OwnerID != owner.String() || payload.Trigger != "link" {
		t.Errorf("payload = %+v", payload)
	}

	msg = NewSyncMessage(&domain.SyncJob{OwnerID: owner, Trigger: domain.TriggerManual})
	if msg.Type != JobSyncOwner {
		t.Errorf("type = %s, want %s", msg.Type, JobSyncOwner)
	}
}

func TestHandlerProcess(t *testing.T) {
	owner, account := uuid.New(), uuid.New()

	tests := []struct {
		name        string
		msg         *Message
		syncErr     error
		wantErr     bool
		wantAccount bool
		wantOwner   bool
		wantTrigger domain.SyncTrigger
	}{
		{
			name:        "account job",
			msg:         NewSyncMessage(&domain.SyncJob{AccountID: account, OwnerID: owner, Trigger: domain.TriggerLink}),
			wantAccount: true,
			wantTrigger: domain.TriggerLink,
		},
		{
			name:        "unknown trigger becomes stream",
			msg:         NewMessage(JobSyncAccount, map[string]any{"account_id": account.String(), "trigger": "cron"}),
			wantAccount: true,
			wantTrigger: domain.TriggerStream,
		},
		{
			name:      "owner job",
			msg:       NewSyncMessage(&domain.SyncJob{OwnerID: owner, Trigger: domain.TriggerManual}),
			wantOwner: true,
		},
		{
			name:        "already running is not a failure",
			msg:         NewSyncMessage(&domain.SyncJob{AccountID: account, OwnerID: owner}),
			syncErr:     apperr.SyncInProgress(account.String()),
			wantAccount: true,
			wantTrigger: domain.TriggerStream,
		},
		{
			name:        "not found fails",
			msg:         NewSyncMessage(&domain.SyncJob{AccountID: account, OwnerID: owner}),
			syncErr:     apperr.NotFound("account"),
			wantErr:     true,
			wantAccount: true,
			wantTrigger: domain.TriggerStream,
		},
		{
			name:    "bad account id",
			msg:     NewMessage(JobSyncAccount, map[string]any{"account_id": "nope"}),
			wantErr: true,
		},
		{
			name: "unknown job type is dropped",
			msg:  NewMessage("mail.send", nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncService{err: tt.syncErr}
			h := NewHandler(NewSyncProcessor(syncer))

			err := h.Process(context.Background(), tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(syncer.accounts) == 1; got != tt.wantAccount {
				t.Errorf("account synced = %v, want %v", got, tt.wantAccount)
			}
			if tt.wantAccount && syncer.triggers[0] != tt.wantTrigger {
				t.Errorf("trigger = %s, want %s", syncer.triggers[0], tt.wantTrigger)
			}
			if got := len(syncer.owners) == 1; got != tt.wantOwner {
				t.Errorf("owner synced = %v, want %v", got, tt.wantOwner)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("connection reset"), true},
		{apperr.DatabaseError("update", errors.New("timeout")), true},
		{apperr.NotFound("account"), false},
		{apperr.ConfigError("missing GOOGLE_CLIENT_ID"), false},
		{fmt.Errorf("wrapped: %w", apperr.SyncInProgress("a")), false},
		{permanent(errors.New("bad payload")), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPoolRunsSubmittedJobs(t *testing.T) {
	syncer := &fakeSyncService{}
	p := NewPool(NewHandler(NewSyncProcessor(syncer)), &PoolConfig{
		Workers:        2,
		WorkerChanSize: 10,
		JobTimeout:     time.Second,
		MaxRetries:     0,
	}, zerolog.Nop())

	if p.Submit(NewMessage(JobSyncOwner, nil)) {
		t.Fatal("Submit() before Start = true, want false")
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	owner := uuid.New()
	for i := 0; i < 3; i++ {
		if !p.Submit(NewSyncMessage(&domain.SyncJob{AccountID: uuid.New(), OwnerID: owner})) {
			t.Fatalf("Submit() = false")
		}
	}
	p.Stop()

	if len(syncer.accounts) != 3 {
		t.Errorf("synced accounts = %d, want 3", len(syncer.accounts))
	}
	if m := p.GetMetrics(); m.JobsProcessed != 3 || m.JobsFailed != 0 || m.QueueSize != 0 {
		t.Errorf("metrics = %+v", m)
	}
	if p.Submit(NewMessage(JobSyncOwner, nil)) {
		t.Error("Submit() after Stop = true, want false")
	}
}

func TestPoolPermanentFailure(t *testing.T) {
	syncer := &fakeSyncService{err: apperr.NotFound("account")}
	p := NewPool(NewHandler(NewSyncProcessor(syncer)), &PoolConfig{Workers: 1, JobTimeout: time.Second, MaxRetries: 3}, zerolog.Nop())
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Submit(NewSyncMessage(&domain.SyncJob{AccountID: uuid.New(), OwnerID: uuid.New()}))
	p.Stop()

	if m := p.GetMetrics(); m.JobsFailed != 1 || m.JobsRetried != 0 {
		t.Errorf("metrics = %+v, want one failure and no retries", m)
	}
}
