package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobtrack_server/adapter/in/worker"
	"jobtrack_server/adapter/out/messaging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestStreamHandler(t *testing.T) {
	accountID := uuid.New()
	ownerID := uuid.New()

	tests := []struct {
		name       string
		stream     string
		data       string
		accept     bool
		wantErr    error
		wantSubmit string
	}{
		{
			name:       "account job",
			stream:     messaging.StreamSync,
			data:       `{"account_id":"` + accountID.String() + `","owner_id":"` + ownerID.String() + `","trigger":"link"}`,
			accept:     true,
			wantSubmit: worker.JobSyncAccount,
		},
		{
			name:       "owner job",
			stream:     messaging.StreamSync,
			data:       `{"account_id":"00000000-0000-0000-0000-000000000000","owner_id":"` + ownerID.String() + `","trigger":"manual"}`,
			accept:     true,
			wantSubmit: worker.JobSyncOwner,
		},
		{
			name:    "pool stopped",
			stream:  messaging.StreamSync,
			data:    `{"account_id":"` + accountID.String() + `","owner_id":"` + ownerID.String() + `"}`,
			accept:  false,
			wantErr: errPoolStopped,
		},
		{name: "malformed", stream: messaging.StreamSync, data: `{not json`, accept: true},
		{name: "unknown stream", stream: "other", data: `{}`, accept: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var submitted []*worker.Message
			h := &streamHandler{submit: func(msg *worker.Message) bool {
				submitted = append(submitted, msg)
				return tt.accept
			}}

			err := h.Handle(context.Background(), tt.stream, []byte(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Handle() error = %v, want %v", err, tt.wantErr)
			}

			if tt.wantSubmit == "" {
				if tt.wantErr == nil && len(submitted) != 0 {
					t.Errorf("submitted %d messages, want 0", len(submitted))
				}
				return
			}
			if len(submitted) != 1 {
				t.Fatalf("submitted %d messages, want 1", len(submitted))
			}
			if submitted[0].Type != tt.wantSubmit {
				t.Errorf("type = %s, want %s", submitted[0].Type, tt.wantSubmit)
			}
			if submitted[0].Payload["owner_id"] != ownerID.String() {
				t.Errorf("owner_id = %v, want %s", submitted[0].Payload["owner_id"], ownerID)
			}
		})
	}
}

func TestStreamHandlerStoppedPoolLeavesEntryPending(t *testing.T) {
	pool := worker.NewPool(worker.NewHandler(worker.NewSyncProcessor(nil)), &worker.PoolConfig{
		Workers:        1,
		WorkerChanSize: 1,
		JobTimeout:     time.Second,
	}, zerolog.Nop())
	h := &streamHandler{submit: pool.Submit}
	data := []byte(`{"account_id":"` + uuid.NewString() + `","owner_id":"` + uuid.NewString() + `"}`)

	if err := h.Handle(context.Background(), messaging.StreamSync, data); !errors.Is(err, errPoolStopped) {
		t.Fatalf("Handle() before Start error = %v, want %v", err, errPoolStopped)
	}

	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	pool.Stop()
	if err := h.Handle(context.Background(), messaging.StreamSync, data); !errors.Is(err, errPoolStopped) {
		t.Errorf("Handle() after Stop error = %v, want %v", err, errPoolStopped)
	}
}
