package worker

import (
	"time"

	"jobtrack_server/core/domain"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// JobType represents the type of a job.
type JobType = string

const (
	// JobSyncAccount syncs one linked account.
	JobSyncAccount JobType = "sync.account"
	// JobSyncOwner syncs every enabled account of an owner.
	JobSyncOwner JobType = "sync.owner"
)

type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Retries   int            `json:"retries"`
}

func NewMessage(jobType string, payload map[string]any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// SyncPayload is the payload of both sync job types. AccountID is empty for
// JobSyncOwner.
type SyncPayload struct {
	AccountID string `json:"account_id,omitempty"`
	OwnerID   string `json:"owner_id"`
	Trigger   string `json:"trigger"`
}

// NewSyncMessage converts a queued domain.SyncJob into a pool message.
func NewSyncMessage(job *domain.SyncJob) *Message {
	payload := map[string]any{
		"owner_id": job.OwnerID.String(),
		"trigger":  string(job.Trigger),
	}
	if job.AccountID == uuid.Nil {
		return NewMessage(JobSyncOwner, payload)
	}
	payload["account_id"] = job.AccountID.String()
	return NewMessage(JobSyncAccount, payload)
}

func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
