package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SyncRunAdapter implements out.SyncRunRepository using PostgreSQL.
type SyncRunAdapter struct {
	db *sqlx.DB
}

// NewSyncRunAdapter creates a new SyncRunAdapter.
func NewSyncRunAdapter(db *sqlx.DB) *SyncRunAdapter {
	return &SyncRunAdapter{db: db}
}

// syncRunRow represents the database row.
type syncRunRow struct {
	ID               uuid.UUID      `db:"id"`
	AccountID        uuid.UUID      `db:"account_id"`
	OwnerID          uuid.UUID      `db:"owner_id"`
	Trigger          string         `db:"trigger"`
	StartedAt        time.Time      `db:"started_at"`
	FinishedAt       time.Time      `db:"finished_at"`
	ProcessedCount   int            `db:"processed_count"`
	NewRecordCount   int            `db:"new_record_count"`
	FailedCount      int            `db:"failed_count"`
	FailedMessageIDs pq.StringArray `db:"failed_message_ids"`
	Error            sql.NullString `db:"error"`
}

func (r *syncRunRow) toDomain() *domain.SyncRun {
	run := &domain.SyncRun{
		ID:               r.ID,
		AccountID:        r.AccountID,
		OwnerID:          r.OwnerID,
		Trigger:          domain.SyncTrigger(r.Trigger),
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		ProcessedCount:   r.ProcessedCount,
		NewRecordCount:   r.NewRecordCount,
		FailedCount:      r.FailedCount,
		FailedMessageIDs: []string(r.FailedMessageIDs),
	}
	if run.FailedMessageIDs == nil {
		run.FailedMessageIDs = []string{}
	}
	if r.Error.Valid {
		run.Error = &r.Error.String
	}
	return run
}

// Create writes a finished run. Runs are append-only.
func (a *SyncRunAdapter) Create(ctx context.Context, run *domain.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO sync_runs (id, account_id, owner_id, trigger, started_at, finished_at,
		                       processed_count, new_record_count, failed_count, failed_message_ids, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := a.db.ExecContext(ctx, query,
		run.ID, run.AccountID, run.OwnerID, string(run.Trigger), run.StartedAt, run.FinishedAt,
		run.ProcessedCount, run.NewRecordCount, run.FailedCount, pq.Array(run.FailedMessageIDs), run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent runs of an account.
func (a *SyncRunAdapter) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.SyncRun, error) {
	var rows []syncRunRow
	query := `
		SELECT id, account_id, owner_id, trigger, started_at, finished_at,
		       processed_count, new_record_count, failed_count, failed_message_ids, error
		FROM sync_runs
		WHERE account_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	if err := a.db.SelectContext(ctx, &rows, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	runs := make([]*domain.SyncRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].toDomain())
	}
	return runs, nil
}

var _ out.SyncRunRepository = (*SyncRunAdapter)(nil)
