package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate runs it on every start.
const schema = `
CREATE TABLE IF NOT EXISTS linked_accounts (
	id            UUID PRIMARY KEY,
	owner_id      UUID NOT NULL,
	email         TEXT NOT NULL,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at    TIMESTAMPTZ NOT NULL,
	sync_enabled  BOOLEAN NOT NULL DEFAULT true,
	status        TEXT NOT NULL DEFAULT 'active',
	last_error    TEXT,
	last_sync_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS linked_accounts_owner_email ON linked_accounts (owner_id, email);
CREATE INDEX IF NOT EXISTS linked_accounts_enabled ON linked_accounts (owner_id) WHERE sync_enabled;

CREATE TABLE IF NOT EXISTS applications (
	owner_id            UUID NOT NULL,
	id                  TEXT NOT NULL,
	company             TEXT NOT NULL,
	company_confidence  TEXT NOT NULL,
	role                TEXT NOT NULL,
	role_confidence     TEXT NOT NULL,
	status              TEXT NOT NULL,
	status_confidence   TEXT NOT NULL,
	has_referral        BOOLEAN NOT NULL DEFAULT false,
	referral_confidence TEXT NOT NULL,
	applied_at          TIMESTAMPTZ NOT NULL,
	subject             TEXT NOT NULL DEFAULT '',
	source_email        TEXT NOT NULL,
	account_id          UUID NOT NULL,
	message_link        TEXT NOT NULL,
	needs_review        BOOLEAN NOT NULL,
	synced_at           TIMESTAMPTZ NOT NULL,
	notes               TEXT NOT NULL DEFAULT '',
	user_edited         BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner_id, id)
);
CREATE INDEX IF NOT EXISTS applications_owner_applied ON applications (owner_id, applied_at DESC);

CREATE TABLE IF NOT EXISTS sync_runs (
	id                 UUID PRIMARY KEY,
	account_id         UUID NOT NULL,
	owner_id           UUID NOT NULL,
	trigger            TEXT NOT NULL,
	started_at         TIMESTAMPTZ NOT NULL,
	finished_at        TIMESTAMPTZ NOT NULL,
	processed_count    INTEGER NOT NULL,
	new_record_count   INTEGER NOT NULL,
	failed_count       INTEGER NOT NULL,
	failed_message_ids TEXT[] NOT NULL DEFAULT '{}',
	error              TEXT
);
CREATE INDEX IF NOT EXISTS sync_runs_account_finished ON sync_runs (account_id, finished_at DESC);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
