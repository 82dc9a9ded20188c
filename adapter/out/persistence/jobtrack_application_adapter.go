package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =============================================================================
// Application Adapter
// =============================================================================

// ApplicationAdapter implements out.ApplicationRepository on PostgreSQL.
// Upsert is a single statement, so concurrent syncs of the same message
// converge without a read-modify-write race.
type ApplicationAdapter struct {
	db *pgxpool.Pool
}

// NewApplicationAdapter creates a new ApplicationAdapter.
func NewApplicationAdapter(db *pgxpool.Pool) *ApplicationAdapter {
	return &ApplicationAdapter{db: db}
}

// applicationInsertColumns follows domain.EngineOwnedFields; applicationArgs
// must produce values in the same order.
var applicationInsertColumns = append([]string{"owner_id", "id"}, domain.EngineOwnedFields...)

var upsertApplicationSQL = buildApplicationUpsert()

// buildApplicationUpsert renders the merge rule as SQL. Provenance columns are
// always refreshed, the other engine-owned columns only while user_edited is
// false, and caller-owned columns are never in the SET list.
func buildApplicationUpsert() string {
	provenance := make(map[string]bool, len(domain.ProvenanceFields))
	for _, f := range domain.ProvenanceFields {
		provenance[f] = true
	}

	placeholders := make([]string, len(applicationInsertColumns))
	for i := range applicationInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sets := make([]string, 0, len(domain.EngineOwnedFields)+1)
	for _, col := range domain.EngineOwnedFields {
		if provenance[col] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = CASE WHEN applications.user_edited THEN applications.%s ELSE EXCLUDED.%s END", col, col, col))
	}
	sets = append(sets, "updated_at = NOW()")

	return fmt.Sprintf(`
		INSERT INTO applications (%s, notes, user_edited, created_at, updated_at)
		VALUES (%s, '', false, NOW(), NOW())
		ON CONFLICT (owner_id, id) DO UPDATE SET
			%s
		RETURNING (xmax = 0) AS created`,
		strings.Join(applicationInsertColumns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ",\n\t\t\t"))
}

func applicationArgs(r *domain.ApplicationRecord) []any {
	return []any{
		r.OwnerID, r.ID,
		r.Company, string(r.CompanyConfidence),
		r.Role, string(r.RoleConfidence),
		string(r.Status), string(r.StatusConfidence),
		r.HasReferral, string(r.ReferralConfidence),
		r.AppliedAt, r.Subject,
		r.SourceEmail, r.AccountID, r.MessageLink,
		r.NeedsReview, r.SyncedAt,
	}
}

// Upsert creates or merges a record. created is read from xmax, which is zero
// only for a freshly inserted tuple.
func (a *ApplicationAdapter) Upsert(ctx context.Context, record *domain.ApplicationRecord) (bool, error) {
	if record == nil || record.ID == "" || record.OwnerID == uuid.Nil {
		return false, ErrInvalidInput
	}

	var created bool
	if err := a.db.QueryRow(ctx, upsertApplicationSQL, applicationArgs(record)...).Scan(&created); err != nil {
		return false, fmt.Errorf("failed to upsert application: %w", err)
	}
	return created, nil
}

const applicationColumns = `id, owner_id, company, company_confidence, role, role_confidence,
	       status, status_confidence, has_referral, referral_confidence,
	       applied_at, subject, source_email, account_id, message_link,
	       needs_review, synced_at, notes, user_edited`

const applicationSelect = `
	SELECT ` + applicationColumns + `
	FROM applications`

var applyEditSQL = buildApplyEdit()

// buildApplyEdit renders domain.ApplicationRecord.Apply as one UPDATE. A NULL
// argument leaves its column alone; an edited field becomes HIGH confidence.
// needs_review is computed from the same CASE expressions because SET sees the
// pre-update row.
func buildApplyEdit() string {
	conf := func(arg, col string) string {
		return fmt.Sprintf("CASE WHEN %s::text IS NULL THEN %s ELSE '%s' END", arg, col, domain.ConfidenceHigh)
	}
	companyConf := conf("$3", "company_confidence")
	roleConf := conf("$4", "role_confidence")
	statusConf := conf("$5", "status_confidence")
	low := string(domain.ConfidenceLow)

	return fmt.Sprintf(`
		UPDATE applications SET
			company = COALESCE($3::text, company),
			company_confidence = %s,
			role = COALESCE($4::text, role),
			role_confidence = %s,
			status = COALESCE($5::text, status),
			status_confidence = %s,
			notes = COALESCE($6::text, notes),
			needs_review = (%s = '%s' OR %s = '%s' OR %s = '%s'),
			user_edited = TRUE,
			updated_at = NOW()
		WHERE owner_id = $1 AND id = $2
		RETURNING %s`,
		companyConf, roleConf, statusConf,
		companyConf, low, roleConf, low, statusConf, low,
		applicationColumns)
}

// ApplyEdit applies an owner's correction in a single statement, so a
// concurrent sync sees either the old row or the edited one.
func (a *ApplicationAdapter) ApplyEdit(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error) {
	if ownerID == uuid.Nil || id == "" || edit.IsEmpty() {
		return nil, ErrInvalidInput
	}

	var status *string
	if edit.Status != nil {
		v := string(*edit.Status)
		status = &v
	}
	row := a.db.QueryRow(ctx, applyEditSQL, ownerID, id, edit.Company, edit.Role, status, edit.Notes)
	rec, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to edit application: %w", err)
	}
	return rec, nil
}

// Get returns one record of an owner.
func (a *ApplicationAdapter) Get(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error) {
	row := a.db.QueryRow(ctx, applicationSelect+` WHERE owner_id = $1 AND id = $2`, ownerID, id)
	rec, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return rec, nil
}

// List returns an owner's records, newest application first.
func (a *ApplicationAdapter) List(ctx context.Context, ownerID uuid.UUID, filter domain.ApplicationFilter) ([]*domain.ApplicationRecord, error) {
	query, args := buildApplicationList(ownerID, filter)

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var records []*domain.ApplicationRecord
	for rows.Next() {
		rec, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func buildApplicationList(ownerID uuid.UUID, filter domain.ApplicationFilter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(applicationSelect)
	sb.WriteString(" WHERE owner_id = $1")
	args := []any{ownerID}

	if filter.NeedsReview != nil {
		args = append(args, *filter.NeedsReview)
		fmt.Fprintf(&sb, " AND needs_review = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&sb, " AND status = $%d", len(args))
	}
	sb.WriteString(" ORDER BY applied_at DESC, id")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}
	return sb.String(), args
}

func scanApplication(row pgx.Row) (*domain.ApplicationRecord, error) {
	var (
		rec                                       domain.ApplicationRecord
		companyConf, roleConf, status, statusConf string
		referralConf                              string
		appliedAt, syncedAt                       time.Time
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.Company, &companyConf, &rec.Role, &roleConf,
		&status, &statusConf, &rec.HasReferral, &referralConf,
		&appliedAt, &rec.Subject, &rec.SourceEmail, &rec.AccountID, &rec.MessageLink,
		&rec.NeedsReview, &syncedAt, &rec.Notes, &rec.UserEdited,
	)
	if err != nil {
		return nil, err
	}
	rec.CompanyConfidence = domain.Confidence(companyConf)
	rec.RoleConfidence = domain.Confidence(roleConf)
	rec.Status = domain.ApplicationStatus(status)
	rec.StatusConfidence = domain.Confidence(statusConf)
	rec.ReferralConfidence = domain.Confidence(referralConf)
	rec.AppliedAt = appliedAt.UTC()
	rec.SyncedAt = syncedAt.UTC()
	return &rec, nil
}

var _ out.ApplicationRepository = (*ApplicationAdapter)(nil)
