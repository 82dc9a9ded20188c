package out

import (
	"context"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
)

// ApplicationRepository stores inferred application records.
//
// Upsert is keyed by (OwnerID, ID) and must be idempotent: it creates the record
// on first sight and otherwise applies domain.ApplicationRecord.Merge semantics,
// leaving caller-owned fields alone. created reports whether a new row was made.
//
// ApplyEdit atomically applies an owner's correction with
// domain.ApplicationRecord.Apply semantics and returns the stored result, or
// ErrNotFound.
type ApplicationRepository interface {
	Upsert(ctx context.Context, record *domain.ApplicationRecord) (created bool, err error)
	ApplyEdit(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error)
	Get(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error)
	List(ctx context.Context, ownerID uuid.UUID, filter domain.ApplicationFilter) ([]*domain.ApplicationRecord, error)
}
