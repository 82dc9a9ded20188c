package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Application Adapter
// =============================================================================

const collectionApplications = "applications"

// ApplicationAdapter implements out.ApplicationRepository using MongoDB.
type ApplicationAdapter struct {
	collection *mongo.Collection
}

func NewApplicationAdapter(db *mongo.Database) *ApplicationAdapter {
	return &ApplicationAdapter{collection: db.Collection(collectionApplications)}
}

// EnsureIndexes creates the natural-key and listing indexes.
func (a *ApplicationAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "applied_at", Value: -1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type applicationDocument struct {
	OwnerID   string `bson:"owner_id"`
	MessageID string `bson:"message_id"`

	Company            string `bson:"company"`
	CompanyConfidence  string `bson:"company_confidence"`
	Role               string `bson:"role"`
	RoleConfidence     string `bson:"role_confidence"`
	Status             string `bson:"status"`
	StatusConfidence   string `bson:"status_confidence"`
	HasReferral        bool   `bson:"has_referral"`
	ReferralConfidence string `bson:"referral_confidence"`

	AppliedAt   time.Time `bson:"applied_at"`
	Subject     string    `bson:"subject"`
	SourceEmail string    `bson:"source_email"`
	AccountID   string    `bson:"account_id"`
	MessageLink string    `bson:"message_link"`
	NeedsReview bool      `bson:"needs_review"`
	SyncedAt    time.Time `bson:"synced_at"`

	Notes      string `bson:"notes"`
	UserEdited bool   `bson:"user_edited"`

	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *applicationDocument) toDomain() *domain.ApplicationRecord {
	ownerID, _ := uuid.Parse(d.OwnerID)
	accountID, _ := uuid.Parse(d.AccountID)
	return &domain.ApplicationRecord{
		ID:                 d.MessageID,
		OwnerID:            ownerID,
		Company:            d.Company,
		CompanyConfidence:  domain.Confidence(d.CompanyConfidence),
		Role:               d.Role,
		RoleConfidence:     domain.Confidence(d.RoleConfidence),
		Status:             domain.ApplicationStatus(d.Status),
		StatusConfidence:   domain.Confidence(d.StatusConfidence),
		HasReferral:        d.HasReferral,
		ReferralConfidence: domain.Confidence(d.ReferralConfidence),
		AppliedAt:          d.AppliedAt.UTC(),
		Subject:            d.Subject,
		SourceEmail:        d.SourceEmail,
		AccountID:          accountID,
		MessageLink:        d.MessageLink,
		NeedsReview:        d.NeedsReview,
		SyncedAt:           d.SyncedAt.UTC(),
		Notes:              d.Notes,
		UserEdited:         d.UserEdited,
	}
}

// engineValues maps each engine-owned field to its freshly inferred value.
func engineValues(r *domain.ApplicationRecord) bson.M {
	return bson.M{
		"company":             r.Company,
		"company_confidence":  string(r.CompanyConfidence),
		"role":                r.Role,
		"role_confidence":     string(r.RoleConfidence),
		"status":              string(r.Status),
		"status_confidence":   string(r.StatusConfidence),
		"has_referral":        r.HasReferral,
		"referral_confidence": string(r.ReferralConfidence),
		"applied_at":          r.AppliedAt,
		"subject":             r.Subject,
		"source_email":        r.SourceEmail,
		"account_id":          r.AccountID.String(),
		"message_link":        r.MessageLink,
		"needs_review":        r.NeedsReview,
		"synced_at":           r.SyncedAt,
	}
}

// buildMergeUpdate renders the merge rule as a single pipeline update, so the
// user_edited check and the write happen atomically on the server. Values go
// through $literal because strings starting with "$" would otherwise be read
// as field paths.
func buildMergeUpdate(r *domain.ApplicationRecord, now time.Time) mongo.Pipeline {
	provenance := make(map[string]bool, len(domain.ProvenanceFields))
	for _, f := range domain.ProvenanceFields {
		provenance[f] = true
	}

	edited := bson.M{"$ifNull": bson.A{"$user_edited", false}}
	values := engineValues(r)

	set := bson.D{}
	for _, field := range domain.EngineOwnedFields {
		value := bson.M{"$literal": values[field]}
		if provenance[field] {
			set = append(set, bson.E{Key: field, Value: value})
			continue
		}
		set = append(set, bson.E{Key: field, Value: bson.M{
			"$cond": bson.A{edited, "$" + field, value},
		}})
	}
	set = append(set,
		bson.E{Key: "notes", Value: bson.M{"$ifNull": bson.A{"$notes", ""}}},
		bson.E{Key: "user_edited", Value: edited},
		bson.E{Key: "created_at", Value: bson.M{"$ifNull": bson.A{"$created_at", now}}},
		bson.E{Key: "updated_at", Value: now},
	)

	return mongo.Pipeline{{{Key: "$set", Value: set}}}
}

// buildEditUpdate renders domain.ApplicationRecord.Apply as a two-stage
// pipeline. The second stage sees the first stage's confidences, so
// needs_review reflects the edit.
func buildEditUpdate(edit domain.ApplicationEdit, now time.Time) mongo.Pipeline {
	high := string(domain.ConfidenceHigh)
	set := bson.D{}
	if edit.Company != nil {
		set = append(set,
			bson.E{Key: "company", Value: bson.M{"$literal": *edit.Company}},
			bson.E{Key: "company_confidence", Value: high})
	}
	if edit.Role != nil {
		set = append(set,
			bson.E{Key: "role", Value: bson.M{"$literal": *edit.Role}},
			bson.E{Key: "role_confidence", Value: high})
	}
	if edit.Status != nil {
		set = append(set,
			bson.E{Key: "status", Value: bson.M{"$literal": string(*edit.Status)}},
			bson.E{Key: "status_confidence", Value: high})
	}
	if edit.Notes != nil {
		set = append(set, bson.E{Key: "notes", Value: bson.M{"$literal": *edit.Notes}})
	}
	set = append(set,
		bson.E{Key: "user_edited", Value: true},
		bson.E{Key: "updated_at", Value: now},
	)

	low := string(domain.ConfidenceLow)
	review := bson.D{{Key: "needs_review", Value: bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{"$company_confidence", low}},
		bson.M{"$eq": bson.A{"$role_confidence", low}},
		bson.M{"$eq": bson.A{"$status_confidence", low}},
	}}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$set", Value: review}},
	}
}

// =============================================================================
// Operations
// =============================================================================

// Upsert creates or merges a record keyed by (owner_id, message_id).
func (a *ApplicationAdapter) Upsert(ctx context.Context, record *domain.ApplicationRecord) (bool, error) {
	if record == nil || record.ID == "" || record.OwnerID == uuid.Nil {
		return false, errors.New("invalid input")
	}

	filter := bson.M{"owner_id": record.OwnerID.String(), "message_id": record.ID}
	update := buildMergeUpdate(record, time.Now().UTC())

	res, err := a.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return false, fmt.Errorf("failed to upsert application: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

// Get returns one record of an owner.
func (a *ApplicationAdapter) Get(ctx context.Context, ownerID uuid.UUID, id string) (*domain.ApplicationRecord, error) {
	var doc applicationDocument
	filter := bson.M{"owner_id": ownerID.String(), "message_id": id}

	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return doc.toDomain(), nil
}

// ApplyEdit applies an owner's correction and returns the updated document.
func (a *ApplicationAdapter) ApplyEdit(ctx context.Context, ownerID uuid.UUID, id string, edit domain.ApplicationEdit) (*domain.ApplicationRecord, error) {
	if ownerID == uuid.Nil || id == "" || edit.IsEmpty() {
		return nil, errors.New("invalid input")
	}

	filter := bson.M{"owner_id": ownerID.String(), "message_id": id}
	update := buildEditUpdate(edit, time.Now().UTC())
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc applicationDocument
	if err := a.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, out.ErrNotFound
		}
		return nil, fmt.Errorf("failed to edit application: %w", err)
	}
	return doc.toDomain(), nil
}

// List returns an owner's records, newest application first.
func (a *ApplicationAdapter) List(ctx context.Context, ownerID uuid.UUID, filter domain.ApplicationFilter) ([]*domain.ApplicationRecord, error) {
	query, opts := buildListQuery(ownerID, filter)

	cursor, err := a.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []applicationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode applications: %w", err)
	}

	records := make([]*domain.ApplicationRecord, 0, len(docs))
	for i := range docs {
		records = append(records, docs[i].toDomain())
	}
	return records, nil
}

func buildListQuery(ownerID uuid.UUID, filter domain.ApplicationFilter) (bson.M, *options.FindOptions) {
	query := bson.M{"owner_id": ownerID.String()}
	if filter.NeedsReview != nil {
		query["needs_review"] = *filter.NeedsReview
	}
	if filter.Status != nil {
		query["status"] = string(*filter.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "applied_at", Value: -1}, {Key: "message_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	return query, opts
}

var _ out.ApplicationRepository = (*ApplicationAdapter)(nil)
