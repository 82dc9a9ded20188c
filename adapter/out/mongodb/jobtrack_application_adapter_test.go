package mongodb

import (
	"testing"
	"time"

	"jobtrack_server/core/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

func mergeStage(t *testing.T, rec *domain.ApplicationRecord) bson.M {
	t.Helper()
	pipeline := buildMergeUpdate(rec, time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC))
	if len(pipeline) != 1 {
		t.Fatalf("pipeline stages = %d, want 1", len(pipeline))
	}
	raw, err := bson.Marshal(pipeline[0])
	if err != nil {
		t.Fatalf("bson.Marshal() error = %v", err)
	}
	var stage bson.M
	if err := bson.Unmarshal(raw, &stage); err != nil {
		t.Fatalf("bson.Unmarshal() error = %v", err)
	}
	set, ok := stage["$set"].(bson.M)
	if !ok {
		t.Fatalf("stage = %v, want $set document", stage)
	}
	return set
}

func TestBuildMergeUpdate(t *testing.T) {
	rec := &domain.ApplicationRecord{
		ID:        "m1",
		OwnerID:   uuid.New(),
		AccountID: uuid.New(),
		Company:   "Acme",
		Subject:   "$150k offer from Acme",
	}
	set := mergeStage(t, rec)

	provenance := map[string]bool{}
	for _, f := range domain.ProvenanceFields {
		provenance[f] = true
	}

	for _, field := range domain.EngineOwnedFields {
		expr, ok := set[field].(bson.M)
		if !ok {
			t.Errorf("%s missing from $set", field)
			continue
		}
		_, isLiteral := expr["$literal"]
		_, isCond := expr["$cond"]
		if provenance[field] && !isLiteral {
			t.Errorf("%s = %v, want unconditional literal", field, expr)
		}
		if !provenance[field] && !isCond {
			t.Errorf("%s = %v, want guarded by user_edited", field, expr)
		}
	}

	for _, field := range []string{"notes", "user_edited", "created_at"} {
		expr, ok := set[field].(bson.M)
		if !ok {
			t.Errorf("%s = %v, want $ifNull expression", field, set[field])
			continue
		}
		if _, ok := expr["$ifNull"]; !ok {
			t.Errorf("%s = %v, want existing value kept", field, expr)
		}
	}

	cond := set["subject"].(bson.M)["$cond"].(bson.A)
	if cond[1] != "$subject" {
		t.Errorf("edited branch = %v, want $subject", cond[1])
	}
	if lit := cond[2].(bson.M)["$literal"]; lit != "$150k offer from Acme" {
		t.Errorf("fresh branch = %v, want literal subject", lit)
	}
}

func TestBuildListQuery(t *testing.T) {
	owner := uuid.New()
	no := false
	rejected := domain.StatusRejected

	query, opts := buildListQuery(owner, domain.ApplicationFilter{NeedsReview: &no, Status: &rejected, Limit: 20, Offset: 40})
	if query["owner_id"] != owner.String() || query["needs_review"] != false || query["status"] != "REJECTED" {
		t.Errorf("query = %v", query)
	}
	if opts.Limit == nil || *opts.Limit != 20 || opts.Skip == nil || *opts.Skip != 40 {
		t.Errorf("limit/skip = %v/%v, want 20/40", opts.Limit, opts.Skip)
	}

	query, opts = buildListQuery(owner, domain.ApplicationFilter{})
	if len(query) != 1 || opts.Limit != nil || opts.Skip != nil {
		t.Errorf("unfiltered query = %v, limit %v", query, opts.Limit)
	}
}

func TestDocumentToDomain(t *testing.T) {
	owner, account := uuid.New(), uuid.New()
	doc := &applicationDocument{
		OwnerID: owner.String(), MessageID: "m1", AccountID: account.String(),
		Status: "OFFER", StatusConfidence: "HIGH", Notes: "call back", UserEdited: true,
	}
	rec := doc.toDomain()
	if rec.ID != "m1" || rec.OwnerID != owner || rec.AccountID != account {
		t.Errorf("keys = {%s %s %s}", rec.ID, rec.OwnerID, rec.AccountID)
	}
	if rec.Status != domain.StatusOffer || rec.StatusConfidence != domain.ConfidenceHigh {
		t.Errorf("status = %s/%s", rec.Status, rec.StatusConfidence)
	}
	if rec.Notes != "call back" || !rec.UserEdited {
		t.Errorf("caller fields = %q/%v", rec.Notes, rec.UserEdited)
	}
}

func TestBuildEditUpdate(t *testing.T) {
	company, notes := "$ignal Labs", "call back"
	pipeline := buildEditUpdate(domain.ApplicationEdit{Company: &company, Notes: &notes}, time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC))
	if len(pipeline) != 2 {
		t.Fatalf("pipeline stages = %d, want 2", len(pipeline))
	}

	stages := make([]bson.M, len(pipeline))
	for i, st := range pipeline {
		raw, err := bson.Marshal(st)
		if err != nil {
			t.Fatalf("bson.Marshal() error = %v", err)
		}
		var stage bson.M
		if err := bson.Unmarshal(raw, &stage); err != nil {
			t.Fatalf("bson.Unmarshal() error = %v", err)
		}
		set, ok := stage["$set"].(bson.M)
		if !ok {
			t.Fatalf("stage %d = %v, want $set document", i, stage)
		}
		stages[i] = set
	}

	edit := stages[0]
	if lit := edit["company"].(bson.M)["$literal"]; lit != company {
		t.Errorf("company = %v, want literal %q", lit, company)
	}
	if edit["company_confidence"] != "HIGH" {
		t.Errorf("company_confidence = %v, want HIGH", edit["company_confidence"])
	}
	if lit := edit["notes"].(bson.M)["$literal"]; lit != notes {
		t.Errorf("notes = %v, want %q", lit, notes)
	}
	if edit["user_edited"] != true {
		t.Errorf("user_edited = %v, want true", edit["user_edited"])
	}
	for _, field := range []string{"role", "role_confidence", "status", "status_confidence", "subject", "synced_at", "account_id"} {
		if _, ok := edit[field]; ok {
			t.Errorf("%s written by an edit that did not set it", field)
		}
	}

	review, ok := stages[1]["needs_review"].(bson.M)
	if !ok {
		t.Fatalf("needs_review = %v, want expression", stages[1]["needs_review"])
	}
	if terms, _ := review["$or"].(bson.A); len(terms) != 3 {
		t.Errorf("needs_review = %v, want $or over three confidences", review)
	}
}
