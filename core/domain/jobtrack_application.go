package domain

import (
	"time"

	"github.com/google/uuid"
)

// Confidence indicates how directly the source text supported an inferred field.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

type ApplicationStatus string

const (
	StatusApplied            ApplicationStatus = "APPLIED"
	StatusPhoneScreen        ApplicationStatus = "PHONE_SCREEN"
	StatusInterview          ApplicationStatus = "INTERVIEW"
	StatusTechnicalInterview ApplicationStatus = "TECHNICAL_INTERVIEW"
	StatusFinalInterview     ApplicationStatus = "FINAL_INTERVIEW"
	StatusOffer              ApplicationStatus = "OFFER"
	StatusRejected           ApplicationStatus = "REJECTED"
)

// Valid reports whether s is one of the known statuses.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusApplied, StatusPhoneScreen, StatusInterview, StatusTechnicalInterview,
		StatusFinalInterview, StatusOffer, StatusRejected:
		return true
	}
	return false
}

const (
	UnknownCompany = "Unknown Company"
	UnknownRole    = "Unknown Role"
)

// ApplicationRecord is one inferred job-application event. ID is the provider
// message id; (OwnerID, ID) is unique.
type ApplicationRecord struct {
	ID      string    `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`

	Company            string            `json:"company"`
	CompanyConfidence  Confidence        `json:"company_confidence"`
	Role               string            `json:"role"`
	RoleConfidence     Confidence        `json:"role_confidence"`
	Status             ApplicationStatus `json:"status"`
	StatusConfidence   Confidence        `json:"status_confidence"`
	HasReferral        bool              `json:"has_referral"`
	ReferralConfidence Confidence        `json:"referral_confidence"`

	AppliedAt   time.Time `json:"applied_at"`
	Subject     string    `json:"subject"`
	SourceEmail string    `json:"source_email"`
	AccountID   uuid.UUID `json:"account_id"`
	MessageLink string    `json:"message_link"`
	NeedsReview bool      `json:"needs_review"`
	SyncedAt    time.Time `json:"synced_at"`

	// Owned by the dashboard. The sync engine never writes these after creation.
	Notes      string `json:"notes"`
	UserEdited bool   `json:"user_edited"`
}

// NeedsReview is true iff any of the three inferred confidences is LOW.
func NeedsReview(company, role, status Confidence) bool {
	return company == ConfidenceLow || role == ConfidenceLow || status == ConfidenceLow
}

// EngineOwnedFields lists the fields the sync engine computes and may overwrite on
// re-sync. Anything else belongs to the caller.
var EngineOwnedFields = []string{
	"company", "company_confidence",
	"role", "role_confidence",
	"status", "status_confidence",
	"has_referral", "referral_confidence",
	"applied_at", "subject",
	"source_email", "account_id", "message_link",
	"needs_review", "synced_at",
}

// ProvenanceFields are refreshed even when the owner edited the record.
var ProvenanceFields = []string{"source_email", "account_id", "message_link", "synced_at"}

// Merge applies a freshly inferred record onto an existing one.
// Caller-owned fields are always kept. Once the owner has edited a record only
// provenance is refreshed, so manual corrections never regress.
func (r *ApplicationRecord) Merge(fresh *ApplicationRecord) *ApplicationRecord {
	merged := *r
	merged.SourceEmail = fresh.SourceEmail
	merged.AccountID = fresh.AccountID
	merged.MessageLink = fresh.MessageLink
	merged.SyncedAt = fresh.SyncedAt
	if r.UserEdited {
		return &merged
	}

	merged.Company = fresh.Company
	merged.CompanyConfidence = fresh.CompanyConfidence
	merged.Role = fresh.Role
	merged.RoleConfidence = fresh.RoleConfidence
	merged.Status = fresh.Status
	merged.StatusConfidence = fresh.StatusConfidence
	merged.HasReferral = fresh.HasReferral
	merged.ReferralConfidence = fresh.ReferralConfidence
	merged.AppliedAt = fresh.AppliedAt
	merged.Subject = fresh.Subject
	merged.NeedsReview = fresh.NeedsReview
	return &merged
}

// MaxNotesLength bounds the owner's free-text notes, in bytes.
const MaxNotesLength = 4000

// ApplicationEdit is an owner's correction from the dashboard. Nil fields are
// left as they are.
type ApplicationEdit struct {
	Company *string            `json:"company"`
	Role    *string            `json:"role"`
	Status  *ApplicationStatus `json:"status"`
	Notes   *string            `json:"notes"`
}

// IsEmpty reports whether the edit changes nothing.
func (e ApplicationEdit) IsEmpty() bool {
	return e.Company == nil && e.Role == nil && e.Status == nil && e.Notes == nil
}

// Apply returns a copy of r with the edit applied. Values set by the owner are
// HIGH confidence, NeedsReview is recomputed and the record is marked
// UserEdited, so later re-syncs leave the inferred fields alone.
func (r *ApplicationRecord) Apply(edit ApplicationEdit) *ApplicationRecord {
	edited := *r
	if edit.Company != nil {
		edited.Company = *edit.Company
		edited.CompanyConfidence = ConfidenceHigh
	}
	if edit.Role != nil {
		edited.Role = *edit.Role
		edited.RoleConfidence = ConfidenceHigh
	}
	if edit.Status != nil {
		edited.Status = *edit.Status
		edited.StatusConfidence = ConfidenceHigh
	}
	if edit.Notes != nil {
		edited.Notes = *edit.Notes
	}
	edited.NeedsReview = NeedsReview(edited.CompanyConfidence, edited.RoleConfidence, edited.StatusConfidence)
	edited.UserEdited = true
	return &edited
}

// ApplicationFilter narrows dashboard reads.
type ApplicationFilter struct {
	NeedsReview *bool
	Status      *ApplicationStatus
	Limit       int
	Offset      int
}
