// Package inference turns raw Gmail messages into application records.
//
// Everything except Engine.Infer's optional refiner call is pure: no I/O, no
// errors, only degraded confidence for messages it cannot read.
package inference

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/logger"

	"github.com/google/uuid"
)

// MessageLinkBase deep-links a message id into the Gmail web UI.
const MessageLinkBase = "https://mail.google.com/mail/u/0/#inbox/"

// InferInput identifies where a raw message came from.
type InferInput struct {
	OwnerID     uuid.UUID
	AccountID   uuid.UUID
	SourceEmail string
	Message     *domain.RawMessage
	Now         time.Time
}

// Engine combines the normalizer, extractors, classifier and referral detector.
type Engine struct {
	refiner out.FieldRefiner
}

// NewEngine creates an engine. refiner may be nil.
func NewEngine(refiner out.FieldRefiner) *Engine {
	return &Engine{refiner: refiner}
}

// Infer builds the engine-owned fields of an ApplicationRecord for one message.
func (e *Engine) Infer(ctx context.Context, in InferInput) *domain.ApplicationRecord {
	msg := Normalize(in.Message)

	company := ExtractCompany(msg.Subject, msg.From, msg.Body)
	role := ExtractRole(msg.Subject, msg.From, msg.Body)
	status := ClassifyStatus(msg.Subject, msg.Body)
	referral := DetectReferral(msg.Subject, msg.Body)

	if e.refiner != nil && (company.Confidence == domain.ConfidenceLow || role.Confidence == domain.ConfidenceLow) {
		company, role = e.refine(ctx, &msg, company, role)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var messageID string
	var internalDate int64
	if in.Message != nil {
		messageID = in.Message.ID
		internalDate = in.Message.InternalDate
	}

	return &domain.ApplicationRecord{
		ID:                 messageID,
		OwnerID:            in.OwnerID,
		Company:            company.Value,
		CompanyConfidence:  company.Confidence,
		Role:               role.Value,
		RoleConfidence:     role.Confidence,
		Status:             status.Status,
		StatusConfidence:   status.Confidence,
		HasReferral:        referral.HasReferral,
		ReferralConfidence: referral.Confidence,
		AppliedAt:          AppliedAt(msg.Date, internalDate, now),
		Subject:            msg.Subject,
		SourceEmail:        in.SourceEmail,
		AccountID:          in.AccountID,
		MessageLink:        MessageLink(messageID),
		NeedsReview:        domain.NeedsReview(company.Confidence, role.Confidence, status.Confidence),
		SyncedAt:           now,
	}
}

// refine asks the refiner for LOW fields and keeps a proposal only when it
// appears verbatim in the message. Accepted proposals are MEDIUM.
func (e *Engine) refine(ctx context.Context, msg *domain.NormalizedMessage, company, role Extraction) (Extraction, Extraction) {
	proposal, err := e.refiner.Refine(ctx, msg)
	if err != nil {
		logger.WithError(err).Warn("[Engine.refine] refiner failed, keeping heuristic values")
		return company, role
	}
	if proposal == nil {
		return company, role
	}

	haystack := strings.ToLower(msg.Subject + "\n" + msg.Body)
	if company.Confidence == domain.ConfidenceLow && grounded(haystack, proposal.Company) {
		company = Extraction{Value: strings.TrimSpace(proposal.Company), Confidence: domain.ConfidenceMedium}
	}
	if role.Confidence == domain.ConfidenceLow && grounded(haystack, proposal.Role) {
		role = Extraction{Value: strings.TrimSpace(proposal.Role), Confidence: domain.ConfidenceMedium}
	}
	return company, role
}

func grounded(haystack, value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	if len(v) < 2 || v == strings.ToLower(domain.UnknownCompany) || v == strings.ToLower(domain.UnknownRole) {
		return false
	}
	return strings.Contains(haystack, v)
}

// MessageLink returns the web UI link for a message id.
func MessageLink(messageID string) string {
	if messageID == "" {
		return ""
	}
	return MessageLinkBase + messageID
}

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	time.RFC3339,
}

// AppliedAt picks the message date: the Date header, then the provider receipt
// time, then now.
func AppliedAt(dateHeader *string, internalDateMs int64, now time.Time) time.Time {
	if dateHeader != nil {
		if t, ok := parseDate(*dateHeader); ok {
			return t.UTC()
		}
	}
	if internalDateMs > 0 {
		return time.UnixMilli(internalDateMs).UTC()
	}
	return now.UTC()
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(value); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
