package inference

import (
	"strings"

	"jobtrack_server/core/domain"
)

// ReferralResult tells whether the message mentions a referral.
type ReferralResult struct {
	HasReferral bool
	Confidence  domain.Confidence
}

// DetectReferral looks for an attributed referral first ("referred by"), then a
// bare mention. Absence is reported with HIGH confidence.
func DetectReferral(subject, body string) ReferralResult {
	text := strings.ToLower(subject + " " + body)
	switch {
	case containsAny(text, "referred by", "referral from", "recommended by"):
		return ReferralResult{HasReferral: true, Confidence: domain.ConfidenceHigh}
	case containsAny(text, "referral", "referred"):
		return ReferralResult{HasReferral: true, Confidence: domain.ConfidenceMedium}
	default:
		return ReferralResult{HasReferral: false, Confidence: domain.ConfidenceHigh}
	}
}
