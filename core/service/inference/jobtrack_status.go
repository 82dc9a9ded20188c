package inference

import (
	"strings"

	"jobtrack_server/core/domain"
)

// StatusResult is the classified lifecycle stage of a message.
type StatusResult struct {
	Status     domain.ApplicationStatus
	Confidence domain.Confidence
}

type statusRule struct {
	status  domain.ApplicationStatus
	matches func(text string) bool
}

// Later pipeline stages come first: an offer or rejection often repeats
// earlier-stage words like "applied" and must not be classified backwards.
var statusRules = []statusRule{
	{domain.StatusOffer, func(t string) bool {
		return containsAny(t, "offer letter", "job offer") ||
			(strings.Contains(t, "congratulations") && strings.Contains(t, "offer"))
	}},
	{domain.StatusRejected, func(t string) bool {
		return containsAny(t, "unfortunately", "not moving forward", "other candidates", "not selected", "declined your application")
	}},
	{domain.StatusFinalInterview, func(t string) bool {
		return containsAny(t, "final interview", "final round")
	}},
	{domain.StatusTechnicalInterview, func(t string) bool {
		return containsAny(t, "technical interview", "coding interview", "technical assessment")
	}},
	{domain.StatusInterview, func(t string) bool {
		return containsAny(t, "schedule an interview", "interview invitation", "would like to interview")
	}},
	{domain.StatusPhoneScreen, func(t string) bool {
		return containsAny(t, "phone screen", "phone call", "quick chat")
	}},
	{domain.StatusApplied, func(t string) bool {
		return containsAny(t, "application received", "thank you for applying", "application submitted")
	}},
}

// ClassifyStatus maps subject and body to a lifecycle status. The first matching
// rule wins with HIGH confidence; with no match the message is APPLIED/LOW.
func ClassifyStatus(subject, body string) StatusResult {
	text := strings.ToLower(subject + " " + body)
	for _, rule := range statusRules {
		if rule.matches(text) {
			return StatusResult{Status: rule.status, Confidence: domain.ConfidenceHigh}
		}
	}
	return StatusResult{Status: domain.StatusApplied, Confidence: domain.ConfidenceLow}
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
