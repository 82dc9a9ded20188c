package inference

import (
	"regexp"
	"strings"

	"jobtrack_server/core/domain"
)

// Extraction is an inferred value and how directly the text supported it.
type Extraction struct {
	Value      string
	Confidence domain.Confidence
}

// Patterns are tried in order; the first one whose capture is non-empty wins.
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)application (?:to|at|for) ([A-Z][a-zA-Z0-9\s&.]+)`),
	regexp.MustCompile(`(?i)position (?:at|with) ([A-Z][a-zA-Z0-9\s&.]+)`),
	regexp.MustCompile(`(?i)interview (?:at|with) ([A-Z][a-zA-Z0-9\s&.]+)`),
	regexp.MustCompile(`(?i)offer from ([A-Z][a-zA-Z0-9\s&.]+)`),
	regexp.MustCompile(`(?i)([A-Z][a-zA-Z0-9\s&.]+) is (?:hiring|recruiting)`),
}

var rolePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:application for|applied for|position:|role:) ([A-Z][a-zA-Z0-9\s/-]+?)(?:\s(?:at|with|position|role)|$)`),
	regexp.MustCompile(`(?i)([A-Z][a-zA-Z0-9\s/-]+?) (?:position|role|opening)`),
	regexp.MustCompile(`(?i)applied to ([A-Z][a-zA-Z0-9\s/-]+)`),
}

var senderDomainPattern = regexp.MustCompile(`@([^.\s>]+)\.`)

// Domain labels that never identify an employer. The mailbox part of the
// address is not consulted: noreply@acme.com still names Acme.
var genericSenders = map[string]bool{
	"noreply":       true,
	"no-reply":      true,
	"notifications": true,
	"mail":          true,
	"email":         true,
}

// Job boards, applicant tracking systems and personal mail hosts. They relay
// mail for many employers, so their label is not a company name.
var relayDomains = map[string]bool{
	"linkedin":      true,
	"indeed":        true,
	"glassdoor":     true,
	"greenhouse":    true,
	"lever":         true,
	"myworkdayjobs": true,
	"gmail":         true,
	"googlemail":    true,
	"outlook":       true,
	"hotmail":       true,
	"yahoo":         true,
}

// ExtractCompany resolves the employer: subject (HIGH), sender domain (MEDIUM),
// body (LOW), otherwise "Unknown Company" (LOW).
func ExtractCompany(subject, from, body string) Extraction {
	if v, ok := firstMatch(companyPatterns, subject); ok {
		return Extraction{Value: v, Confidence: domain.ConfidenceHigh}
	}
	if v, ok := companyFromSender(from); ok {
		return Extraction{Value: v, Confidence: domain.ConfidenceMedium}
	}
	if v, ok := firstMatch(companyPatterns, body); ok {
		return Extraction{Value: v, Confidence: domain.ConfidenceLow}
	}
	return Extraction{Value: domain.UnknownCompany, Confidence: domain.ConfidenceLow}
}

// ExtractRole resolves the job title: subject (HIGH), body (LOW), otherwise
// "Unknown Role" (LOW). The sender is not a usable signal for roles.
func ExtractRole(subject, _ string, body string) Extraction {
	if v, ok := firstMatch(rolePatterns, subject); ok {
		return Extraction{Value: v, Confidence: domain.ConfidenceHigh}
	}
	if v, ok := firstMatch(rolePatterns, body); ok {
		return Extraction{Value: v, Confidence: domain.ConfidenceLow}
	}
	return Extraction{Value: domain.UnknownRole, Confidence: domain.ConfidenceLow}
}

func firstMatch(patterns []*regexp.Regexp, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, p := range patterns {
		m := p.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

func companyFromSender(from string) (string, bool) {
	m := senderDomainPattern.FindStringSubmatch(from)
	if len(m) < 2 {
		return "", false
	}
	label := strings.ToLower(m[1])
	if label == "" || genericSenders[label] || relayDomains[label] {
		return "", false
	}
	return strings.ToUpper(label[:1]) + label[1:], true
}
