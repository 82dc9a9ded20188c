package inference

import (
	"testing"

	"jobtrack_server/core/domain"
)

func TestExtractCompany(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		from     string
		body     string
		wantVal  string
		wantConf domain.Confidence
	}{
		{"subject application to", "Your application to Acme Corp", "jobs@acme.com", "", "Acme Corp", domain.ConfidenceHigh},
		{"subject interview with", "Interview with Globex", "", "", "Globex", domain.ConfidenceHigh},
		{"subject offer from", "An offer from Initech", "", "", "Initech", domain.ConfidenceHigh},
		{"subject is hiring", "Umbrella is hiring", "", "", "Umbrella", domain.ConfidenceHigh},
		{"sender domain fallback", "Thanks!", "Talent Team <talent@hooli.com>", "", "Hooli", domain.ConfidenceMedium},
		{"job board excluded", "Update", "notifications@indeed.com", "", domain.UnknownCompany, domain.ConfidenceLow},
		{"noreply mailbox keeps domain", "Update", "noreply@acme.com", "", "Acme", domain.ConfidenceMedium},
		{"display name ignored", "Update", "Acme Careers <no-reply@stripe.com>", "", "Stripe", domain.ConfidenceMedium},
		{"personal mail host excluded", "Update", "Jane <jane@gmail.com>", "", domain.UnknownCompany, domain.ConfidenceLow},
		{"noreply domain label excluded", "Update", "jobs@noreply.example.com", "", domain.UnknownCompany, domain.ConfidenceLow},
		{"mail subdomain excluded", "Update", "hr@mail.example.com", "", domain.UnknownCompany, domain.ConfidenceLow},
		{"body fallback", "Update", "no-reply@greenhouse.io", "Thank you for your interest in a position at Vandelay", "Vandelay", domain.ConfidenceLow},
		{"nothing at all", "", "", "", domain.UnknownCompany, domain.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCompany(tt.subject, tt.from, tt.body)
			if got.Value != tt.wantVal || got.Confidence != tt.wantConf {
				t.Errorf("ExtractCompany() = {%q, %s}, want {%q, %s}", got.Value, got.Confidence, tt.wantVal, tt.wantConf)
			}
		})
	}
}

func TestExtractRole(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		wantVal  string
		wantConf domain.Confidence
	}{
		{"application for ... at", "Application for Backend Engineer at Acme", "", "Backend Engineer", domain.ConfidenceHigh},
		{"role colon to end", "Role: Data Scientist", "", "Data Scientist", domain.ConfidenceHigh},
		{"X opening", "Frontend Developer opening", "", "Frontend Developer", domain.ConfidenceHigh},
		{"body is low", "Thanks", "We received your application for Site Reliability Engineer at Acme.", "Site Reliability Engineer", domain.ConfidenceLow},
		{"unknown", "Hello", "Just checking in", domain.UnknownRole, domain.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractRole(tt.subject, "", tt.body)
			if got.Value != tt.wantVal || got.Confidence != tt.wantConf {
				t.Errorf("ExtractRole() = {%q, %s}, want {%q, %s}", got.Value, got.Confidence, tt.wantVal, tt.wantConf)
			}
		})
	}
}
