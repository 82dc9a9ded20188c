package inference

import (
	"testing"

	"jobtrack_server/core/domain"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		want     domain.ApplicationStatus
		wantConf domain.Confidence
	}{
		{"offer letter", "Your offer letter", "", domain.StatusOffer, domain.ConfidenceHigh},
		{"congratulations plus offer", "Congratulations!", "We are pleased to extend an offer", domain.StatusOffer, domain.ConfidenceHigh},
		{"congratulations alone", "Congratulations!", "You passed the screen", domain.StatusApplied, domain.ConfidenceLow},
		{"rejection", "Update", "Unfortunately we will not proceed", domain.StatusRejected, domain.ConfidenceHigh},
		{"rejection beats interview", "Interview invitation", "we are not moving forward", domain.StatusRejected, domain.ConfidenceHigh},
		{"final beats applied", "Final interview", "Thanks for your application. You applied last week.", domain.StatusFinalInterview, domain.ConfidenceHigh},
		{"final round", "", "You are invited to the final round", domain.StatusFinalInterview, domain.ConfidenceHigh},
		{"technical", "Coding interview details", "", domain.StatusTechnicalInterview, domain.ConfidenceHigh},
		{"interview", "", "We would like to interview you", domain.StatusInterview, domain.ConfidenceHigh},
		{"phone screen", "Quick chat?", "", domain.StatusPhoneScreen, domain.ConfidenceHigh},
		{"application received", "Application received", "", domain.StatusApplied, domain.ConfidenceHigh},
		{"case insensitive", "THANK YOU FOR APPLYING", "", domain.StatusApplied, domain.ConfidenceHigh},
		{"default", "Newsletter", "Top jobs this week", domain.StatusApplied, domain.ConfidenceLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStatus(tt.subject, tt.body)
			if got.Status != tt.want || got.Confidence != tt.wantConf {
				t.Errorf("ClassifyStatus() = {%s, %s}, want {%s, %s}", got.Status, got.Confidence, tt.want, tt.wantConf)
			}
		})
	}
}

func TestDetectReferral(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		body     string
		want     bool
		wantConf domain.Confidence
	}{
		{"referred by", "", "You were referred by John Smith", true, domain.ConfidenceHigh},
		{"recommended by", "Recommended by a colleague", "", true, domain.ConfidenceHigh},
		{"bare referral", "Employee referral program", "", true, domain.ConfidenceMedium},
		{"none", "Application received", "Thanks", false, domain.ConfidenceHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectReferral(tt.subject, tt.body)
			if got.HasReferral != tt.want || got.Confidence != tt.wantConf {
				t.Errorf("DetectReferral() = {%v, %s}, want {%v, %s}", got.HasReferral, got.Confidence, tt.want, tt.wantConf)
			}
		})
	}
}
