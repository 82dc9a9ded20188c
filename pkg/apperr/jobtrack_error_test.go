package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("upstream")

	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"unauthorized", Unauthorized(""), CodeUnauthorized, http.StatusUnauthorized},
		{"invalid token", InvalidToken("expired"), CodeInvalidToken, http.StatusUnauthorized},
		{"bad request", BadRequest("bad"), CodeBadRequest, http.StatusBadRequest},
		{"invalid input", InvalidInput("limit", "must be a number"), CodeInvalidInput, http.StatusBadRequest},
		{"missing field", MissingField("code"), CodeMissingField, http.StatusBadRequest},
		{"not found", NotFound("account"), CodeNotFound, http.StatusNotFound},
		{"sync in progress", SyncInProgress("a1"), CodeSyncInProgress, http.StatusConflict},
		{"oauth failed", OAuthFailed("google", cause), CodeOAuthFailed, http.StatusBadGateway},
		{"invalid state", InvalidOAuthState(cause), CodeInvalidOAuthState, http.StatusBadRequest},
		{"credential rejected", CredentialRejected(cause), CodeCredentialRejected, http.StatusUnauthorized},
		{"database", DatabaseError("insert", cause), CodeDatabaseError, http.StatusInternalServerError},
		{"external", ExternalError("gmail", cause), CodeExternalError, http.StatusBadGateway},
		{"internal", Internal(""), CodeInternalError, http.StatusInternalServerError},
		{"internal with error", InternalWithError(cause), CodeInternalError, http.StatusInternalServerError},
		{"config", ConfigError("missing key"), CodeConfigError, http.StatusInternalServerError},
		{"timeout", Timeout("sync"), CodeTimeout, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.HTTPStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", tt.err.HTTPStatus(), tt.wantStatus)
			}
			if tt.err.Message == "" {
				t.Error("message is empty")
			}
		})
	}
}

func TestWrappedCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("link: %w", ExternalError("google", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is(cause) = false, want true")
	}
	if !HasCode(err, CodeExternalError) {
		t.Error("HasCode(EXTERNAL_ERROR) = false, want true")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("HasCode(NOT_FOUND) = true, want false")
	}
	if got := GetHTTPStatus(err); got != http.StatusBadGateway {
		t.Errorf("GetHTTPStatus() = %d, want %d", got, http.StatusBadGateway)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("Error() = %q, want the cause included", err.Error())
	}
}

func TestAsAppError(t *testing.T) {
	plain := errors.New("boom")
	got := AsAppError(plain)
	if got.Code != CodeInternalError || !errors.Is(got, plain) {
		t.Errorf("AsAppError(plain) = %+v", got)
	}
	if GetHTTPStatus(plain) != http.StatusInternalServerError {
		t.Errorf("GetHTTPStatus(plain) = %d, want 500", GetHTTPStatus(plain))
	}

	nf := NotFound("account")
	if AsAppError(nf) != nf {
		t.Error("AsAppError(AppError) did not return the same value")
	}
}

func TestWithDetail(t *testing.T) {
	err := New("RATE_LIMITED", "slow down", http.StatusTooManyRequests).
		WithDetail("retry_after", 30).
		WithError(errors.New("window full"))

	if err.Details["retry_after"] != 30 {
		t.Errorf("details = %v", err.Details)
	}
	if err.Unwrap() == nil {
		t.Error("Unwrap() = nil after WithError")
	}
	if !strings.HasPrefix(err.Error(), "[RATE_LIMITED] slow down") {
		t.Errorf("Error() = %q", err.Error())
	}
}
