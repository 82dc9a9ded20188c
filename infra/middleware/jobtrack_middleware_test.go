package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/response"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newTestApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	return app
}

func decodeEnvelope(t *testing.T, resp *http.Response) response.Response {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	var env response.Response
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return env
}

func TestJWTAuth(t *testing.T) {
	ownerID := uuid.New()
	now := time.Now()

	app := newTestApp()
	app.Get("/me", JWTAuth(testSecret), func(c *fiber.Ctx) error {
		id, err := OwnerID(c)
		if err != nil {
			return err
		}
		return c.SendString(id.String())
	})

	valid := jwt.MapClaims{"sub": ownerID.String(), "exp": now.Add(time.Hour).Unix(), "iat": now.Unix()}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), valid), 200, ""},
		{"missing header", "", 401, apperr.CodeUnauthorized},
		{"wrong scheme", "Basic abc", 401, apperr.CodeUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), valid), 401, apperr.CodeInvalidToken},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": ownerID.String(), "exp": now.Add(-time.Hour).Unix()}), 401, apperr.CodeInvalidToken},
		{"no exp", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": ownerID.String()}), 401, apperr.CodeInvalidToken},
		{"issued in the future", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": ownerID.String(), "exp": now.Add(2 * time.Hour).Unix(), "iat": now.Add(time.Hour).Unix()}), 401, apperr.CodeInvalidToken},
		{"sub not a uuid", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret),
			jwt.MapClaims{"sub": "alice", "exp": now.Add(time.Hour).Unix()}), 401, apperr.CodeInvalidToken},
		{"none algorithm", "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid), 401, apperr.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == 200 {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != ownerID.String() {
					t.Errorf("owner = %s, want %s", body, ownerID)
				}
				return
			}
			env := decodeEnvelope(t, resp)
			if env.Success || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Errorf("envelope = %+v, want code %s", env, tt.wantCode)
			}
		})
	}
}

func TestJWTAuthWithoutSecret(t *testing.T) {
	app := newTestApp()
	app.Get("/me", JWTAuth(""), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	tok := signToken(t, jwt.SigningMethodHS256, []byte("any"), jwt.MapClaims{"sub": uuid.NewString(), "exp": time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, _ := app.Test(req)
	if resp.StatusCode != 401 {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"app error", apperr.NotFound("account"), 404, apperr.CodeNotFound, ""},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperr.ConfigError("google oauth is not configured")), 500, apperr.CodeConfigError, "google oauth is not configured"},
		{"fiber error", fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), 405, "METHOD_NOT_ALLOWED", "nope"},
		{"plain error", errors.New("pq: connection refused"), 500, apperr.CodeInternalError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(fiber.HeaderXRequestID, "req-1")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			env := decodeEnvelope(t, resp)
			if env.Error == nil || env.Error.Code != tt.wantCode {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.wantCode)
			}
			if tt.wantMsg != "" && env.Error.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", env.Error.Message, tt.wantMsg)
			}
			if env.RequestID != "req-1" {
				t.Errorf("request_id = %q, want req-1", env.RequestID)
			}
		})
	}
}

func TestRecover(t *testing.T) {
	app := newTestApp()
	app.Use(Recover())
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if env := decodeEnvelope(t, resp); env.Error == nil || env.Error.Code != apperr.CodeInternalError {
		t.Errorf("envelope = %+v", env)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	ownerA, ownerB := uuid.New(), uuid.New()
	app := newTestApp()
	app.Post("/sync", func(c *fiber.Ctx) error {
		id, _ := uuid.Parse(c.Get("X-Owner"))
		c.Locals(LocalOwnerID, id)
		return c.Next()
	}, rl.Handler(), func(c *fiber.Ctx) error { return c.SendStatus(202) })

	do := func(owner uuid.UUID) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/sync", nil)
		req.Header.Set("X-Owner", owner.String())
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() error = %v", err)
		}
		return resp
	}

	for i, want := range []int{202, 202, 429} {
		if got := do(ownerA).StatusCode; got != want {
			t.Errorf("request %d status = %d, want %d", i, got, want)
		}
	}
	if got := do(ownerB).StatusCode; got != 202 {
		t.Errorf("other owner status = %d, want 202", got)
	}

	// Window rolls over.
	rl.mu.Lock()
	rl.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	rl.mu.Unlock()
	if got := do(ownerA).StatusCode; got != 202 {
		t.Errorf("after window status = %d, want 202", got)
	}
}

func TestSecurityMiddleware(t *testing.T) {
	app := newTestApp()
	app.Use(SecurityHeaders(), MaxBodySize(16))
	app.Post("/", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"x"}`)))
	if resp.StatusCode != 204 {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if resp.Header.Get(fiber.HeaderXRequestID) == "" {
		t.Error("missing request id header")
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64))))
	if resp.StatusCode != 413 {
		t.Errorf("oversized status = %d, want 413", resp.StatusCode)
	}
}
