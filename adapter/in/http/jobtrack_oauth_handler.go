package http

import (
	"net/url"
	"strings"

	"jobtrack_server/core/port/in"
	"jobtrack_server/pkg/apperr"
	"jobtrack_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

const defaultFrontendURL = "http://localhost:3000"

// OAuthHandler receives the provider redirect. It runs without a bearer
// token; the owner comes from the one-shot state.
type OAuthHandler struct {
	accountService in.AccountService
	frontendURL    string
}

func NewOAuthHandler(accountService in.AccountService, frontendURL string) *OAuthHandler {
	frontendURL = strings.TrimRight(frontendURL, "/")
	if frontendURL == "" {
		frontendURL = defaultFrontendURL
	}
	return &OAuthHandler{accountService: accountService, frontendURL: frontendURL}
}

func (h *OAuthHandler) Register(r fiber.Router) {
	r.Get("/oauth/google/callback", h.Callback)
}

// Callback links the account and redirects the browser back to the settings
// page with either ?linked=<email> or ?error=<code>.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	if providerErr := c.Query("error"); providerErr != "" {
		logger.Warn("[OAuthHandler.Callback] provider returned error: %s", providerErr)
		return h.redirect(c, url.Values{"error": {providerErr}})
	}
	if code == "" {
		return h.redirect(c, url.Values{"error": {"missing_code"}})
	}
	if state == "" {
		logger.Warn("[OAuthHandler.Callback] missing state")
		return h.redirect(c, url.Values{"error": {"missing_state"}})
	}

	ownerID, err := h.accountService.ResolveState(c.Context(), state)
	if err != nil {
		logger.WithError(err).Warn("[OAuthHandler.Callback] state validation failed")
		return h.redirect(c, url.Values{"error": {"invalid_state"}})
	}

	view, err := h.accountService.LinkAccount(c.Context(), ownerID, code)
	if err != nil {
		logger.WithError(err).Error("[OAuthHandler.Callback] link failed for owner=%s", ownerID)
		return h.redirect(c, url.Values{"error": {errorCode(err)}})
	}

	logger.Info("[OAuthHandler.Callback] owner=%s linked account=%s", ownerID, view.ID)
	return h.redirect(c, url.Values{"linked": {view.Email}})
}

func (h *OAuthHandler) redirect(c *fiber.Ctx, q url.Values) error {
	return c.Redirect(h.frontendURL+"/settings?"+q.Encode(), fiber.StatusFound)
}

// errorCode exposes only the error code, never the message.
func errorCode(err error) string {
	return strings.ToLower(apperr.AsAppError(err).Code)
}
