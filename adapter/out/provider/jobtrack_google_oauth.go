package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/apperr"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleOAuthConfig holds the OAuth client registration.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// HTTPClient carries token and userinfo calls; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// GoogleOAuth implements out.OAuthProvider for Google accounts.
type GoogleOAuth struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleOAuth validates the client registration. A missing value is a
// configuration error, reported to callers instead of failing at startup.
func NewGoogleOAuth(cfg GoogleOAuthConfig) (*GoogleOAuth, error) {
	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if cfg.RedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}
	if len(missing) > 0 {
		return nil, apperr.ConfigError("google oauth is not configured: missing " + strings.Join(missing, ", "))
	}

	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				gmail.GmailReadonlyScope,
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: userInfoURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is issued even for a returning user.
func (g *GoogleOAuth) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (g *GoogleOAuth) Exchange(ctx context.Context, code string) (*domain.Credential, error) {
	tok, err := g.config.Exchange(g.withClient(ctx), code)
	if err != nil {
		return nil, wrapError(err, "failed to exchange code")
	}
	return &domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}, nil
}

// IdentityEmail returns the address the token belongs to.
func (g *GoogleOAuth) IdentityEmail(ctx context.Context, ts oauth2.TokenSource) (string, error) {
	client := oauth2.NewClient(g.withClient(ctx), ts)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", wrapError(err, "failed to get user info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", out.NewProviderError(providerName, out.ProviderErrAuth,
			fmt.Sprintf("userinfo returned %d", resp.StatusCode), nil, false)
	}

	var userInfo struct {
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("decode user info: %w", err)
	}
	return userInfo.Email, nil
}

// TokenSource refreshes cred when it expires. Refresh failures come back as
// provider errors matching out.ErrCredentialRejected.
func (g *GoogleOAuth) TokenSource(ctx context.Context, cred *domain.Credential) oauth2.TokenSource {
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	}
	return &mappedTokenSource{base: g.config.TokenSource(g.withClient(ctx), tok)}
}

// withClient makes the oauth2 package use the configured HTTP client.
func (g *GoogleOAuth) withClient(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

type mappedTokenSource struct {
	base oauth2.TokenSource
}

func (s *mappedTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		if strings.Contains(err.Error(), "refresh token is not set") {
			return nil, out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token expired without refresh token", err, false)
		}
		return nil, wrapError(err, "failed to refresh token")
	}
	return tok, nil
}

var _ out.OAuthProvider = (*GoogleOAuth)(nil)
