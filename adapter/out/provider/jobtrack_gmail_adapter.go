// Package provider implements the Google OAuth and Gmail adapters.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobtrack_server/core/domain"
	"jobtrack_server/core/port/out"
	"jobtrack_server/pkg/logger"
	"jobtrack_server/pkg/resilience"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName = "gmail"
	quotaKey     = "gmail"
	callTimeout  = 30 * time.Second
)

// Limiter gates outbound calls. *ratelimit.SlidingWindowLimiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter reads messages through the Gmail API. It holds no credential;
// every call takes the caller's token source.
type GmailAdapter struct {
	cb      *gobreaker.CircuitBreaker
	limiter Limiter
	opts    []option.ClientOption
}

// NewGmailAdapter creates a Gmail adapter. limiter may be nil. Extra client
// options are appended to every service (tests point the endpoint elsewhere).
func NewGmailAdapter(limiter Limiter, opts ...option.ClientOption) *GmailAdapter {
	cbCfg := resilience.DefaultBreakerConfig("gmail-api")
	cbCfg.IsSuccessful = isClientError
	return &GmailAdapter{
		cb:      resilience.NewBreaker(cbCfg),
		limiter: limiter,
		opts:    opts,
	}
}

// ListMessageIDs returns the ids of the first page of messages matching query.
func (a *GmailAdapter) ListMessageIDs(ctx context.Context, ts oauth2.TokenSource, query string, maxResults int64) ([]string, error) {
	svc, err := a.service(ctx, ts)
	if err != nil {
		return nil, err
	}

	var resp *gmail.ListMessagesResponse
	err = a.execute(ctx, "ListMessages", func(ctx context.Context) error {
		var apiErr error
		resp, apiErr = svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to list messages")
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m != nil && m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

// GetMessage fetches one message in full MIME form.
func (a *GmailAdapter) GetMessage(ctx context.Context, ts oauth2.TokenSource, messageID string) (*domain.RawMessage, error) {
	svc, err := a.service(ctx, ts)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	err = a.execute(ctx, "GetMessage", func(ctx context.Context) error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, "failed to get message")
	}
	return convertMessage(msg), nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (a *GmailAdapter) service(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, a.opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, out.NewProviderError(providerName, out.ProviderErrInvalidInput, "failed to create gmail client", err, false)
	}
	return svc, nil
}

// execute runs fn behind the rate limiter and the circuit breaker.
func (a *GmailAdapter) execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, quotaKey); err != nil {
			return err
		}
	}

	_, err := a.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil && !isClientError(err) {
		logger.Warn("[GmailAdapter] %s failed: state=%s, err=%v", operation, a.cb.State().String(), err)
	}
	return err
}

// isClientError reports failures caused by the caller's request or credential
// (4xx other than 429, rejected tokens). The breaker is shared by every
// account, so it counts these as successes.
func isClientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, out.ErrCredentialRejected) {
		return true
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response == nil || retrieveErr.Response.StatusCode < 500
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 && !isRateLimited(apiErr)
	}
	return false
}

// wrapError maps transport failures onto provider error codes. Auth failures
// satisfy errors.Is(err, out.ErrCredentialRejected).
func wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var perr *out.ProviderError
	if errors.As(err, &perr) {
		return perr
	}

	if resilience.IsOpen(err) {
		return out.NewProviderError(providerName, out.ProviderErrUnavailable, "Gmail temporarily unavailable", err, true)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return out.NewProviderError(providerName, out.ProviderErrAuth, "Credential rejected", err, false)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError(providerName, out.ProviderErrInvalidInput, "Invalid request", err, false)
		case 401:
			return out.NewProviderError(providerName, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if isRateLimited(apiErr) {
				return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(providerName, out.ProviderErrPermission, "Access denied", err, false)
		case 404:
			return out.NewProviderError(providerName, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(providerName, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503, 504:
			return out.NewProviderError(providerName, out.ProviderErrServer, "Server error", err, true)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return out.NewProviderError(providerName, out.ProviderErrNetwork, defaultMsg, err, true)
	}
	return out.NewProviderError(providerName, out.ProviderErrServer, defaultMsg, err, true)
}

func isRateLimited(apiErr *googleapi.Error) bool {
	if strings.Contains(apiErr.Message, "Rate Limit") {
		return true
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// =============================================================================
// Conversion
// =============================================================================

func convertMessage(msg *gmail.Message) *domain.RawMessage {
	if msg == nil {
		return nil
	}
	return &domain.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
		Payload:      convertPart(msg.Payload),
	}
}

func convertPart(p *gmail.MessagePart) *domain.MessagePart {
	if p == nil {
		return nil
	}
	part := &domain.MessagePart{
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h == nil {
			continue
		}
		part.Headers = append(part.Headers, domain.MessageHeader{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Body = &domain.MessagePartBody{Data: p.Body.Data, Size: p.Body.Size}
	}
	for _, child := range p.Parts {
		if c := convertPart(child); c != nil {
			part.Parts = append(part.Parts, c)
		}
	}
	return part
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailProvider = (*GmailAdapter)(nil)
