// Package httputil builds pooled HTTP clients for outbound API calls.
package httputil

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration

	KeepAliveInterval time.Duration
}

// DefaultClientConfig returns the general-purpose settings.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// GoogleClientConfig is tuned for token exchange, refresh and userinfo calls.
func GoogleClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConnsPerHost = 50
	cfg.IdleConnTimeout = 120 * time.Second
	return cfg
}

// OpenAIClientConfig allows for slow completions at moderate concurrency.
func OpenAIClientConfig() *ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConns = 30
	cfg.MaxConnsPerHost = 30
	cfg.ResponseTimeout = 60 * time.Second
	return cfg
}

// NewClient creates an HTTP client with its own connection pool.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:     true,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}

var (
	googleOnce   sync.Once
	googleClient *http.Client
	openaiOnce   sync.Once
	openaiClient *http.Client
)

// GoogleClient returns the shared client for Google OAuth endpoints.
func GoogleClient() *http.Client {
	googleOnce.Do(func() { googleClient = NewClient(GoogleClientConfig()) })
	return googleClient
}

// OpenAIClient returns the shared client for the OpenAI API.
func OpenAIClient() *http.Client {
	openaiOnce.Do(func() { openaiClient = NewClient(OpenAIClientConfig()) })
	return openaiClient
}
