// Package resilience provides circuit breakers for external service calls.
package resilience

import (
	"errors"
	"time"

	"jobtrack_server/pkg/logger"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32        // trips after more than this many failures in a row
	FailureRatio        float64       // or this ratio once MinRequests is reached
	MinRequests         uint32        // requests per interval before the ratio applies
	HalfOpenRequests    uint32        // trial requests allowed while half-open
	Interval            time.Duration // closed-state count reset period
	Timeout             time.Duration // open state duration before half-open

	// IsSuccessful reports errors that should count as successes, such as
	// client errors that say nothing about the remote service's health.
	// A nil error is always a success. Nil counts every non-nil error as a
	// failure.
	IsSuccessful func(err error) bool
}

// DefaultBreakerConfig returns the settings used for Google and OpenAI calls.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		ConsecutiveFailures: 5,
		FailureRatio:        0.6,
		MinRequests:         10,
		HalfOpenRequests:    3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// NewBreaker creates a gobreaker.CircuitBreaker that logs state changes.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = def.HalfOpenRequests
	}
	if cfg.Interval == 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	var isSuccessful func(err error) bool
	if cfg.IsSuccessful != nil {
		isSuccessful = func(err error) bool {
			return err == nil || cfg.IsSuccessful(err)
		}
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.HalfOpenRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
