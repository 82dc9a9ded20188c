package syncer

import (
	"fmt"
	"time"
)

const (
	DefaultLookbackDays       = 90
	DefaultMaxResults         = 50
	MaxResultsCeiling         = 100
	DefaultMessageConcurrency = 1
	DefaultRunTimeout         = 5 * time.Minute
	DefaultGuardTTL           = 10 * time.Minute
)

// Search clauses for messages that plausibly concern an application: job
// keywords in the subject, or anything sent from a job board.
const (
	jobSubjectClause = "subject:(application OR applied OR job OR interview OR offer OR position OR opportunity OR rejected)"
	jobSenderClause  = "from:(*@linkedin.com OR *@indeed.com OR *@glassdoor.com)"
)

// jobQuery is parenthesized so the lookback bounds both alternatives.
const jobQuery = "(" + jobSubjectClause + " OR " + jobSenderClause + ")"

// Config bounds the cost of a single run.
type Config struct {
	LookbackDays       int
	MaxResults         int64
	MessageConcurrency int
	RunTimeout         time.Duration
	GuardTTL           time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LookbackDays:       DefaultLookbackDays,
		MaxResults:         DefaultMaxResults,
		MessageConcurrency: DefaultMessageConcurrency,
		RunTimeout:         DefaultRunTimeout,
		GuardTTL:           DefaultGuardTTL,
	}
}

// normalized fills zero values and clamps MaxResults to [1, 100].
func (c Config) normalized() Config {
	if c.LookbackDays <= 0 {
		c.LookbackDays = DefaultLookbackDays
	}
	switch {
	case c.MaxResults <= 0:
		c.MaxResults = DefaultMaxResults
	case c.MaxResults > MaxResultsCeiling:
		c.MaxResults = MaxResultsCeiling
	}
	if c.MessageConcurrency <= 0 {
		c.MessageConcurrency = DefaultMessageConcurrency
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.GuardTTL <= 0 {
		c.GuardTTL = DefaultGuardTTL
	}
	return c
}

// BuildQuery returns the provider search query for a lookback window in days.
func BuildQuery(lookbackDays int) string {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return fmt.Sprintf("%s newer_than:%dd", jobQuery, lookbackDays)
}
