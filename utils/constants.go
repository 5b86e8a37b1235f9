package utils

import (
	"time"
)

// Scheduling constants
const (
	// SchedulingBuffer is the fixed lead time added to "now" when searching
	// for or computing due times. It absorbs sweep polling latency so a
	// recomputed next_due_at is never already in the past when the next
	// sweep picks it up.
	SchedulingBuffer = 15 * time.Minute

	// DefaultSweepInterval is how often the scheduler polls for due subscriptions
	DefaultSweepInterval = 5 * time.Minute
)

// Rendering constants
const (
	// DefaultRenderCap is the maximum number of tiles rendered and delivered
	// in a single cycle, independent of how many tiles actually exist.
	// It also bounds the number of concurrent in-flight renders.
	DefaultRenderCap = 6

	// DeliverySafetyMargin is subtracted from the per-cycle task timeout to
	// reserve wall-clock time for the delivery step after rendering.
	DeliverySafetyMargin = 2 * time.Minute

	// DefaultTaskTimeout bounds one full delivery cycle for a subscription
	DefaultTaskTimeout = 10 * time.Minute
)

// Delivery retry constants
const (
	// MaxSendAttempts bounds retries for a single provider call
	MaxSendAttempts = 3

	// SendBackoffInitial is the initial backoff between send retries
	SendBackoffInitial = 2 * time.Second
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Token constants
const (
	// UnsubscribeTokenTTL is the time-to-live for signed unsubscribe links (30 days)
	UnsubscribeTokenTTL = 30 * 24 * time.Hour

	// UnsubscribeAudience binds unsubscribe tokens to their consuming endpoint
	UnsubscribeAudience = "subscriptions/unsubscribe"
)

// Team activity constants
const (
	// TeamActivityWindow is how far back a team's last activity may be for
	// the team to count as active during a sweep
	TeamActivityWindow = 30 * 24 * time.Hour

	// TeamActivityCacheTTL bounds staleness of the redis-backed active-team set
	TeamActivityCacheTTL = 10 * time.Minute
)
