// Package ratelimit tracks the CRM API request budget and gates outgoing
// requests. It monitors the x-ratelimit-remaining and x-ratelimit-reset
// response headers so a fleet of digest workers sharing one API token does
// not burn the token's rolling window.
package ratelimit

import (
	"time"
)

// Redis keys for shared budget state.
const (
	RedisKeyRemaining      = "crm:rate_limit:remaining"
	RedisKeyResetTimestamp = "crm:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "crm:rate_limit:last_update"
)

// Thresholds for budget decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget
	// falls below this value, leaving headroom for in-flight requests.
	ThresholdCritical = 2

	// ThresholdWarning applies throttling when the remaining budget
	// falls below this value.
	ThresholdWarning = 10

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 20
)

// State represents the current request-budget state as reported by the
// CRM API. When Redis is configured the state is shared across all
// client instances using the same token.
type State struct {
	// Remaining is the number of requests left in the current window,
	// from the x-ratelimit-remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets, derived from the
	// x-ratelimit-reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from a response.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// UpdateHealth recomputes the IsHealthy flag from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}

// NeedsThrottling returns true when requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && s.Remaining >= ThresholdCritical
}

// NeedsCriticalBlock returns true when requests must be blocked until
// the window resets.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical
}

// TimeUntilReset returns the duration until the window resets, or 0 if
// the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
