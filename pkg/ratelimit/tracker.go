package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for request-budget tracking.
var (
	crmBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crm_rate_limit_remaining",
		Help: "Requests remaining in the current CRM rate limit window",
	})

	crmRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to exhausted budget",
	})

	crmRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to low budget",
	})
)

// Tracker monitors the CRM request budget and gates requests.
// A nil Redis client disables shared state: every request is allowed
// and header updates are dropped. That mode is for library use where
// a single process does not need cross-process coordination.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new request-budget tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current budget state from Redis.
// Returns a default healthy state when Redis is disabled or empty.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		return healthyDefault(), nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get remaining budget: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	if err == redis.Nil {
		t.logger.Debug().Msg("No budget state in Redis, returning default healthy state")
		return healthyDefault(), nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &State{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

func healthyDefault() *State {
	return &State{
		Remaining:  40, // Assume healthy until real headers arrive
		ResetAt:    time.Now().Add(10 * time.Second),
		LastUpdate: time.Now(),
		IsHealthy:  true,
	}
}

// UpdateFromHeaders parses CRM rate limit headers and updates the shared
// state. Responses without rate limit headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("x-ratelimit-remaining")
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse x-ratelimit-remaining header: %w", err)
	}

	// Seconds until the window resets. Some proxies strip the header;
	// fall back to a short window rather than rejecting the update.
	resetSeconds := 10
	if resetStr := headers.Get("x-ratelimit-reset"); resetStr != "" {
		resetSeconds, err = strconv.Atoi(resetStr)
		if err != nil {
			return fmt.Errorf("parse x-ratelimit-reset header: %w", err)
		}
	}

	now := time.Now()
	state := &State{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()

	crmBudgetRemaining.Set(float64(remain))

	if t.redis != nil {
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, remain, 0)
		pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)

		lastUpdateJSON, err := json.Marshal(state.LastUpdate)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store budget state in redis: %w", err)
		}
	}

	logEvent := t.logger.Info().
		Int("remaining", remain).
		Time("reset_at", state.ResetAt).
		Bool("is_healthy", state.IsHealthy)

	if state.NeedsCriticalBlock() {
		logEvent = t.logger.Error()
		logEvent.Msg("CRM request budget CRITICAL - requests will be blocked")
	} else if state.NeedsThrottling() {
		logEvent = t.logger.Warn()
		logEvent.Msg("CRM request budget WARNING - requests will be throttled")
	} else {
		logEvent.Msg("CRM request budget state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed under the
// current budget. Returns false when the budget is critically low.
// In the warning band it sleeps briefly to spread requests out.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get budget state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("CRM request budget exhausted - blocking request")

		crmRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("CRM request budget low - throttling request")

		crmRateLimitThrottlesTotal.Inc()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return true, nil
}
