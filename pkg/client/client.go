// Package client provides the core CRM HTTP client with rate limiting,
// metadata caching, retry, and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fluxline/crm-digest/pkg/cache"
	"github.com/fluxline/crm-digest/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for CRM client operations.
var (
	crmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_requests_total",
		Help: "Total CRM requests by endpoint and status",
	}, []string{"endpoint", "status"})

	crmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_request_duration_seconds",
		Help:    "CRM request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	crmErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_errors_total",
		Help: "Total CRM errors by class",
	}, []string{"class"})

	crmLegacyFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_legacy_fallbacks_total",
		Help: "Total fallbacks from a versioned endpoint to its legacy variant",
	}, []string{"endpoint"})
)

// Client is the CRM API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIToken is the bearer token for the CRM API (required).
	APIToken string

	// BaseURL is the API origin, e.g. "https://api.example-crm.com".
	BaseURL string

	// Redis enables shared rate-limit state and cross-process metadata
	// caching. Optional: nil runs the client standalone.
	Redis *redis.Client

	// UserAgent identifies this client to the upstream API.
	UserAgent string

	// MetadataTTL is how long metadata responses (stages, fields,
	// saved filters) are cached.
	MetadataTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiToken string) Config {
	return Config{
		APIToken:    apiToken,
		BaseURL:     "https://api.example-crm.com",
		UserAgent:   "crm-digest/0.1.0",
		MetadataTTL: 5 * time.Minute,
	}
}

// New creates a new CRM client.
func New(cfg Config) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crm-digest/0.1.0"
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 5 * time.Minute
	}

	logger := log.With().Str("component", "crm-client").Logger()

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// get performs a GET request against one endpoint path, driving the
// rate-limit gate, the retry loop, and (for metadata endpoints) the
// shared response cache. It returns the raw response body.
func (c *Client) get(ctx context.Context, path string, query url.Values, cacheable bool) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		crmRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Rate limit check failed")
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", path).
			Msg("Request blocked by rate limiter")
		crmRequestsTotal.WithLabelValues(path, "rate_limited").Inc()
		return nil, fmt.Errorf("request blocked: rate limit critical")
	}

	cacheKey := cache.Key{Endpoint: path, QueryParams: query}
	if cacheable && c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			c.logger.Debug().
				Str("endpoint", path).
				Msg("Serving metadata from cache")
			return entry.Data, nil
		}
		if err != cache.ErrCacheMiss {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Cache get error")
		}
	}

	requestURL := c.config.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	c.logger.Debug().
		Str("endpoint", path).
		Str("method", http.MethodGet).
		Msg("Executing CRM request")

	var body []byte
	retryErr := retryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		data, err := c.execute(req, path)
		if err != nil {
			return err
		}
		body = data
		return nil
	}, classifyForRetry)
	if retryErr != nil {
		return nil, retryErr
	}

	if cacheable && c.cache != nil {
		entry := cache.NewEntry(body, http.StatusOK, c.config.MetadataTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Failed to cache metadata response")
		}
	}

	return body, nil
}

// post performs a POST request with a JSON body. Write operations are
// never cached and never retried on server errors beyond the usual
// retry policy for transient failures.
func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		crmRequestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		crmRequestsTotal.WithLabelValues(path, "rate_limited").Inc()
		return nil, fmt.Errorf("request blocked: rate limit critical")
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.execute(req, path)
}

// execute sends one HTTP request, classifies failures, updates the
// shared rate-limit state from the response headers, and returns the
// response body.
func (c *Client) execute(req *http.Request, endpoint string) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		crmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		crmRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.rateLimiter.UpdateFromHeaders(req.Context(), resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		crmErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode)
		crmErrorsTotal.WithLabelValues(string(errClass)).Inc()
		crmRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("CRM request error")

		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Endpoint:   endpoint,
			Message:    upstreamMessage(data, resp.Status),
		}
		if resp.StatusCode == http.StatusNotFound {
			apiErr.Err = ErrNotFound
		}
		return nil, apiErr
	}

	crmRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return data, nil
}

// classifyForRetry maps an error to its class for the retry loop.
func classifyForRetry(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// upstreamMessage extracts the upstream error text from a response
// body, falling back to the HTTP status line.
func upstreamMessage(data []byte, statusLine string) string {
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return statusLine
}

// decodeEnvelope unwraps the common {success, data, additional_data}
// response wrapper.
func decodeEnvelope(data []byte, endpoint string) (*apiEnvelope, error) {
	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "upstream reported failure"
		}
		return nil, fmt.Errorf("%s: %s", endpoint, msg)
	}
	return &env, nil
}
