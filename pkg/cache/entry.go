package cache

import (
	"time"
)

// Entry represents a cached CRM metadata response.
type Entry struct {
	// Data is the raw response body.
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// FetchedAt is when the response was fetched from the upstream API.
	FetchedAt time.Time `json:"fetched_at"`

	// ExpiresAt is when the entry becomes stale.
	ExpiresAt time.Time `json:"expires_at"`
}

// NewEntry creates an entry for a response body with the given TTL.
func NewEntry(data []byte, statusCode int, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:       data,
		StatusCode: statusCode,
		FetchedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}
