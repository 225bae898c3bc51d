package ratelimit

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
)

func TestTracker_NilRedis_AlwaysAllows(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	allowed, err := tracker.ShouldAllowRequest(context.Background())
	if err != nil {
		t.Fatalf("ShouldAllowRequest failed: %v", err)
	}
	if !allowed {
		t.Error("tracker without Redis should allow all requests")
	}
}

func TestTracker_NilRedis_GetState(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if !state.IsHealthy {
		t.Error("default state should be healthy")
	}
}

func TestTracker_UpdateFromHeaders_NoHeaders(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	// Responses without rate limit headers are ignored, not an error.
	if err := tracker.UpdateFromHeaders(context.Background(), http.Header{}); err != nil {
		t.Errorf("UpdateFromHeaders with empty headers = %v, want nil", err)
	}
}

func TestTracker_UpdateFromHeaders_Malformed(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	headers := http.Header{}
	headers.Set("x-ratelimit-remaining", "not-a-number")

	if err := tracker.UpdateFromHeaders(context.Background(), headers); err == nil {
		t.Error("expected error for malformed x-ratelimit-remaining header")
	}
}

func TestTracker_UpdateFromHeaders_MissingReset(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	headers := http.Header{}
	headers.Set("x-ratelimit-remaining", "35")

	// Missing reset header falls back to a short window.
	if err := tracker.UpdateFromHeaders(context.Background(), headers); err != nil {
		t.Errorf("UpdateFromHeaders without reset header = %v, want nil", err)
	}
}
