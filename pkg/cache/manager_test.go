package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Unit tests skip when no
// local Redis is available; the testcontainers-backed variant lives in
// tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/api/v2/stages"}
	entry := NewEntry([]byte(`{"success":true,"data":[{"id":2,"name":"Qualified"}]}`), 200, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if retrieved.StatusCode != entry.StatusCode {
		t.Errorf("StatusCode mismatch: got %d, want %d", retrieved.StatusCode, entry.StatusCode)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	_, err := manager.Get(ctx, Key{Endpoint: "/api/v2/nonexistent"})
	if err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Set_ExpiredEntryNotStored(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/api/v2/dealFields"}
	entry := &Entry{
		Data:      []byte(`{}`),
		ExpiresAt: time.Now().Add(-1 * time.Minute),
	}

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := Key{Endpoint: "/api/v2/filters"}
	entry := NewEntry([]byte(`{"success":true,"data":[]}`), 200, time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Expected ErrCacheMiss after delete, got %v", err)
	}
}
