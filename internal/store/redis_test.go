package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// Redis tests need a reachable server; set REDIS_ADDR to run them.
func newTestRedisStore(t *testing.T) OfflineStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	st, err := NewRedisStore(RedisConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Ping(context.Background()); err != nil {
		t.Skipf("Redis not reachable at %s: %v", addr, err)
	}
	return st
}

func TestRedisStore_RoundTrip(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)
	payload := []byte(`{"type":"unavailable"}`)

	username := "alice-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { st.Delete(ctx, username) })

	if err := st.Insert(ctx, username, payload, at); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	rec, err := st.Load(ctx, username)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(rec.Payload, payload) || !rec.At.Equal(at) {
		t.Errorf("round trip mismatch: %+v", rec)
	}

	if err := st.Delete(ctx, username); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Load(ctx, username); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
