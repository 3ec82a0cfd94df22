package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testPresenceStore(t *testing.T) (*PresenceStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := newPresenceStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestPresencePingAndCheck(t *testing.T) {
	store, mr := testPresenceStore(t)
	ctx := context.Background()

	if store.IsOnline(ctx, 7) {
		t.Error("user should start offline")
	}

	if err := store.Ping(ctx, 7); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if !store.IsOnline(ctx, 7) {
		t.Error("user should be online after a ping")
	}
	if store.IsOnline(ctx, 8) {
		t.Error("a ping must not mark other users online")
	}

	if ttl := mr.TTL(presenceKey(7)); ttl != presenceTTL {
		t.Errorf("key TTL = %v, want %v", ttl, presenceTTL)
	}
}

func TestPresenceExpires(t *testing.T) {
	store, mr := testPresenceStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx, 7); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	mr.FastForward(presenceTTL + time.Second)
	if store.IsOnline(ctx, 7) {
		t.Error("user should read offline after the TTL")
	}
}

func TestPresenceUnavailableReadsOffline(t *testing.T) {
	store, mr := testPresenceStore(t)
	ctx := context.Background()

	_ = store.Ping(ctx, 7)
	mr.Close()

	if store.IsOnline(ctx, 7) {
		t.Error("unreachable redis must read as offline")
	}

	var nilStore *PresenceStore
	if nilStore.IsOnline(ctx, 7) {
		t.Error("nil store must read as offline")
	}
}
