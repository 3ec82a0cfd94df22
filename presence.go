package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Online presence lives in Redis: a ping refreshes a per-user key with a
// short TTL and readers just check existence. Presence failures are never
// fatal; an unreachable Redis reads as "offline".
const presenceTTL = 90 * time.Second

type PresenceStore struct {
	client *redis.Client
}

func NewPresenceStore(addr string) *PresenceStore {
	return &PresenceStore{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
	}
}

func newPresenceStoreFromClient(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func presenceKey(userID int) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

func (s *PresenceStore) Ping(ctx context.Context, userID int) error {
	return s.client.Set(ctx, presenceKey(userID), time.Now().Unix(), presenceTTL).Err()
}

func (s *PresenceStore) IsOnline(ctx context.Context, userID int) bool {
	if s == nil || s.client == nil {
		return false
	}
	n, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	return err == nil && n > 0
}

func (s *PresenceStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// POST /me/ping - mark this user as online "now"
func mePingHandler(presence *PresenceStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		_ = presence.Ping(r.Context(), userID)
		w.WriteHeader(http.StatusNoContent)
	}
}
