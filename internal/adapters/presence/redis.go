// Package presence stores the coarse online flag outside the database.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per identity: {online, last_seen}.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id domain.Identity) string {
	return s.prefix + string(id)
}

func (s *RedisStore) MarkOnline(ctx context.Context, id domain.Identity, at time.Time) error {
	return s.set(ctx, id, true, at)
}

func (s *RedisStore) MarkOffline(ctx context.Context, id domain.Identity, at time.Time) error {
	return s.set(ctx, id, false, at)
}

func (s *RedisStore) set(ctx context.Context, id domain.Identity, online bool, at time.Time) error {
	flag := "0"
	if online {
		flag = "1"
	}
	err := s.client.HSet(ctx, s.key(id), "online", flag, "last_seen", at.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("presence %s: %w", id, err)
	}
	return nil
}

// Status reads the stored presence. An identity never seen is offline
// with no LastSeen.
func (s *RedisStore) Status(ctx context.Context, id domain.Identity) (domain.PresenceStatus, error) {
	vals, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return domain.PresenceStatus{}, fmt.Errorf("presence %s: %w", id, err)
	}
	st := domain.PresenceStatus{Online: vals["online"] == "1"}
	if ts := vals["last_seen"]; ts != "" {
		seen, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return domain.PresenceStatus{}, fmt.Errorf("presence %s: bad last_seen: %w", id, err)
		}
		st.LastSeen = &seen
	}
	return st, nil
}
