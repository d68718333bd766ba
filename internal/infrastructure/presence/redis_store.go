package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scrapmart/internal/domain/entity"
)

const keyPrefix = "presence:"

// Compare-and-delete: only the connection that owns the entry may remove it.
var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "connection_id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var touchScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "connection_id") == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore shares presence between server instances. Each user is a hash at
// presence:{userID}. With a non-zero ttl, entries expire unless touched, which
// bounds how long a crashed instance can leave users marked online.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func presenceKey(userID string) string {
	return keyPrefix + userID
}

func (s *RedisStore) Register(ctx context.Context, entry entity.PresenceEntry) error {
	key := presenceKey(entry.UserID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, map[string]interface{}{
			"user_id":       entry.UserID,
			"user_role":     entry.UserRole,
			"connection_id": entry.ConnectionID,
			"connected_at":  entry.ConnectedAt.UTC().Format(time.RFC3339Nano),
		})
		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register presence for %s: %w", entry.UserID, err)
	}
	return nil
}

func (s *RedisStore) Unregister(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("unregister presence for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, userID, connectionID string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.client, []string{presenceKey(userID)}, connectionID).Int()
	if err != nil {
		return false, fmt.Errorf("release presence for %s: %w", userID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Touch(ctx context.Context, userID, connectionID string) error {
	if s.ttl <= 0 {
		return nil
	}
	err := touchScript.Run(ctx, s.client, []string{presenceKey(userID)}, connectionID, s.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("touch presence for %s: %w", userID, err)
	}
	return nil
}

func (s *RedisStore) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence for %s: %w", userID, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*entity.PresenceEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("get presence for %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	entry := &entity.PresenceEntry{
		UserID:       fields["user_id"],
		UserRole:     fields["user_role"],
		ConnectionID: fields["connection_id"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["connected_at"]); err == nil {
		entry.ConnectedAt = ts
	}
	return entry, true, nil
}
