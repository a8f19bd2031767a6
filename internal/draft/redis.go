package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// redisClient is the part of the go-redis API RedisStore uses.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps drafts in Redis. Every Save refreshes the TTL, so an
// abandoned draft expires on its own.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisClient parses url and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a RedisStore. A zero ttl keeps drafts until discarded.
func NewRedisStore(client redisClient, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "talxify:",
		logger: logger,
	}
}

var _ domain.DraftStore = (*RedisStore)(nil)

func (s *RedisStore) key(k domain.DraftKey) string {
	return s.prefix + k.StorageKey()
}

// Save overwrites the draft and resets its TTL.
func (s *RedisStore) Save(ctx context.Context, d *domain.QuizDraft) (err error) {
	const op = "draft.save"
	defer func() { metrics.DraftOperation("save", err) }()

	data, err := encode(d)
	if err != nil {
		return domain.Internal(err, op, "failed to encode draft")
	}

	if err := s.client.Set(ctx, s.key(d.Key), data, s.ttl).Err(); err != nil {
		return domain.Unavailable(err, op, "failed to save draft")
	}
	return nil
}

// Load returns the draft at key, or ENOTFOUND.
func (s *RedisStore) Load(ctx context.Context, key domain.DraftKey) (d *domain.QuizDraft, err error) {
	const op = "draft.load"
	defer func() {
		if !domain.IsNotFound(err) {
			metrics.DraftOperation("load", err)
		}
	}()

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.NotFound(op, "draft", key.Digest())
		}
		return nil, domain.Unavailable(err, op, "failed to load draft")
	}

	d, err = decode(data, key)
	if err != nil {
		s.logger.Warn("discarding unreadable draft", "key", s.key(key), "error", err)
		_ = s.client.Del(ctx, s.key(key)).Err()
		return nil, domain.NotFound(op, "draft", key.Digest())
	}
	return d, nil
}

// Discard deletes the draft. Discarding a missing draft succeeds.
func (s *RedisStore) Discard(ctx context.Context, key domain.DraftKey) (err error) {
	const op = "draft.discard"
	defer func() { metrics.DraftOperation("discard", err) }()

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return domain.Unavailable(err, op, "failed to discard draft")
	}
	return nil
}
