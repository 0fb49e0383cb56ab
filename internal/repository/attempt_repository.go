package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AttemptRepository tracks consecutive failed-login counts per client channel
// in Redis. Counters decay after the configured window so a stale failure run
// does not lock a channel forever.
type AttemptRepository struct {
	client *redis.Client
	window time.Duration
	logger *zap.Logger
}

// NewAttemptRepository constructs an attempt repository.
func NewAttemptRepository(client *redis.Client, window time.Duration, logger *zap.Logger) *AttemptRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptRepository{client: client, window: window, logger: logger}
}

func attemptKey(channel string) string {
	return fmt.Sprintf("login_attempts:%s", channel)
}

// Increment bumps the failure count for a channel and returns the new count.
// The decay window restarts on the first failure of a run.
func (r *AttemptRepository) Increment(ctx context.Context, channel string) (int, error) {
	key := attemptKey(channel)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			r.logger.Warn("failed to set attempt decay window", zap.Error(err))
		}
	}
	return int(count), nil
}

// Count returns the current failure count for a channel.
func (r *AttemptRepository) Count(ctx context.Context, channel string) (int, error) {
	count, err := r.client.Get(ctx, attemptKey(channel)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", attemptKey(channel), err)
	}
	return count, nil
}

// Reset clears the failure count after a successful authentication.
func (r *AttemptRepository) Reset(ctx context.Context, channel string) error {
	if err := r.client.Del(ctx, attemptKey(channel)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", attemptKey(channel), err)
	}
	return nil
}
