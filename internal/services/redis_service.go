package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"task-tracker/internal/database"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey       = "presence:online"
	offlineStatusTTL     = 24 * time.Hour
	messageRateKeyPrefix = "ratelimit:ws:"
)

type RedisService struct {
	client *database.RedisClient
}

func NewRedisService(client *database.RedisClient) *RedisService {
	return &RedisService{
		client: client,
	}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// =============================================================================
// Presence
// =============================================================================

// SetUserOnline marks the user online until SetUserOffline. The status hash
// does not expire while the connection lasts.
func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	return r.setPresence(ctx, userID, "online", 0)
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	return r.setPresence(ctx, userID, "offline", offlineStatusTTL)
}

// setPresence writes the status hash. A zero ttl clears any expiry left by
// an earlier offline record.
func (r *RedisService) setPresence(ctx context.Context, userID, status string, ttl time.Duration) error {
	now := time.Now().Unix()
	pipe := r.client.GetClient().TxPipeline()

	if status == "online" {
		pipe.SAdd(ctx, onlineUsersKey, userID)
	} else {
		pipe.SRem(ctx, onlineUsersKey, userID)
	}
	pipe.HSet(ctx, presenceKey(userID), map[string]interface{}{
		"status":    status,
		"last_seen": now,
	})
	if ttl > 0 {
		pipe.Expire(ctx, presenceKey(userID), ttl)
	} else {
		pipe.Persist(ctx, presenceKey(userID))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set user %s %s: %w", userID, status, err)
	}

	slog.Debug("User presence updated", "userID", userID, "status", status)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

// LastSeen returns when the user's presence last changed. A user never seen
// yields the zero time.
func (r *RedisService) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	raw, err := r.client.GetClient().HGet(ctx, presenceKey(userID), "last_seen").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed last_seen for %s: %w", userID, err)
	}
	return time.Unix(sec, 0), nil
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one hit on key and reports whether fewer than limit
// hits landed inside the sliding window before it.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check failed for %s: %w", key, err)
	}

	return count.Val() < int64(limit), nil
}

// MessageRateLimiter caps inbound socket frames per user.
type MessageRateLimiter struct {
	redis  *RedisService
	limit  int
	window time.Duration
}

func NewMessageRateLimiter(rs *RedisService, limit int, window time.Duration) *MessageRateLimiter {
	return &MessageRateLimiter{redis: rs, limit: limit, window: window}
}

func (l *MessageRateLimiter) AllowMessage(ctx context.Context, userID string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	return l.redis.CheckRateLimit(ctx, messageRateKeyPrefix+userID, l.limit, l.window)
}
