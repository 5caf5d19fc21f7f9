package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
)

const (
	defaultKey = "leaderboard:points"
	namesKey   = "leaderboard:names"
)

// RedisBoard keeps user points in a sorted set
type RedisBoard struct {
	client  *redis.Client
	key     string
	metrics *metrics.Metrics
}

// NewRedisBoard creates a leaderboard on client. m may be nil.
func NewRedisBoard(client *redis.Client, m *metrics.Metrics) *RedisBoard {
	return &RedisBoard{
		client:  client,
		key:     defaultKey,
		metrics: m,
	}
}

// Add increments a user's score by delta
func (b *RedisBoard) Add(ctx context.Context, userID string, delta int) error {
	err := b.client.ZIncrBy(ctx, b.key, float64(delta), userID).Err()
	b.record("zincrby", err)
	if err != nil {
		return fmt.Errorf("failed to increment leaderboard score: %w", err)
	}
	return nil
}

// Top returns the highest scoring users, ranked from 1
func (b *RedisBoard) Top(ctx context.Context, limit int64) ([]models.PointsEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	players, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, limit-1).Result()
	b.record("zrevrange", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}

	if len(players) == 0 {
		return []models.PointsEntry{}, nil
	}

	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = fmt.Sprint(p.Member)
	}

	names, err := b.client.HMGet(ctx, namesKey, ids...).Result()
	b.record("hmget", err)
	if err != nil {
		return nil, fmt.Errorf("failed to get usernames: %w", err)
	}

	entries := make([]models.PointsEntry, len(players))
	for i, p := range players {
		entries[i] = models.PointsEntry{
			UserID: ids[i],
			Points: p.Score,
			Rank:   int64(i) + 1,
		}
		if name, ok := names[i].(string); ok {
			entries[i].Username = name
		}
	}

	return entries, nil
}

// Rank returns a user's 1-based position, or 0 when the user is not ranked
func (b *RedisBoard) Rank(ctx context.Context, userID string) (int64, error) {
	rank, err := b.client.ZRevRank(ctx, b.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	b.record("zrevrank", err)
	if err != nil {
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank + 1, nil
}

// Replace swaps the whole board for entries in one transaction
func (b *RedisBoard) Replace(ctx context.Context, entries []models.PointsEntry) error {
	pipe := b.client.TxPipeline()

	pipe.Del(ctx, b.key)
	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		names := make(map[string]interface{}, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: e.Points, Member: e.UserID}
			if e.Username != "" {
				names[e.UserID] = e.Username
			}
		}
		pipe.ZAdd(ctx, b.key, members...)
		if len(names) > 0 {
			pipe.HSet(ctx, namesKey, names)
		}
	}

	_, err := pipe.Exec(ctx)
	b.record("replace", err)
	if err != nil {
		return fmt.Errorf("failed to replace leaderboard: %w", err)
	}
	return nil
}

func (b *RedisBoard) record(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.metrics.IncRedisOperation(op, status)
}
