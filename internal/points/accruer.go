package points

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
)

const creditKeyPrefix = "points:credited:"

// creditKey marks a (user, challenge) pair as already credited
func creditKey(userID, challengeID string) string {
	return creditKeyPrefix + userID + ":" + challengeID
}

// Store persists point totals
type Store interface {
	IncrementPoints(ctx context.Context, userID string, delta int) (int, error)
}

// Board mirrors point changes into a ranking
type Board interface {
	Add(ctx context.Context, userID string, delta int) error
}

// Accruer credits one point per first-time completion event
type Accruer struct {
	store   Store
	board   Board
	dedup   *redis.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures an Accruer
type Option func(*Accruer)

// WithBoard mirrors credited points into board
func WithBoard(board Board) Option {
	return func(a *Accruer) {
		a.board = board
	}
}

// WithDedup credits each (user, challenge) pair at most once by marking it in
// Redis. This covers both redelivered events and concurrent first completions.
func WithDedup(client *redis.Client) Option {
	return func(a *Accruer) {
		a.dedup = client
	}
}

// WithMetrics counts credited points
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Accruer) {
		a.metrics = m
	}
}

// NewAccruer creates a points accruer over store
func NewAccruer(store Store, logger zerolog.Logger, opts ...Option) *Accruer {
	a := &Accruer{
		store:  store,
		logger: logger.With().Str("component", "points").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle applies one completion event. Repeated completions earn nothing.
func (a *Accruer) Handle(ctx context.Context, event models.CompletionEvent) error {
	if event.AlreadyCompleted {
		return nil
	}

	key := creditKey(event.UserID, event.ChallengeID)
	if a.dedup != nil {
		fresh, err := a.dedup.SetNX(ctx, key, event.EventID, 0).Result()
		a.recordRedis("setnx", err)
		if err != nil {
			return fmt.Errorf("failed to check credit marker: %w", err)
		}
		if !fresh {
			a.logger.Debug().
				Str("event_id", event.EventID).
				Str("user_id", event.UserID).
				Str("challenge_id", event.ChallengeID).
				Msg("Challenge already credited, skipping")
			return nil
		}
	}

	total, err := a.store.IncrementPoints(ctx, event.UserID, 1)
	if err != nil {
		if a.dedup != nil {
			// release the marker so a redelivery can retry
			a.dedup.Del(ctx, key)
		}
		return fmt.Errorf("failed to credit points: %w", err)
	}
	a.metrics.AddPoints(1)

	if a.board != nil {
		if err := a.board.Add(ctx, event.UserID, 1); err != nil {
			a.logger.Warn().Err(err).Str("user_id", event.UserID).Msg("Failed to update leaderboard")
		}
	}

	a.logger.Debug().
		Str("user_id", event.UserID).
		Str("challenge_id", event.ChallengeID).
		Int("points", total).
		Msg("Points credited")

	return nil
}

func (a *Accruer) recordRedis(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.IncRedisOperation(op, status)
}
