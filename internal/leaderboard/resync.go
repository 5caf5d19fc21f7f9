package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/models"
)

// PointsSource lists persisted user points
type PointsSource interface {
	ListPoints(ctx context.Context, limit int) ([]models.PointsEntry, error)
}

// Replacer overwrites the cached leaderboard
type Replacer interface {
	Replace(ctx context.Context, entries []models.PointsEntry) error
}

// Resyncer periodically rebuilds the leaderboard from storage
type Resyncer struct {
	source   PointsSource
	board    Replacer
	size     int
	interval time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewResyncer creates a resync worker
func NewResyncer(source PointsSource, board Replacer, size int, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Resyncer {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if size <= 0 {
		size = 1000
	}

	return &Resyncer{
		source:   source,
		board:    board,
		size:     size,
		interval: interval,
		metrics:  m,
		logger:   logger.With().Str("component", "leaderboard-resync").Logger(),
	}
}

// Start begins the resync worker in a goroutine
func (r *Resyncer) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Resyncer) run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("leaderboard resync worker started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Run immediately on start
	r.Sync(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("leaderboard resync worker stopped")
			return
		case <-ticker.C:
			r.Sync(ctx)
		}
	}
}

// Sync copies the current standings from storage into the board
func (r *Resyncer) Sync(ctx context.Context) error {
	entries, err := r.source.ListPoints(ctx, r.size)
	if err != nil {
		r.metrics.IncLeaderboardSync("error")
		r.logger.Error().Err(err).Msg("failed to list points")
		return err
	}

	if err := r.board.Replace(ctx, entries); err != nil {
		r.metrics.IncLeaderboardSync("error")
		r.logger.Error().Err(err).Msg("failed to replace leaderboard")
		return err
	}

	r.metrics.IncLeaderboardSync("ok")
	r.logger.Debug().Int("users", len(entries)).Msg("leaderboard resynced")
	return nil
}
