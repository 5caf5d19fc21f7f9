package completion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/terra-clan/challenge-tracker/internal/events"
	"github.com/terra-clan/challenge-tracker/internal/metrics"
	"github.com/terra-clan/challenge-tracker/internal/storage"
)

// Result is reported to the caller after a completion is persisted
type Result struct {
	Points           int   `json:"points"`
	AlreadyCompleted bool  `json:"alreadyCompleted"`
	CompletedDate    int64 `json:"completedDate"`
}

// Service runs the load, merge, write sequence for validated submissions
type Service struct {
	repo      storage.Repository
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithPublisher sets where completion events are sent after each write
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithMetrics enables completion counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a completion service
func NewService(repo storage.Repository, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: logger.With().Str("component", "completion").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Complete records sub for userID. The error wraps storage.ErrUserNotFound
// when the user has no record.
func (s *Service) Complete(ctx context.Context, userID string, sub Submission) (*Result, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()
	merge := BuildUserUpdate(user, sub.Completion(now.UnixMilli()), sub.Timezone, now)

	if err := s.repo.ApplyCompletion(ctx, userID, merge.Update); err != nil {
		return nil, fmt.Errorf("failed to apply completion: %w", err)
	}

	s.metrics.IncCompletion(sub.Variant.String(), merge.AlreadyCompleted)

	s.logger.Debug().
		Str("user_id", userID).
		Str("challenge_id", sub.ID).
		Str("variant", sub.Variant.String()).
		Bool("already_completed", merge.AlreadyCompleted).
		Msg("Completion recorded")

	if s.publisher != nil {
		event := events.NewCompletionEvent(userID, sub.ID, merge.AlreadyCompleted, merge.CompletedDate, merge.Points, now)
		if err := s.publisher.Publish(ctx, event); err != nil {
			// the completion itself is stored, so the request still succeeds
			s.metrics.IncEventPublished("completion", "error")
			s.logger.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to publish completion event")
		} else {
			s.metrics.IncEventPublished("completion", "ok")
		}
	}

	return &Result{
		Points:           merge.Points,
		AlreadyCompleted: merge.AlreadyCompleted,
		CompletedDate:    merge.CompletedDate,
	}, nil
}
