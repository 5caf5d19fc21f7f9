package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// Publisher delivers completion events to the points accrual side
type Publisher interface {
	Publish(ctx context.Context, event models.CompletionEvent) error
	Close() error
}

// Handler consumes one completion event
type Handler func(ctx context.Context, event models.CompletionEvent) error

// NewCompletionEvent stamps an event with a fresh id
func NewCompletionEvent(userID, challengeID string, alreadyCompleted bool, completedDate int64, points int, now time.Time) models.CompletionEvent {
	return models.CompletionEvent{
		EventID:          uuid.New().String(),
		UserID:           userID,
		ChallengeID:      challengeID,
		AlreadyCompleted: alreadyCompleted,
		CompletedDate:    completedDate,
		Points:           points,
		Timestamp:        now.UTC().Format(time.RFC3339),
	}
}

// InProcessPublisher hands events straight to a handler in the caller's goroutine
type InProcessPublisher struct {
	handler Handler
}

// NewInProcessPublisher creates a publisher that invokes handler directly
func NewInProcessPublisher(handler Handler) *InProcessPublisher {
	return &InProcessPublisher{handler: handler}
}

func (p *InProcessPublisher) Publish(ctx context.Context, event models.CompletionEvent) error {
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, event)
}

func (p *InProcessPublisher) Close() error {
	return nil
}
