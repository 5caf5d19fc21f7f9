package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// ErrUserNotFound is returned when no user record exists for an id
var ErrUserNotFound = errors.New("user not found")

// Repository defines the interface for user progress persistence
type Repository interface {
	// Users
	GetUser(ctx context.Context, id string) (*models.User, error)

	// ApplyCompletion performs one atomic merge of a completion into a user record
	ApplyCompletion(ctx context.Context, userID string, update models.UserUpdate) error

	// Points
	IncrementPoints(ctx context.Context, userID string, delta int) (int, error)
	ListPoints(ctx context.Context, limit int) ([]models.PointsEntry, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
