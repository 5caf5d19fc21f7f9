package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// MemoryRepository keeps users in process memory
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*models.User),
	}
}

// PutUser stores a copy of user, replacing any record with the same id
func (r *MemoryRepository) PutUser(user *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = cloneUser(user)
}

// GetUser returns a copy of the stored user
func (r *MemoryRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

// ApplyCompletion replaces the completion with the same id or appends it
func (r *MemoryRepository) ApplyCompletion(ctx context.Context, userID string, update models.UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	replaced := false
	for i, c := range user.CompletedChallenges {
		if c.ID == update.Completion.ID {
			user.CompletedChallenges[i] = update.Completion
			replaced = true
			break
		}
	}
	if !replaced {
		user.CompletedChallenges = append(user.CompletedChallenges, update.Completion)
	}

	if update.ProgressTimestamp != nil {
		user.ProgressTimestamps = append(user.ProgressTimestamps, *update.ProgressTimestamp)
	}
	if update.Timezone != "" {
		user.Timezone = update.Timezone
	}

	return nil
}

// IncrementPoints adds delta to the user's points and returns the new total
func (r *MemoryRepository) IncrementPoints(ctx context.Context, userID string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	user.Points += delta
	return user.Points, nil
}

// ListPoints returns users ordered by points, highest first
func (r *MemoryRepository) ListPoints(ctx context.Context, limit int) ([]models.PointsEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]models.PointsEntry, 0, len(r.users))
	for _, u := range r.users {
		entries = append(entries, models.PointsEntry{
			UserID:   u.ID,
			Username: u.Username,
			Points:   float64(u.Points),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.CompletedChallenges = append([]models.CompletedChallenge(nil), u.CompletedChallenges...)
	c.ProgressTimestamps = append([]int64(nil), u.ProgressTimestamps...)
	return &c
}
