package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 5
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// GetUser loads a user together with its completed challenges
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, points, timezone, current_challenge_id, progress_timestamps
		FROM users
		WHERE id = $1
	`

	var user models.User
	var timezone, currentChallengeID sql.NullString

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Points,
		&timezone,
		&currentChallengeID,
		&user.ProgressTimestamps,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Timezone = timezone.String
	user.CurrentChallengeID = currentChallengeID.String

	completed, err := r.getCompletedChallenges(ctx, id)
	if err != nil {
		return nil, err
	}
	user.CompletedChallenges = completed

	return &user, nil
}

func (r *PostgresRepository) getCompletedChallenges(ctx context.Context, userID string) ([]models.CompletedChallenge, error) {
	query := `
		SELECT challenge_id, completed_date, solution, github_link, files, challenge_type
		FROM completed_challenges
		WHERE user_id = $1
		ORDER BY completed_date ASC, challenge_id ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed challenges: %w", err)
	}
	defer rows.Close()

	var completed []models.CompletedChallenge
	for rows.Next() {
		var c models.CompletedChallenge
		var solution, githubLink sql.NullString
		var filesJSON []byte

		if err := rows.Scan(
			&c.ID,
			&c.CompletedDate,
			&solution,
			&githubLink,
			&filesJSON,
			&c.ChallengeType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan completed challenge: %w", err)
		}

		c.Solution = solution.String
		c.GithubLink = githubLink.String

		if len(filesJSON) > 0 {
			if err := json.Unmarshal(filesJSON, &c.Files); err != nil {
				return nil, fmt.Errorf("failed to unmarshal files: %w", err)
			}
		}

		completed = append(completed, c)
	}

	return completed, rows.Err()
}

// ApplyCompletion writes the merged completion in one transaction.
// The (user_id, challenge_id) key keeps one row per challenge and the
// conflict clause never rewrites completed_date.
func (r *PostgresRepository) ApplyCompletion(ctx context.Context, userID string, update models.UserUpdate) error {
	var filesJSON []byte
	if len(update.Completion.Files) > 0 {
		var err error
		filesJSON, err = json.Marshal(update.Completion.Files)
		if err != nil {
			return fmt.Errorf("failed to marshal files: %w", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	userQuery := `
		UPDATE users
		SET progress_timestamps = CASE
				WHEN $2::bigint IS NULL THEN progress_timestamps
				ELSE array_append(progress_timestamps, $2::bigint)
			END,
			timezone = COALESCE($3, timezone)
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, userQuery, userID, update.ProgressTimestamp, nullString(update.Timezone))
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	completionQuery := `
		INSERT INTO completed_challenges (user_id, challenge_id, completed_date, solution, github_link, files, challenge_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, challenge_id) DO UPDATE
		SET solution = EXCLUDED.solution,
			github_link = EXCLUDED.github_link,
			files = EXCLUDED.files,
			challenge_type = EXCLUDED.challenge_type
	`

	c := update.Completion
	if _, err := tx.Exec(ctx, completionQuery,
		userID,
		c.ID,
		c.CompletedDate,
		nullString(c.Solution),
		nullString(c.GithubLink),
		filesJSON,
		c.ChallengeType,
	); err != nil {
		return fmt.Errorf("failed to push completed challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}

	return nil
}

// IncrementPoints adds delta to the user's points
func (r *PostgresRepository) IncrementPoints(ctx context.Context, userID string, delta int) (int, error) {
	var points int
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET points = points + $2 WHERE id = $1 RETURNING points`,
		userID, delta,
	).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment points: %w", err)
	}
	return points, nil
}

// ListPoints returns users ordered by points
func (r *PostgresRepository) ListPoints(ctx context.Context, limit int) ([]models.PointsEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, username, points FROM users ORDER BY points DESC, id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	defer rows.Close()

	var entries []models.PointsEntry
	for rows.Next() {
		var e models.PointsEntry
		var points int
		if err := rows.Scan(&e.UserID, &e.Username, &points); err != nil {
			return nil, fmt.Errorf("failed to scan points: %w", err)
		}
		e.Points = float64(points)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
