package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrMigrationChanged means an applied migration file no longer matches what ran
var ErrMigrationChanged = errors.New("applied migration was modified")

// migrationFile is one .sql file from the migrations directory
type migrationFile struct {
	Name       string
	SQL        string
	Checksum   string
	Statements int
}

// loadMigrationFiles reads every .sql file in dir, sorted by name
func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		sum := sha256.Sum256(content)
		files = append(files, migrationFile{
			Name:       name,
			SQL:        string(content),
			Checksum:   hex.EncodeToString(sum[:]),
			Statements: countStatements(string(content)),
		})
	}

	return files, nil
}

// countStatements counts ';'-terminated statements, ignoring "--" comments.
// It is only used for logging.
func countStatements(sql string) int {
	count := 0
	pending := false
	for _, line := range strings.Split(sql, "\n") {
		if i := strings.Index(line, "--"); i >= 0 {
			line = line[:i]
		}
		for _, part := range strings.SplitAfter(line, ";") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == ";" {
				if pending {
					count++
					pending = false
				}
				continue
			}
			pending = true
			if strings.HasSuffix(trimmed, ";") {
				count++
				pending = false
			}
		}
	}
	if pending {
		count++
	}
	return count
}

// checkApplied reports files whose stored checksum differs from the file on disk.
// Rows recorded without a checksum are not compared.
func checkApplied(files []migrationFile, applied map[string]string) error {
	for _, f := range files {
		sum, ok := applied[f.Name]
		if !ok || sum == "" {
			continue
		}
		if sum != f.Checksum {
			return fmt.Errorf("%w: %s", ErrMigrationChanged, f.Name)
		}
	}
	return nil
}

// RunMigrations applies pending .sql migrations from migrationsDir in lexical
// order, one transaction per file, and refuses to run when an applied file
// has been edited since.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string, logger zerolog.Logger) error {
	if err := createMigrationsTable(ctx, pool); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	files, err := loadMigrationFiles(migrationsDir)
	if err != nil {
		return err
	}

	if err := checkApplied(files, applied); err != nil {
		return err
	}

	pending := 0
	for _, f := range files {
		if _, ok := applied[f.Name]; ok {
			logger.Debug().Str("migration", f.Name).Msg("migration already applied")
			continue
		}

		logger.Info().
			Str("migration", f.Name).
			Int("statements", f.Statements).
			Str("checksum", f.Checksum[:12]).
			Msg("applying migration")

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", f.Name, err)
		}

		if _, err := tx.Exec(ctx, f.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", f.Name, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`,
			f.Name, f.Checksum,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", f.Name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", f.Name, err)
		}
		pending++
	}

	logger.Info().Int("applied", pending).Int("total", len(files)).Msg("migrations up to date")
	return nil
}

func createMigrationsTable(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			checksum CHAR(64),
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum CHAR(64);
	`)
	return err
}

// getAppliedMigrations returns applied migration names and their checksums
func getAppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	rows, err := pool.Query(ctx, `SELECT name, COALESCE(checksum, '') FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return nil, err
		}
		applied[name] = checksum
	}

	return applied, rows.Err()
}

// Migrate applies the users/completions schema through the repository's pool
func (r *PostgresRepository) Migrate(ctx context.Context, migrationsDir string, logger zerolog.Logger) error {
	return RunMigrations(ctx, r.pool, migrationsDir, logger)
}
