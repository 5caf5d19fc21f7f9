package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

const (
	superBlockFile = "superblock.yaml"
	migrationsFile = "path-migrations.yaml"
)

// Loader holds the challenge catalog and legacy path migrations.
//
// Layout on disk:
//
//	<dir>/path-migrations.yaml             old path segment -> new learn path
//	<dir>/<superblock>/superblock.yaml     super block display name
//	<dir>/<superblock>/<block>/<name>.yaml one challenge; dashedName defaults to <name>
type Loader struct {
	mu         sync.RWMutex
	challenges map[string]*models.Challenge
	order      []string
	migrations map[string]string
	logger     zerolog.Logger
}

// NewLoader creates an empty catalog
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		challenges: make(map[string]*models.Challenge),
		migrations: make(map[string]string),
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// LoadFromDir loads path migrations and every super block under dir.
// Broken files are logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	l.logger.Info().Str("dir", dir).Msg("loading catalog")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory: %w", err)
	}

	if err := l.loadMigrations(filepath.Join(dir, migrationsFile)); err != nil && !os.IsNotExist(err) {
		l.logger.Warn().Err(err).Msg("failed to load path migrations")
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		superBlockDir := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(superBlockDir, superBlockFile)); os.IsNotExist(err) {
			continue // not a super block
		}

		count, err := l.loadSuperBlock(superBlockDir)
		if err != nil {
			l.logger.Warn().Err(err).Str("dir", entry.Name()).Msg("failed to load super block")
			continue
		}

		l.logger.Info().Str("super_block", entry.Name()).Int("challenges", count).Msg("super block loaded")
	}

	l.logger.Info().Int("challenges", l.Count()).Int("migrations", len(l.migrations)).Msg("catalog loaded")
	return nil
}

func (l *Loader) loadMigrations(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var migrations map[string]string
	if err := yaml.Unmarshal(data, &migrations); err != nil {
		return fmt.Errorf("failed to parse %s: %w", migrationsFile, err)
	}

	l.mu.Lock()
	for from, to := range migrations {
		l.migrations[from] = to
	}
	l.mu.Unlock()

	return nil
}

func (l *Loader) loadSuperBlock(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, superBlockFile))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", superBlockFile, err)
	}

	var sb superBlockYAML
	if err := yaml.Unmarshal(data, &sb); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", superBlockFile, err)
	}
	if sb.Name == "" {
		return 0, fmt.Errorf("super block name is required")
	}

	blocks, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read super block dir: %w", err)
	}

	count := 0
	for _, block := range blocks {
		if !block.IsDir() {
			continue
		}

		blockDir := filepath.Join(dir, block.Name())
		files, err := os.ReadDir(blockDir)
		if err != nil {
			l.logger.Warn().Err(err).Str("block", block.Name()).Msg("failed to read block")
			continue
		}

		for _, f := range files {
			ext := strings.ToLower(filepath.Ext(f.Name()))
			if f.IsDir() || (ext != ".yaml" && ext != ".yml") {
				continue
			}

			challenge, err := loadChallenge(filepath.Join(blockDir, f.Name()))
			if err != nil {
				l.logger.Warn().Err(err).Str("file", f.Name()).Msg("failed to load challenge")
				continue
			}
			if challenge.Block == "" {
				challenge.Block = block.Name()
			}
			if challenge.SuperBlock == "" {
				challenge.SuperBlock = sb.Name
			}

			l.Add(challenge)
			count++
		}
	}

	return count, nil
}

func loadChallenge(path string) (*models.Challenge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var c models.Challenge
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if c.ID == "" {
		return nil, fmt.Errorf("challenge id is required")
	}
	if c.DashedName == "" {
		base := filepath.Base(path)
		c.DashedName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &c, nil
}

// Add registers a challenge, keeping first-seen order
func (l *Loader) Add(c *models.Challenge) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.challenges[c.ID]; !exists {
		l.order = append(l.order, c.ID)
	}
	l.challenges[c.ID] = c
}

// AddMigration maps a legacy path segment to a learn-site path
func (l *Loader) AddMigration(from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.migrations[from] = to
}

// Get returns a challenge by id
func (l *Loader) Get(id string) *models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.challenges[id]
}

// First returns the first loaded challenge, or nil for an empty catalog
func (l *Loader) First() *models.Challenge {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.order) == 0 {
		return nil
	}
	return l.challenges[l.order[0]]
}

// Count returns the number of loaded challenges
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.challenges)
}

// Migration looks up the learn-site path for a legacy path segment
func (l *Loader) Migration(segment string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	to, ok := l.migrations[segment]
	return to, ok
}

type superBlockYAML struct {
	Name string `yaml:"name"`
}
