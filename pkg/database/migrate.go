package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migration is a single ordered schema change.
type Migration struct {
	Version  string
	Title    string
	SQL      string
	Checksum string
}

// AppliedMigration mirrors a schema_migrations row.
type AppliedMigration struct {
	Version  string `db:"version"`
	Title    string `db:"title"`
	Checksum string `db:"checksum"`
}

// Migrator applies *.up.sql files from a filesystem in version order.
type Migrator struct {
	db     *sqlx.DB
	source fs.FS
	logger *zap.Logger
}

// NewMigrator constructs a migrator reading migrations from source.
func NewMigrator(db *sqlx.DB, source fs.FS, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, source: source, logger: logger}
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     VARCHAR(255) PRIMARY KEY,
    title       VARCHAR(500),
    checksum    VARCHAR(64),
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Up applies every pending migration and returns the versions it ran.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if _, err := m.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := LoadMigrations(m.source)
	if err != nil {
		return nil, err
	}

	var applied []AppliedMigration
	if err := m.db.SelectContext(ctx, &applied, `SELECT version, COALESCE(title, '') AS title, COALESCE(checksum, '') AS checksum FROM schema_migrations ORDER BY version`); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	if err := VerifyChecksums(migrations, applied); err != nil {
		return nil, err
	}

	done := make(map[string]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	var ran []string
	for _, migration := range migrations {
		if _, ok := done[migration.Version]; ok {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", migration.Version, err)
		}
		m.logger.Info("applied migration", zap.String("version", migration.Version), zap.String("title", migration.Title))
		ran = append(ran, migration.Version)
	}
	return ran, nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				m.logger.Error("rollback migration", zap.Error(rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, migration.SQL); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, title, checksum) VALUES ($1, $2, $3)`,
		migration.Version, migration.Title, migration.Checksum); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// LoadMigrations reads NNNN_title.up.sql files from source, sorted by version.
func LoadMigrations(source fs.FS) ([]Migration, error) {
	names, err := fs.Glob(source, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		version, rest, ok := strings.Cut(strings.TrimSuffix(name, ".up.sql"), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: expected <version>_<title>.up.sql", name)
		}
		content, err := fs.ReadFile(source, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Title:    strings.ReplaceAll(rest, "_", " "),
			SQL:      string(content),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// VerifyChecksums fails when an already applied migration file has been edited.
func VerifyChecksums(migrations []Migration, applied []AppliedMigration) error {
	recorded := make(map[string]string, len(applied))
	for _, a := range applied {
		recorded[a.Version] = a.Checksum
	}

	var mismatches []string
	for _, migration := range migrations {
		sum, ok := recorded[migration.Version]
		if !ok || sum == "" {
			continue
		}
		if sum != migration.Checksum {
			mismatches = append(mismatches, fmt.Sprintf("%s (%s)", migration.Version, migration.Title))
		}
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("applied migrations were modified: %s; add a new migration instead", strings.Join(mismatches, ", "))
	}
	return nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
