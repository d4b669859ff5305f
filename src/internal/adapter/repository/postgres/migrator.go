package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/api-sage/bank-ledger/src/internal/logger"
)

var (
	ErrNoMigrations     = errors.New("no migration files found")
	ErrMigrationChanged = errors.New("applied migration was modified")
)

type migration struct {
	version  string
	checksum string
	body     string
}

// RunMigrations applies every *.sql file in migrationsDir that is not yet
// recorded in schema_migrations, in lexical order, one transaction per file.
// Recorded versions are compared by sha256 first; an edited migration stops
// the run before anything new is applied.
func RunMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		return fmt.Errorf("migrations directory %q: %w", migrationsDir, ErrNoMigrations)
	}

	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		return err
	}

	recorded, err := recordedChecksums(ctx, db)
	if err != nil {
		return err
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		stored, ok := recorded[m.version]
		switch {
		case !ok:
			pending = append(pending, m)
		case stored == "":
			if err := backfillChecksum(ctx, db, m); err != nil {
				return err
			}
		case stored != m.checksum:
			return fmt.Errorf("migration %q: %w", m.version, ErrMigrationChanged)
		}
	}

	for _, m := range pending {
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
		logger.Info("migration applied", logger.Fields{
			"version":  m.version,
			"checksum": m.checksum[:12],
		})
	}

	logger.Info("migrations up to date", logger.Fields{
		"applied": len(pending),
		"skipped": len(migrations) - len(pending),
	})
	return nil
}

func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	checksum TEXT NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	// Tables created before checksums were tracked lack the column.
	const addChecksum = `ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	if _, err := db.ExecContext(ctx, addChecksum); err != nil {
		return fmt.Errorf("ensure schema_migrations checksum column: %w", err)
	}

	return nil
}

func loadMigrations(migrationsDir string) ([]migration, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %q: %w", migrationsDir, err)
	}

	out := make([]migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".sql") {
			continue
		}

		body, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{
			version:  entry.Name(),
			checksum: hex.EncodeToString(sum[:]),
			body:     string(body),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func recordedChecksums(ctx context.Context, db *sql.DB) (map[string]string, error) {
	const query = `SELECT version, checksum FROM schema_migrations`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	recorded := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		recorded[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	return recorded, nil
}

func backfillChecksum(ctx context.Context, db *sql.DB, m migration) error {
	const query = `UPDATE schema_migrations SET checksum = $2 WHERE version = $1 AND checksum = ''`

	if _, err := db.ExecContext(ctx, query, m.version, m.checksum); err != nil {
		return fmt.Errorf("record checksum for migration %q: %w", m.version, err)
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for migration %q: %w", m.version, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.body); err != nil {
		return fmt.Errorf("execute migration %q: %w", m.version, err)
	}

	const record = `INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`
	if _, err = tx.ExecContext(ctx, record, m.version, m.checksum); err != nil {
		return fmt.Errorf("record migration %q: %w", m.version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %q: %w", m.version, err)
	}
	return nil
}
