package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// dialect holds the column types that differ between the supported
// databases.
type dialect struct {
	autoID    string
	key       string // indexable text
	timestamp string
	columnSQL string // counts rows for (table, column)
}

var dialects = map[Family]dialect{
	FamilyPostgres: {
		autoID:    "BIGSERIAL PRIMARY KEY",
		key:       "TEXT",
		timestamp: "TIMESTAMPTZ",
		columnSQL: `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`,
	},
	FamilyMySQL: {
		autoID:    "BIGINT AUTO_INCREMENT PRIMARY KEY",
		key:       "VARCHAR(255)",
		timestamp: "TIMESTAMP",
		columnSQL: `SELECT COUNT(*) FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
	},
	FamilySQLite: {
		autoID:    "INTEGER PRIMARY KEY AUTOINCREMENT",
		key:       "TEXT",
		timestamp: "DATETIME",
		columnSQL: `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
	},
}

func (d dialect) tables() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + d.autoID + `,
			email ` + d.key + ` NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			user_type ` + d.key + ` NOT NULL DEFAULT 'job_seeker',
			location TEXT,
			phone TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at ` + d.timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id ` + d.autoID + `,
			employer_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			slug ` + d.key + ` NOT NULL UNIQUE,
			company TEXT NOT NULL,
			location TEXT NOT NULL,
			description TEXT NOT NULL,
			job_type ` + d.key + ` NOT NULL DEFAULT 'full-time',
			salary_min BIGINT,
			salary_max BIGINT,
			created_at ` + d.timestamp + ` NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (employer_id) REFERENCES users(id)
		)`,
	}
}

// addedColumn is a column introduced after the first schema shipped. It is
// added only when the table does not have it yet.
type addedColumn struct {
	table, column, definition string
}

var addedColumns = []addedColumn{
	{"users", "is_available_for_hire", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"jobs", "is_active", "BOOLEAN NOT NULL DEFAULT TRUE"},
	{"jobs", "requirements", "TEXT"},
}

// Migrate creates the tables and adds any missing columns. It is safe to
// run on every start and returns the columns it added as "table.column".
func Migrate(ctx context.Context, h *EngineHandle) ([]string, error) {
	d, ok := dialects[h.family]
	if !ok {
		return nil, fmt.Errorf("%w: no schema for %s", ErrUnsupportedScheme, h.family)
	}
	db := h.db

	for _, stmt := range d.tables() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}

	var added []string
	for _, col := range addedColumns {
		exists, err := columnExists(ctx, db, d, col.table, col.column)
		if err != nil {
			return added, err
		}
		if exists {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.column, col.definition)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("failed to add %s.%s: %w", col.table, col.column, err)
		}
		added = append(added, col.table+"."+col.column)
	}
	return added, nil
}

// Bootstrap is a ReadyHook that applies the schema to every new primary
// engine, so a primary that was down at boot still gets its tables once it
// comes back.
func Bootstrap(log zerolog.Logger) ReadyHook {
	return func(ctx context.Context, h *EngineHandle) error {
		added, err := Migrate(ctx, h)
		if err != nil {
			return err
		}
		for _, col := range added {
			log.Info().Str("column", col).Msg("schema column added")
		}
		return nil
	}
}

func columnExists(ctx context.Context, db *sqlx.DB, d dialect, table, column string) (bool, error) {
	var n int
	query := db.Rebind(strings.TrimSpace(d.columnSQL))
	if err := db.GetContext(ctx, &n, query, table, column); err != nil {
		return false, fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}
