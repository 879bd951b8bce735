package catalog

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the current target schema version. Migrations run in
// order until PRAGMA user_version reaches this value; if it is already at
// or above target, no ALTER runs (spec §4.2).
const SchemaVersion = 1

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS files (
				path TEXT PRIMARY KEY,
				language TEXT NOT NULL,
				content_hash TEXT NOT NULL,
				size INTEGER NOT NULL,
				mtime INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS spans (
				span_hash TEXT PRIMARY KEY,
				file_path TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
				symbol TEXT NOT NULL,
				kind TEXT NOT NULL,
				start_line INTEGER NOT NULL,
				end_line INTEGER NOT NULL,
				text TEXT NOT NULL,
				imports TEXT NOT NULL DEFAULT '[]',
				parse_degraded INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_spans_file ON spans(file_path)`,
			`CREATE TABLE IF NOT EXISTS enrichments (
				span_hash TEXT PRIMARY KEY REFERENCES spans(span_hash) ON DELETE CASCADE,
				summary TEXT NOT NULL,
				key_topics TEXT NOT NULL DEFAULT '[]',
				complexity TEXT NOT NULL,
				model TEXT NOT NULL,
				backend_host TEXT NOT NULL,
				tokens_per_second REAL NOT NULL DEFAULT 0,
				attempts_log TEXT NOT NULL DEFAULT '[]',
				quality TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS embeddings (
				span_hash TEXT NOT NULL REFERENCES spans(span_hash) ON DELETE CASCADE,
				profile_id TEXT NOT NULL,
				dim INTEGER NOT NULL,
				vector BLOB NOT NULL,
				model TEXT NOT NULL,
				PRIMARY KEY (span_hash, profile_id)
			)`,
			`CREATE TABLE IF NOT EXISTS enrichment_failures (
				span_hash TEXT NOT NULL,
				backend TEXT NOT NULL,
				failure_count INTEGER NOT NULL DEFAULT 0,
				last_failed_at INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (span_hash, backend)
			)`,
		},
	},
}

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current >= SchemaVersion {
		return nil
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.runMigration(m); err != nil {
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *Store) runMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return err
	}
	return tx.Commit()
}

// execTx is a small helper used by spans.go to run a multi-statement
// write in one transaction without a full migration wrapper.
func execTx(db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
