package catalog

import (
	"database/sql"
	"errors"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("catalog: not found")

// UpsertFile inserts or updates a file row, keyed by path.
func (s *Store) UpsertFile(f model.File) error {
	return s.withWrite("UpsertFile", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO files (path, language, content_hash, size, mtime)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET
				language=excluded.language,
				content_hash=excluded.content_hash,
				size=excluded.size,
				mtime=excluded.mtime`,
			f.Path, f.Language, f.ContentHash, f.Size, f.MTime.Unix(),
		)
		return err
	})
}

// GetFileHash returns the stored content_hash for path, or ErrNotFound.
func (s *Store) GetFileHash(path string) (string, error) {
	var hash string
	err := s.withRead("GetFileHash", func(db *sql.DB) error {
		row := db.QueryRow(`SELECT content_hash FROM files WHERE path = ?`, path)
		switch err := row.Scan(&hash); {
		case errors.Is(err, sql.ErrNoRows):
			return ErrNotFound
		case err != nil:
			return err
		default:
			return nil
		}
	})
	return hash, err
}

// DeleteFile removes a file and (via ON DELETE CASCADE) its spans,
// enrichments, and embeddings.
func (s *Store) DeleteFile(path string) error {
	return s.withWrite("DeleteFile", func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM files WHERE path = ?`, path)
		return err
	})
}

// AllFilePaths returns every tracked file path, used by the indexer to
// find files removed from disk since the last run.
func (s *Store) AllFilePaths() ([]string, error) {
	var out []string
	err := s.withRead("AllFilePaths", func(db *sql.DB) error {
		rows, err := db.Query(`SELECT path FROM files`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}
