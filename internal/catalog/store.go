// Package catalog implements C2: the embedded relational store with
// journaled concurrency that owns every File/Span/Enrichment/Embedding row
// and the migration ledger. Concurrency is enforced the way the teacher's
// LocalStore guards its *sql.DB (internal/store/local_graph.go): a single
// sync.RWMutex around the connection, writers taking the write lock,
// readers the read lock. The actual single-writer-across-process guarantee
// of spec §4.2/§5 is enforced one layer up, by internal/maasl's DB writer
// session; this package just never races with itself.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// Store is the catalog database handle.
type Store struct {
	mu sync.RWMutex
	db *sql.DB

	path string
}

// Open opens (creating if needed) the catalog database at path, enables
// WAL journaling and foreign keys, and runs any pending migrations.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryCatalog)

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog %s: %w", path, err)
	}

	log.Info("catalog opened", zap.String("path", path))
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the catalog's backing file path.
func (s *Store) Path() string { return s.path }

// withWrite runs fn holding the write lock, timing the call the way the
// teacher's timer idiom does (logging.StartTimer in the original).
func (s *Store) withWrite(op string, fn func(*sql.DB) error) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.db)
	logTiming(op, start, err)
	return err
}

func (s *Store) withRead(op string, fn func(*sql.DB) error) error {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := fn(s.db)
	logTiming(op, start, err)
	return err
}

func logTiming(op string, start time.Time, err error) {
	fields := []zap.Field{zap.Duration("duration", time.Since(start))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logging.Get(logging.CategoryCatalog).Debug(op+" complete", fields...)
}
