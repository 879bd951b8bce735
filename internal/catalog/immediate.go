package catalog

import (
	"context"
	"database/sql"
)

// ImmediateTx is a single pinned connection holding an open "BEGIN
// IMMEDIATE" transaction: IMMEDIATE acquires the write lock up front
// instead of on first write, so a writer fails fast on contention rather
// than deadlocking mid-transaction against another writer that started
// deferred.
type ImmediateTx struct {
	conn *sql.Conn
}

// BeginImmediate pins a connection and opens an IMMEDIATE transaction on
// it. Callers MUST call Commit or Rollback to release the connection back
// to the pool.
func (s *Store) BeginImmediate(ctx context.Context) (*ImmediateTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		conn.Close()
		return nil, err
	}
	return &ImmediateTx{conn: conn}, nil
}

// Exec runs a statement within the open transaction.
func (t *ImmediateTx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

// Query runs a query within the open transaction.
func (t *ImmediateTx) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

// Commit commits and releases the pinned connection.
func (t *ImmediateTx) Commit(ctx context.Context) error {
	defer t.conn.Close()
	_, err := t.conn.ExecContext(ctx, "COMMIT")
	return err
}

// Rollback rolls back and releases the pinned connection.
func (t *ImmediateTx) Rollback(ctx context.Context) error {
	defer t.conn.Close()
	_, err := t.conn.ExecContext(ctx, "ROLLBACK")
	return err
}
