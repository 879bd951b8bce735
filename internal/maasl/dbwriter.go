package maasl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vmlinuzx/llmc-sub017/internal/catalog"
	"github.com/vmlinuzx/llmc-sub017/internal/engerr"
	"github.com/vmlinuzx/llmc-sub017/internal/logging"
)

// dbWriterKey is the single global CRIT_DB resource key: the spec scopes
// this class to the whole catalog DB, not per-table or per-row.
const dbWriterKey = "catalog:writer"

// DBWriter serializes every catalog write through one logical writer
// session at a time (spec §4.2/§4.10), short IMMEDIATE transactions only.
type DBWriter struct {
	locks *LockManager
	store *catalog.Store
}

// NewDBWriter builds a writer session coordinator over store.
func NewDBWriter(locks *LockManager, store *catalog.Store) *DBWriter {
	return &DBWriter{locks: locks, store: store}
}

// Write acquires the CRIT_DB lock, opens an IMMEDIATE transaction, runs
// fn, and commits. fn returning an error rolls back. Lock contention past
// budget surfaces as engerr.KindResourceBusy; a failed BEGIN/COMMIT
// surfaces as engerr.KindDbBusy.
func (w *DBWriter) Write(ctx context.Context, holderID string, fn func(*catalog.ImmediateTx) error) error {
	log := logging.Get(logging.CategoryDaemon)

	lease, err := w.locks.Acquire(ctx, ClassCritDB, dbWriterKey, holderID)
	if err != nil {
		return err
	}
	defer w.locks.Release(lease)

	start := time.Now()
	tx, err := w.store.BeginImmediate(ctx)
	if err != nil {
		return engerr.DbBusy("DBWriter.Write", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if !w.locks.Valid(lease) {
		_ = tx.Rollback(ctx)
		return engerr.ResourceBusy("DBWriter.Write", dbWriterKey, holderID, time.Since(start).Milliseconds(), nil)
	}

	if err := tx.Commit(ctx); err != nil {
		return engerr.DbBusy("DBWriter.Write", err)
	}
	log.Debug("db writer session committed", zap.String("holder", holderID), zap.Duration("duration", time.Since(start)))
	return nil
}
