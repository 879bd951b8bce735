package catalog

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// PendingSpan is a span that has no enrichment row yet, together with the
// failure counts of the backends that failed it inside the cooldown
// window (spec §4.7).
type PendingSpan struct {
	Span          model.Span
	FailureCounts map[string]int // backend -> failure_count
}

// PendingEnrichments returns up to limit spans needing enrichment: those
// with no enrichments row at all, ordered by file path and start line.
// cooldown only sets the cutoff for FailureCounts: a backend whose last
// failure is older than cooldown is left out of the map. No span is
// skipped here; the enrichment pipeline decides per backend whether to
// skip a span.
func (s *Store) PendingEnrichments(limit int, cooldown time.Duration) ([]PendingSpan, error) {
	var out []PendingSpan
	err := s.withRead("PendingEnrichments", func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT s.span_hash, s.file_path, s.symbol, s.kind, s.start_line, s.end_line, s.text, s.imports, s.parse_degraded
			 FROM spans s
			 LEFT JOIN enrichments e ON e.span_hash = s.span_hash
			 WHERE e.span_hash IS NULL
			 ORDER BY s.file_path, s.start_line
			 LIMIT ?`,
			limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		cutoff := time.Now().Add(-cooldown).Unix()
		for rows.Next() {
			var sp model.Span
			var importsRaw, kind string
			var degraded int
			if err := rows.Scan(&sp.SpanHash, &sp.FilePath, &sp.Symbol, &kind, &sp.StartLine, &sp.EndLine, &sp.Text, &importsRaw, &degraded); err != nil {
				return err
			}
			sp.Kind = model.Kind(kind)
			sp.ParseDegraded = degraded != 0
			_ = json.Unmarshal([]byte(importsRaw), &sp.Imports)

			failures, err := failureCounts(db, sp.SpanHash, cutoff)
			if err != nil {
				return err
			}
			out = append(out, PendingSpan{Span: sp, FailureCounts: failures})
		}
		return rows.Err()
	})
	return out, err
}

// failureCounts returns backend -> failure_count for rows whose
// last_failed_at is still within the cooldown window (i.e. after cutoff).
// Backends whose cooldown has already elapsed are omitted, since they are
// eligible for retry again.
func failureCounts(db *sql.DB, spanHash string, cutoff int64) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT backend, failure_count FROM enrichment_failures WHERE span_hash = ? AND last_failed_at >= ?`,
		spanHash, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var backend string
		var count int
		if err := rows.Scan(&backend, &count); err != nil {
			return nil, err
		}
		out[backend] = count
	}
	return out, rows.Err()
}

// WriteEnrichment upserts an enrichment row for a span.
func (s *Store) WriteEnrichment(spanHash string, e model.Enrichment) error {
	return s.withWrite("WriteEnrichment", func(db *sql.DB) error {
		topics, _ := json.Marshal(e.KeyTopics)
		attempts, _ := json.Marshal(e.AttemptsLog)
		_, err := db.Exec(
			`INSERT INTO enrichments (span_hash, summary, key_topics, complexity, model, backend_host, tokens_per_second, attempts_log, quality, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(span_hash) DO UPDATE SET
				summary=excluded.summary,
				key_topics=excluded.key_topics,
				complexity=excluded.complexity,
				model=excluded.model,
				backend_host=excluded.backend_host,
				tokens_per_second=excluded.tokens_per_second,
				attempts_log=excluded.attempts_log,
				quality=excluded.quality,
				created_at=excluded.created_at`,
			spanHash, e.Summary, string(topics), string(e.Complexity), e.Model, e.BackendHost,
			e.TokensPerSecond, string(attempts), string(e.Quality), e.CreatedAt.Unix(),
		)
		return err
	})
}

// RecordEnrichmentFailure increments the failure counter for span_hash
// against backend and stamps last_failed_at now, so a subsequent
// PendingEnrichments sweep can apply the cooldown.
func (s *Store) RecordEnrichmentFailure(spanHash, backend string) error {
	return s.withWrite("RecordEnrichmentFailure", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO enrichment_failures (span_hash, backend, failure_count, last_failed_at)
			 VALUES (?, ?, 1, ?)
			 ON CONFLICT(span_hash, backend) DO UPDATE SET
				failure_count = failure_count + 1,
				last_failed_at = excluded.last_failed_at`,
			spanHash, backend, time.Now().Unix(),
		)
		return err
	})
}

// ClearEnrichmentFailures resets the failure counter for span_hash/backend
// after a successful attempt.
func (s *Store) ClearEnrichmentFailures(spanHash, backend string) error {
	return s.withWrite("ClearEnrichmentFailures", func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM enrichment_failures WHERE span_hash = ? AND backend = ?`, spanHash, backend)
		return err
	})
}

// FailureState reports a (span_hash, backend) pair's current failure
// count and recency, independent of any cooldown window, so a caller can
// apply its own cooldown and max_failures policy.
type FailureState struct {
	Count        int
	LastFailedAt time.Time
}

// FailureState returns the current failure count and last-failure time for
// span_hash/backend, or a zero FailureState if the pair has never failed.
func (s *Store) FailureState(spanHash, backend string) (FailureState, error) {
	var out FailureState
	var lastFailedAt int64
	err := s.withRead("FailureState", func(db *sql.DB) error {
		row := db.QueryRow(
			`SELECT failure_count, last_failed_at FROM enrichment_failures WHERE span_hash = ? AND backend = ?`,
			spanHash, backend,
		)
		switch err := row.Scan(&out.Count, &lastFailedAt); {
		case err == sql.ErrNoRows:
			return nil
		case err != nil:
			return err
		default:
			return nil
		}
	})
	if out.Count > 0 {
		out.LastFailedAt = time.Unix(lastFailedAt, 0).UTC()
	}
	return out, err
}

// GetEnrichment returns the enrichment row for a span, or ErrNotFound.
func (s *Store) GetEnrichment(spanHash string) (model.Enrichment, error) {
	var e model.Enrichment
	var topics, attempts string
	var complexity, quality string
	var createdAt int64
	err := s.withRead("GetEnrichment", func(db *sql.DB) error {
		row := db.QueryRow(
			`SELECT summary, key_topics, complexity, model, backend_host, tokens_per_second, attempts_log, quality, created_at
			 FROM enrichments WHERE span_hash = ?`,
			spanHash,
		)
		switch err := row.Scan(&e.Summary, &topics, &complexity, &e.Model, &e.BackendHost, &e.TokensPerSecond, &attempts, &quality, &createdAt); {
		case err == sql.ErrNoRows:
			return ErrNotFound
		case err != nil:
			return err
		default:
			return nil
		}
	})
	if err != nil {
		return model.Enrichment{}, err
	}
	e.SpanHash = spanHash
	e.Complexity = model.Complexity(complexity)
	e.Quality = model.Quality(quality)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	_ = json.Unmarshal([]byte(topics), &e.KeyTopics)
	_ = json.Unmarshal([]byte(attempts), &e.AttemptsLog)
	return e, nil
}
