package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// ReplaceSpans transactionally replaces file_path's span set: unchanged
// span_hashes survive (so their enrichments/embeddings carry forward),
// spans no longer present are deleted (cascading their enrichments and
// embeddings), and new spans are inserted. Per spec §4.2, the whole
// operation is one short transaction.
func (s *Store) ReplaceSpans(filePath string, spans []model.Span) error {
	return s.withWrite("ReplaceSpans", func(db *sql.DB) error {
		return execTx(db, func(tx *sql.Tx) error {
			existing, err := existingSpanHashes(tx, filePath)
			if err != nil {
				return fmt.Errorf("load existing spans: %w", err)
			}

			wanted := make(map[string]model.Span, len(spans))
			for _, sp := range spans {
				wanted[sp.SpanHash] = sp
			}

			for hash := range existing {
				if _, keep := wanted[hash]; !keep {
					if _, err := tx.Exec(`DELETE FROM spans WHERE span_hash = ?`, hash); err != nil {
						return fmt.Errorf("delete stale span %s: %w", hash, err)
					}
				}
			}

			for hash, sp := range wanted {
				if existing[hash] {
					// Unchanged span_hash: row (and its enrichment/embedding
					// rows) already present, nothing to do except keep its
					// line range and text current in case the same body
					// recurred at a different offset with trailing
					// whitespace differences normalized away.
					if _, err := tx.Exec(
						`UPDATE spans SET start_line=?, end_line=?, text=?, imports=?, parse_degraded=? WHERE span_hash=?`,
						sp.StartLine, sp.EndLine, sp.Text, importsJSON(sp.Imports), boolToInt(sp.ParseDegraded), hash,
					); err != nil {
						return fmt.Errorf("refresh span %s: %w", hash, err)
					}
					continue
				}
				ownedElsewhere, err := spanExists(tx, hash)
				if err != nil {
					return fmt.Errorf("check span %s: %w", hash, err)
				}
				if ownedElsewhere {
					// Same content hashed under a different file_path — a
					// rename or move with the body unchanged. span_hash is
					// the global primary key, so re-parent the existing row
					// instead of inserting a duplicate; this keeps its
					// enrichment and embeddings attached across the move.
					if _, err := tx.Exec(
						`UPDATE spans SET file_path=?, symbol=?, kind=?, start_line=?, end_line=?, text=?, imports=?, parse_degraded=? WHERE span_hash=?`,
						filePath, sp.Symbol, string(sp.Kind), sp.StartLine, sp.EndLine, sp.Text,
						importsJSON(sp.Imports), boolToInt(sp.ParseDegraded), hash,
					); err != nil {
						return fmt.Errorf("move span %s to %s: %w", hash, filePath, err)
					}
					continue
				}
				if _, err := tx.Exec(
					`INSERT INTO spans (span_hash, file_path, symbol, kind, start_line, end_line, text, imports, parse_degraded)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					hash, filePath, sp.Symbol, string(sp.Kind), sp.StartLine, sp.EndLine, sp.Text,
					importsJSON(sp.Imports), boolToInt(sp.ParseDegraded),
				); err != nil {
					return fmt.Errorf("insert span %s: %w", hash, err)
				}
			}
			return nil
		})
	})
}

func spanExists(tx *sql.Tx, spanHash string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM spans WHERE span_hash = ? LIMIT 1`, spanHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func existingSpanHashes(tx *sql.Tx, filePath string) (map[string]bool, error) {
	rows, err := tx.Query(`SELECT span_hash FROM spans WHERE file_path = ?`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = true
	}
	return out, rows.Err()
}

// GetSpan returns a span by hash.
func (s *Store) GetSpan(spanHash string) (model.Span, error) {
	var sp model.Span
	var importsRaw string
	var kind string
	var degraded int
	err := s.withRead("GetSpan", func(db *sql.DB) error {
		row := db.QueryRow(
			`SELECT span_hash, file_path, symbol, kind, start_line, end_line, text, imports, parse_degraded FROM spans WHERE span_hash = ?`,
			spanHash,
		)
		return row.Scan(&sp.SpanHash, &sp.FilePath, &sp.Symbol, &kind, &sp.StartLine, &sp.EndLine, &sp.Text, &importsRaw, &degraded)
	})
	if err != nil {
		return model.Span{}, err
	}
	sp.Kind = model.Kind(kind)
	sp.ParseDegraded = degraded != 0
	_ = json.Unmarshal([]byte(importsRaw), &sp.Imports)
	return sp, nil
}

// SpansForFile returns all spans currently stored for a file.
func (s *Store) SpansForFile(filePath string) ([]model.Span, error) {
	var out []model.Span
	err := s.withRead("SpansForFile", func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT span_hash, file_path, symbol, kind, start_line, end_line, text, imports, parse_degraded FROM spans WHERE file_path = ? ORDER BY start_line`,
			filePath,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
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
			out = append(out, sp)
		}
		return rows.Err()
	})
	return out, err
}

// AllSpanHashes returns every span_hash currently in the catalog, used to
// compute the graph artifact's span_link_hash (spec §3, §8 catalog-graph
// coherence).
func (s *Store) AllSpanHashes() ([]string, error) {
	var out []string
	err := s.withRead("AllSpanHashes", func(db *sql.DB) error {
		rows, err := db.Query(`SELECT span_hash FROM spans`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				return err
			}
			out = append(out, h)
		}
		return rows.Err()
	})
	return out, err
}

func importsJSON(imports []string) string {
	if imports == nil {
		return "[]"
	}
	b, err := json.Marshal(imports)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
