package catalog

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmlinuzx/llmc-sub017/internal/model"
)

// PendingEmbeddings returns up to limit spans with no embedding row for the
// given profile.
func (s *Store) PendingEmbeddings(profile string, limit int) ([]model.Span, error) {
	var out []model.Span
	err := s.withRead("PendingEmbeddings", func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT s.span_hash, s.file_path, s.symbol, s.kind, s.start_line, s.end_line, s.text
			 FROM spans s
			 LEFT JOIN embeddings e ON e.span_hash = s.span_hash AND e.profile_id = ?
			 WHERE e.span_hash IS NULL
			 ORDER BY s.file_path, s.start_line
			 LIMIT ?`,
			profile, limit,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sp model.Span
			var kind string
			if err := rows.Scan(&sp.SpanHash, &sp.FilePath, &sp.Symbol, &kind, &sp.StartLine, &sp.EndLine, &sp.Text); err != nil {
				return err
			}
			sp.Kind = model.Kind(kind)
			out = append(out, sp)
		}
		return rows.Err()
	})
	return out, err
}

// WriteEmbedding upserts a vector for span_hash under profile_id, packing
// the float32 vector as little-endian bytes (spec §3).
func (s *Store) WriteEmbedding(e model.Embedding) error {
	return s.withWrite("WriteEmbedding", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO embeddings (span_hash, profile_id, dim, vector, model)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(span_hash, profile_id) DO UPDATE SET
				dim=excluded.dim,
				vector=excluded.vector,
				model=excluded.model`,
			e.SpanHash, e.ProfileID, e.Dim, packVector(e.Vector), e.Model,
		)
		return err
	})
}

// GetEmbedding returns the vector for span_hash under profile_id.
func (s *Store) GetEmbedding(spanHash, profileID string) (model.Embedding, error) {
	var e model.Embedding
	var raw []byte
	err := s.withRead("GetEmbedding", func(db *sql.DB) error {
		row := db.QueryRow(
			`SELECT dim, vector, model FROM embeddings WHERE span_hash = ? AND profile_id = ?`,
			spanHash, profileID,
		)
		switch err := row.Scan(&e.Dim, &raw, &e.Model); {
		case err == sql.ErrNoRows:
			return ErrNotFound
		case err != nil:
			return err
		default:
			return nil
		}
	})
	if err != nil {
		return model.Embedding{}, err
	}
	e.SpanHash = spanHash
	e.ProfileID = profileID
	vec, err := unpackVector(raw, e.Dim)
	if err != nil {
		return model.Embedding{}, err
	}
	e.Vector = vec
	return e, nil
}

// AllEmbeddings returns every vector stored under profileID, for use by the
// in-process ANN fallback path (spec §4.6, dual driver strategy).
func (s *Store) AllEmbeddings(profileID string) ([]model.Embedding, error) {
	var out []model.Embedding
	err := s.withRead("AllEmbeddings", func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT span_hash, dim, vector, model FROM embeddings WHERE profile_id = ?`,
			profileID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e model.Embedding
			var raw []byte
			if err := rows.Scan(&e.SpanHash, &e.Dim, &raw, &e.Model); err != nil {
				return err
			}
			e.ProfileID = profileID
			vec, err := unpackVector(raw, e.Dim)
			if err != nil {
				return err
			}
			e.Vector = vec
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

func packVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func unpackVector(raw []byte, dim int) ([]float32, error) {
	if len(raw) != dim*4 {
		return nil, fmt.Errorf("embedding: byte length %d does not match dim %d", len(raw), dim)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
