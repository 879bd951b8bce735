package catalog

import "database/sql"

// Stats summarizes catalog contents. No CLI command or daemon status
// report calls Store.Stats.
type Stats struct {
	Files              int
	Spans              int
	EnrichedSpans      int
	DegradedSpans      int
	EmbeddingsByProfile map[string]int
}

// Stats computes a snapshot of catalog row counts.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	st.EmbeddingsByProfile = map[string]int{}
	err := s.withRead("Stats", func(db *sql.DB) error {
		if err := db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&st.Files); err != nil {
			return err
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM spans`).Scan(&st.Spans); err != nil {
			return err
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM spans WHERE parse_degraded = 1`).Scan(&st.DegradedSpans); err != nil {
			return err
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM enrichments`).Scan(&st.EnrichedSpans); err != nil {
			return err
		}

		rows, err := db.Query(`SELECT profile_id, COUNT(*) FROM embeddings GROUP BY profile_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var profile string
			var count int
			if err := rows.Scan(&profile, &count); err != nil {
				return err
			}
			st.EmbeddingsByProfile[profile] = count
		}
		return rows.Err()
	})
	return st, err
}
