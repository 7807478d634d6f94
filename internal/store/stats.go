package store

import (
	"context"
	"fmt"
)

// Stats summarizes the documents of one type.
type Stats struct {
	Documents int
	Orphans   int
	Assets    int
	// Channels maps channel slug to the number of documents claiming it.
	Channels map[string]int
}

// GetStats counts documents of docType, orphans among them, stored assets,
// and channel membership.
func (s *Store) GetStats(ctx context.Context, docType string) (*Stats, error) {
	st := &Stats{Channels: make(map[string]int)}

	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE type = ?`, docType).Scan(&st.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = s.conn.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM documents
	WHERE type = ? AND json_extract(body, '$.isOrphan') = 1
	`, docType).Scan(&st.Orphans)
	if err != nil {
		return nil, fmt.Errorf("failed to count orphans: %w", err)
	}

	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&st.Assets); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
	SELECT json_extract(c.value, '$.slug') AS slug, COUNT(*)
	FROM documents d, json_each(d.body, '$.channels') c
	WHERE d.type = ?
	GROUP BY slug
	ORDER BY slug
	`, docType)
	if err != nil {
		return nil, fmt.Errorf("failed to count channel membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var slug *string
		var n int
		if err := rows.Scan(&slug, &n); err != nil {
			return nil, fmt.Errorf("failed to scan channel count: %w", err)
		}
		if slug != nil {
			st.Channels[*slug] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel counts: %w", err)
	}

	return st, nil
}
