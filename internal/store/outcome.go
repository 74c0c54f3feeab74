package store

import (
	"time"

	"github.com/datallboy/gotrack/internal/domain"
)

func (s *PersistentStore) SaveOutcome(batchID string, out domain.Outcome) error {
	var d outcomeDBO
	d.FromDomain(batchID, out)

	_, err := s.db.Exec(`INSERT INTO outcomes
		(batch_id, track_id, title, artist, album, status, path, reason, kind, quality, attempts, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.BatchID, d.TrackID, d.Title, d.Artist, d.Album, d.Status,
		d.Path, d.Reason, d.Kind, d.Quality, d.Attempts, d.Bytes, time.Now().Unix(),
	)
	return err
}

// ListOutcomes returns the newest outcomes first. An empty batchID lists every batch.
func (s *PersistentStore) ListOutcomes(batchID string, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT batch_id, track_id, title, artist, album, status, path, reason, kind, quality, attempts, bytes
		FROM outcomes`
	args := []any{}
	if batchID != "" {
		query += " WHERE batch_id = ?"
		args = append(args, batchID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var d outcomeDBO
		if err := rows.Scan(&d.BatchID, &d.TrackID, &d.Title, &d.Artist, &d.Album, &d.Status,
			&d.Path, &d.Reason, &d.Kind, &d.Quality, &d.Attempts, &d.Bytes); err != nil {
			return nil, err
		}
		out = append(out, d.ToDomain())
	}
	return out, rows.Err()
}
