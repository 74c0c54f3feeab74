package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/datallboy/gotrack/internal/domain"
)

const batchColumns = "id, kind, name, status, total_tracks, bytes_written, tracks, error, created_at, finished_at"

func (s *PersistentStore) SaveBatch(batch *domain.Batch) error {
	tracks := batch.Tracks
	if tracks == nil {
		tracks = []*domain.Track{}
	}
	tracksJSON, err := json.Marshal(tracks)
	if err != nil {
		return fmt.Errorf("failed to encode tracks: %w", err)
	}

	var d batchDBO
	d.FromDomain(batch, string(tracksJSON))

	query := `INSERT OR REPLACE INTO batches (` + batchColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query,
		d.ID, d.Kind, d.Name, d.Status, d.TotalTracks, d.BytesWritten,
		d.Tracks, d.Error, d.CreatedAt, d.FinishedAt,
	)
	return err
}

func (s *PersistentStore) GetBatch(id string) (*domain.Batch, error) {
	row := s.db.QueryRow("SELECT "+batchColumns+" FROM batches WHERE id = ? LIMIT 1", id)

	batch, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return batch, err
}

// ListBatches returns the newest batches first.
func (s *PersistentStore) ListBatches(limit int) ([]*domain.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryBatches("SELECT "+batchColumns+" FROM batches ORDER BY created_at DESC, id DESC LIMIT ?", limit)
}

// GetActiveBatches returns unfinished batches oldest first, with their tracks,
// so the queue can pick them up again after a restart.
func (s *PersistentStore) GetActiveBatches() ([]*domain.Batch, error) {
	return s.queryBatches("SELECT "+batchColumns+" FROM batches WHERE status IN (?, ?) ORDER BY id ASC",
		domain.StatusPending, domain.StatusDownloading)
}

func (s *PersistentStore) queryBatches(query string, args ...any) ([]*domain.Batch, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []*domain.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*domain.Batch, error) {
	var d batchDBO
	err := row.Scan(&d.ID, &d.Kind, &d.Name, &d.Status, &d.TotalTracks, &d.BytesWritten,
		&d.Tracks, &d.Error, &d.CreatedAt, &d.FinishedAt)
	if err != nil {
		return nil, err
	}

	batch := d.ToDomain()
	// A corrupt track list leaves the batch without tracks; the queue fails it on pickup.
	_ = json.Unmarshal([]byte(d.Tracks), &batch.Tracks)
	return batch, nil
}
