package store

import (
	"database/sql"
	"time"

	"github.com/datallboy/gotrack/internal/domain"
)

// batchDBO maps to the batches table
type batchDBO struct {
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Name         string         `db:"name"`
	Status       string         `db:"status"`
	TotalTracks  int            `db:"total_tracks"`
	BytesWritten int64          `db:"bytes_written"`
	Tracks       string         `db:"tracks"`
	Error        sql.NullString `db:"error"`
	CreatedAt    int64          `db:"created_at"`
	FinishedAt   sql.NullInt64  `db:"finished_at"`
}

// Mapper: DBO to Domain Batch. Tracks are decoded separately.
func (b *batchDBO) ToDomain() *domain.Batch {
	batch := &domain.Batch{
		ID:          b.ID,
		Kind:        domain.BatchKind(b.Kind),
		Name:        b.Name,
		Status:      domain.JobStatus(b.Status),
		TotalTracks: b.TotalTracks,
		Error:       b.Error.String,
		CreatedAt:   time.Unix(b.CreatedAt, 0),
	}
	if b.FinishedAt.Valid {
		batch.FinishedAt = time.Unix(b.FinishedAt.Int64, 0)
	}
	batch.BytesWritten.Store(b.BytesWritten)
	return batch
}

// Mapper: Domain Batch to DBO
func (b *batchDBO) FromDomain(batch *domain.Batch, tracksJSON string) {
	b.ID = batch.ID
	b.Kind = string(batch.Kind)
	b.Name = batch.Name
	b.Status = string(batch.Status)
	b.TotalTracks = batch.TotalTracks
	b.BytesWritten = batch.BytesWritten.Load()
	b.Tracks = tracksJSON
	b.Error = sql.NullString{String: batch.Error, Valid: batch.Error != ""}

	created := batch.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	b.CreatedAt = created.Unix()

	b.FinishedAt = sql.NullInt64{}
	if !batch.FinishedAt.IsZero() {
		b.FinishedAt = sql.NullInt64{Int64: batch.FinishedAt.Unix(), Valid: true}
	}
}

// outcomeDBO maps to the outcomes table
type outcomeDBO struct {
	BatchID  string         `db:"batch_id"`
	TrackID  string         `db:"track_id"`
	Title    string         `db:"title"`
	Artist   string         `db:"artist"`
	Album    string         `db:"album"`
	Status   string         `db:"status"`
	Path     sql.NullString `db:"path"`
	Reason   sql.NullString `db:"reason"`
	Kind     sql.NullString `db:"kind"`
	Quality  sql.NullString `db:"quality"`
	Attempts int            `db:"attempts"`
	Bytes    int64          `db:"bytes"`
}

func (o *outcomeDBO) ToDomain() domain.Outcome {
	return domain.Outcome{
		TrackID:  o.TrackID,
		Title:    o.Title,
		Artist:   o.Artist,
		Album:    o.Album,
		Status:   domain.OutcomeStatus(o.Status),
		Path:     o.Path.String,
		Reason:   o.Reason.String,
		Kind:     domain.FailureKind(o.Kind.String),
		Quality:  o.Quality.String,
		Attempts: o.Attempts,
		Bytes:    o.Bytes,
	}
}

func (o *outcomeDBO) FromDomain(batchID string, out domain.Outcome) {
	o.BatchID = batchID
	o.TrackID = out.TrackID
	o.Title = out.Title
	o.Artist = out.Artist
	o.Album = out.Album
	o.Status = string(out.Status)
	o.Path = nullString(out.Path)
	o.Reason = nullString(out.Reason)
	o.Kind = nullString(string(out.Kind))
	o.Quality = nullString(out.Quality)
	o.Attempts = out.Attempts
	o.Bytes = out.Bytes
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
