package domain

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

type BatchKind string

const (
	BatchTrack    BatchKind = "track"
	BatchAlbum    BatchKind = "album"
	BatchPlaylist BatchKind = "playlist"
	BatchEpisode  BatchKind = "episode"
)

// Batch is a group of tracks submitted together (one album, playlist, ...).
type Batch struct {
	ID     string    `json:"id"`
	Kind   BatchKind `json:"kind"`
	Name   string    `json:"name"`
	Status JobStatus `json:"status"`

	Tracks []*Track `json:"-"`

	mu       sync.Mutex
	outcomes []Outcome

	BytesWritten atomic.Int64 `json:"-"`
	TotalTracks  int          `json:"total_tracks"`

	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`

	CancelFunc context.CancelFunc `json:"-"`
}

func (b *Batch) AddOutcome(o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = append(b.outcomes, o)
}

// Outcomes returns a copy of the outcomes recorded so far.
func (b *Batch) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Outcome, len(b.outcomes))
	copy(out, b.outcomes)
	return out
}

// Counts tallies outcomes by status.
func (b *Batch) Counts() map[OutcomeStatus]int {
	counts := make(map[OutcomeStatus]int, 3)
	for _, o := range b.Outcomes() {
		counts[o.Status]++
	}
	return counts
}

func (b *Batch) IsFinished() bool {
	return b.Status == StatusCompleted || b.Status == StatusFailed || b.Status == StatusCancelled
}
