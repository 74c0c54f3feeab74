package controllers

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/datallboy/gotrack/internal/domain"
)

type BatchResponse struct {
	ID           string           `json:"id"`
	Kind         domain.BatchKind `json:"kind"`
	Name         string           `json:"name"`
	Status       domain.JobStatus `json:"status"`
	TotalTracks  int              `json:"total_tracks"`
	Done         int              `json:"done"`
	Skipped      int              `json:"skipped"`
	Failed       int              `json:"failed"`
	BytesWritten int64            `json:"bytes_written"`
	Size         string           `json:"size"`
	Error        string           `json:"error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`

	Outcomes []domain.Outcome `json:"outcomes,omitempty"`
}

func newBatchResponse(b *domain.Batch, outcomes []domain.Outcome) BatchResponse {
	resp := BatchResponse{
		ID:           b.ID,
		Kind:         b.Kind,
		Name:         b.Name,
		Status:       b.Status,
		TotalTracks:  b.TotalTracks,
		BytesWritten: b.BytesWritten.Load(),
		Size:         humanize.Bytes(uint64(b.BytesWritten.Load())),
		Error:        b.Error,
		CreatedAt:    b.CreatedAt,
		Outcomes:     outcomes,
	}
	if !b.FinishedAt.IsZero() {
		finished := b.FinishedAt
		resp.FinishedAt = &finished
	}

	for _, o := range outcomes {
		switch o.Status {
		case domain.OutcomeDone:
			resp.Done++
		case domain.OutcomeSkipped:
			resp.Skipped++
		case domain.OutcomeFailed:
			resp.Failed++
		}
	}
	return resp
}

type ActiveResponse struct {
	Batch   *BatchResponse `json:"batch,omitempty"`
	Writing []string       `json:"writing"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
