package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
)

// BatchRunner is what the queue hands each batch to.
type BatchRunner interface {
	Run(ctx context.Context, batch *domain.Batch) ([]domain.Outcome, error)
}

type QueueManager struct {
	mu         sync.RWMutex
	runner     BatchRunner
	queue      []*domain.Batch
	activeItem *domain.Batch
	store      app.Store
	reporter   app.Reporter

	newJobChan chan struct{}
}

// Initializes a QueueManager
// if loadExisting is true, unfinished batches are reloaded from the database
// if loadExisting is false, the database lookup is skipped (for CLI mode)
func NewQueueManager(ctx *app.Context, runner BatchRunner, loadExisting bool) *QueueManager {
	var active []*domain.Batch
	var err error

	if loadExisting {
		// Reloaded batches restart from their first track; anything already
		// on disk is skipped by the runner.
		active, err = ctx.Store.GetActiveBatches()
		if err != nil {
			active = make([]*domain.Batch, 0)
		}
	}

	return &QueueManager{
		runner:     runner,
		queue:      active,
		store:      ctx.Store,
		reporter:   ctx.Reporter,
		newJobChan: make(chan struct{}, 1),
	}
}

// Add registers a batch and notifies the processing loop
func (m *QueueManager) Add(kind domain.BatchKind, name string, tracks []*domain.Track) (*domain.Batch, error) {
	if len(tracks) == 0 {
		return nil, errors.New("batch has no tracks")
	}

	batch := &domain.Batch{
		ID:          ksuid.New().String(),
		Kind:        kind,
		Name:        name,
		Status:      domain.StatusPending,
		Tracks:      tracks,
		TotalTracks: len(tracks),
		CreatedAt:   time.Now(),
	}

	if err := m.store.SaveBatch(batch); err != nil {
		return nil, fmt.Errorf("failed to save batch to database: %w", err)
	}

	m.mu.Lock()
	m.queue = append(m.queue, batch)
	m.mu.Unlock()

	// Signal the Start() loop that there is work to do
	select {
	case m.newJobChan <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}

	return batch, nil
}

func (m *QueueManager) Start(ctx context.Context) {
	for {
		var next *domain.Batch

		m.mu.RLock()
		for _, itm := range m.queue {
			if itm.Status == domain.StatusPending || itm.Status == domain.StatusDownloading {
				next = itm
				break
			}
		}
		m.mu.RUnlock()

		if next == nil {
			select {
			case <-m.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		m.mu.Lock()
		if next.IsFinished() {
			// Cancelled while waiting
			m.mu.Unlock()
			continue
		}
		m.activeItem = next
		jobCtx, cancel := context.WithCancel(ctx)
		next.CancelFunc = cancel
		m.mu.Unlock()

		var jobErr error
		if len(next.Tracks) == 0 {
			jobErr = errors.New("batch has no tracks to resume")
		} else {
			m.updateStatus(next, domain.StatusDownloading)
			_, jobErr = m.runner.Run(jobCtx, next)
		}

		m.finalizeJob(next, jobErr, isCancelled(jobCtx))
		cancel()

		if ctx.Err() != nil {
			return
		}
	}
}

// GetActiveItem allows the UI to see what's currently running
func (m *QueueManager) GetActiveItem() *domain.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeItem
}

// GetItem searches the queue for a specific ID.
// Returns the batch and 'true' if found, nil and 'false' otherwise.
func (m *QueueManager) GetItem(id string) (*domain.Batch, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, item := range m.queue {
		if item.ID == id {
			return item, true
		}
	}

	// Get from DB as a fallback
	item, err := m.store.GetBatch(id)
	if err == nil && item != nil {
		return item, true
	}

	return nil, false
}

// GetAllItems returns a copy of the current queue slice.
func (m *QueueManager) GetAllItems() []*domain.Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]*domain.Batch, len(m.queue))
	copy(items, m.queue)
	return items
}

func (m *QueueManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.queue {
		if item.ID == id {
			if item.IsFinished() {
				return false
			}

			if item.CancelFunc != nil {
				item.CancelFunc()
			} else {
				// Not started yet
				item.Status = domain.StatusCancelled
				item.FinishedAt = time.Now()
				_ = m.store.SaveBatch(item)
				m.removeFromLiveQueue(item.ID)
			}

			return true
		}
	}
	return false
}

// updateStatus changes the status and saves to DB immediately
func (m *QueueManager) updateStatus(item *domain.Batch, status domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.Status = status
	_ = m.store.SaveBatch(item)
}

func (m *QueueManager) finalizeJob(item *domain.Batch, err error, cancelled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := item.Counts()
	switch {
	case cancelled || errors.Is(err, context.Canceled):
		item.Status = domain.StatusCancelled
		item.Error = "Cancelled by user"
	case err != nil:
		item.Status = domain.StatusFailed
		item.Error = err.Error()
	case counts[domain.OutcomeFailed] > 0:
		item.Status = domain.StatusFailed
		item.Error = fmt.Sprintf("%d of %d tracks failed", counts[domain.OutcomeFailed], item.TotalTracks)
	default:
		item.Status = domain.StatusCompleted
	}
	item.FinishedAt = time.Now()
	item.CancelFunc = nil

	// Persist the final outcome
	_ = m.store.SaveBatch(item)

	m.reporter.Report(domain.Event{
		Time:    item.FinishedAt,
		RunID:   item.ID,
		Status:  domain.EventProgress,
		Type:    string(item.Kind),
		Album:   item.Name,
		Reason:  string(item.Status),
		Error:   item.Error,
		Current: counts[domain.OutcomeDone] + counts[domain.OutcomeSkipped],
		Total:   item.TotalTracks,
	})

	m.activeItem = nil
	m.removeFromLiveQueue(item.ID)
}

// removeFromLiveQueue keeps the active slice small by removing finished items
func (m *QueueManager) removeFromLiveQueue(id string) {
	for i, itm := range m.queue {
		if itm.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			break
		}
	}
}

// isCancelled is a small utility to check context state
func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
