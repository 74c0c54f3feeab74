package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// scriptedRunner fails every track whose ID is in fail and blocks on block.
type scriptedRunner struct {
	fail  map[string]bool
	block chan struct{}
}

func (r *scriptedRunner) Run(ctx context.Context, batch *domain.Batch) ([]domain.Outcome, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var out []domain.Outcome
	for _, t := range batch.Tracks {
		o := domain.Done(t, "/music/"+t.ID, 10)
		if r.fail[t.ID] {
			o = domain.Failed(t, domain.ErrTrackUnavailable)
		}
		batch.AddOutcome(o)
		out = append(out, o)
	}
	return out, nil
}

func newQueue(t *testing.T, runner BatchRunner) (*QueueManager, *memStore) {
	t.Helper()
	store := newMemStore()
	ctx := app.NewContext(config.Default(), logger.NewNop())
	ctx.Store = store
	return NewQueueManager(ctx, runner, false), store
}

func waitFinished(t *testing.T, m *QueueManager, id string) *domain.Batch {
	t.Helper()
	var b *domain.Batch
	require.Eventually(t, func() bool {
		item, ok := m.GetItem(id)
		if !ok {
			return false
		}
		m.mu.RLock()
		defer m.mu.RUnlock()
		b = item
		return item.IsFinished()
	}, 2*time.Second, 5*time.Millisecond)
	return b
}

func TestQueueRunsBatchesInOrder(t *testing.T) {
	m, store := newQueue(t, &scriptedRunner{fail: map[string]bool{"b2": true}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	first, err := m.Add(domain.BatchAlbum, "Discovery", []*domain.Track{songTrack("a1", "x"), songTrack("a2", "y")})
	require.NoError(t, err)
	second, err := m.Add(domain.BatchPlaylist, "Mix", []*domain.Track{songTrack("b1", "x"), songTrack("b2", "y")})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, waitFinished(t, m, first.ID).Status)

	b := waitFinished(t, m, second.ID)
	assert.Equal(t, domain.StatusFailed, b.Status)
	assert.Equal(t, "1 of 2 tracks failed", b.Error)

	assert.Contains(t, store.batches, first.ID)
	assert.Empty(t, m.GetAllItems())
}

func TestQueueRejectsEmptyBatch(t *testing.T) {
	m, _ := newQueue(t, &scriptedRunner{})
	_, err := m.Add(domain.BatchAlbum, "Empty", nil)
	assert.Error(t, err)
}

func TestQueueCancelRunningBatch(t *testing.T) {
	m, _ := newQueue(t, &scriptedRunner{block: make(chan struct{})})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	b, err := m.Add(domain.BatchTrack, "One", []*domain.Track{songTrack("c1", "x")})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.GetActiveItem() != nil }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Cancel(b.ID))

	done := waitFinished(t, m, b.ID)
	assert.Equal(t, domain.StatusCancelled, done.Status)
	assert.False(t, m.Cancel(b.ID))
}
