package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gotrack/internal/decoding"
	"github.com/datallboy/gotrack/internal/domain"
)

type memStore struct {
	mu       sync.Mutex
	outcomes map[string][]domain.Outcome
	batches  map[string]*domain.Batch
}

func newMemStore() *memStore {
	return &memStore{outcomes: map[string][]domain.Outcome{}, batches: map[string]*domain.Batch{}}
}

func (m *memStore) SaveBatch(b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = b
	return nil
}

func (m *memStore) SaveOutcome(batchID string, o domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[batchID] = append(m.outcomes[batchID], o)
	return nil
}

func (m *memStore) GetBatch(id string) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[id], nil
}

func (m *memStore) ListBatches(limit int) ([]*domain.Batch, error) { return nil, nil }

func (m *memStore) ListOutcomes(batchID string, limit int) ([]domain.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[batchID], nil
}

func (m *memStore) GetActiveBatches() ([]*domain.Batch, error) { return nil, nil }

func (h *harness) runner() *Runner {
	codec := decoding.New([]byte(testSecret), h.app.Config.BlockIV())
	return NewRunner(h.app, codec, h.budget, Options{AllowCascade: true})
}

func TestRunSkipsThenBulkResolves(t *testing.T) {
	h := newHarness(t, randomBytes(8*64))
	store := newMemStore()
	h.app.Store = store

	existing := songTrack("1", "One More Time")
	h.processor.existing[existing.ID] = filepath.Join(h.dir, "One More Time.flac")

	batch := &domain.Batch{
		ID:     "run-1",
		Tracks: []*domain.Track{songTrack("2", "Aerodynamic"), existing, songTrack("3", "Digital Love")},
	}

	outcomes, err := h.runner().Run(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "2", outcomes[0].TrackID)
	assert.Equal(t, domain.OutcomeDone, outcomes[0].Status)
	assert.Equal(t, domain.OutcomeSkipped, outcomes[1].Status)
	assert.Equal(t, domain.OutcomeDone, outcomes[2].Status)

	// Only the pending tracks went into the bulk call, and nothing was resolved singly.
	assert.Equal(t, [][]string{{"2", "3"}}, h.resolver.batches)
	assert.Zero(t, h.resolver.single)

	assert.Equal(t, map[domain.OutcomeStatus]int{domain.OutcomeDone: 2, domain.OutcomeSkipped: 1}, batch.Counts())
	assert.Equal(t, int64(2*8*64), batch.BytesWritten.Load())
	assert.Len(t, store.outcomes["run-1"], 3)

	for _, ev := range h.events.events {
		assert.Equal(t, "run-1", ev.RunID)
	}
}

func TestRunStopsStartingTracksWhenBudgetIsSpent(t *testing.T) {
	h := newHarness(t, randomBytes(64))
	h.budget = NewBudget(3, 3)
	h.fetcher.failOpens = 1000

	batch := &domain.Batch{
		ID:     "run-2",
		Tracks: []*domain.Track{songTrack("1", "a"), songTrack("2", "b"), songTrack("3", "c")},
	}

	outcomes, err := h.runner().Run(context.Background(), batch)
	require.NoError(t, err)

	for _, o := range outcomes {
		assert.Equal(t, domain.OutcomeFailed, o.Status)
		assert.Equal(t, domain.FailureRetryBudget, o.Kind)
	}
	assert.Equal(t, 3, outcomes[0].Attempts)
	assert.Zero(t, outcomes[1].Attempts)

	// The first track used the whole budget; the others never opened a stream.
	assert.Equal(t, 3, h.fetcher.opens)
	assert.Empty(t, h.files(t))
}

func TestRunRefusesLockedDirectory(t *testing.T) {
	h := newHarness(t, randomBytes(64))

	other := flock.New(filepath.Join(h.dir, LockName))
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer other.Unlock()

	_, err = h.runner().Run(context.Background(), &domain.Batch{ID: "x", Tracks: []*domain.Track{songTrack("1", "a")}})
	assert.ErrorContains(t, err, "another gotrack process")
}
