package progress

import (
	"sync"
	"time"

	"github.com/datallboy/gotrack/internal/domain"
)

// Hub keeps the most recent events in memory for the status API.
type Hub struct {
	mu     sync.RWMutex
	events []domain.Event
	next   int
	full   bool
}

func NewHub(size int) *Hub {
	if size <= 0 {
		size = 256
	}
	return &Hub{events: make([]domain.Event, size)}
}

func (h *Hub) Report(ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.next] = ev
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to n events, oldest first. Pass runID to filter by run.
func (h *Hub) Recent(n int, runID string) []domain.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var ordered []domain.Event
	if h.full {
		ordered = append(ordered, h.events[h.next:]...)
	}
	ordered = append(ordered, h.events[:h.next]...)

	out := make([]domain.Event, 0, len(ordered))
	for _, ev := range ordered {
		if runID == "" || ev.RunID == runID {
			out = append(out, ev)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
