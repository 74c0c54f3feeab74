package progress

import (
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// JSONReporter writes one JSON object per event, newline separated.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w)}
}

func (r *JSONReporter) Report(ev domain.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(ev)
}

// LogReporter mirrors events into the log at debug level.
type LogReporter struct {
	Log *logger.Logger
}

func (r LogReporter) Report(ev domain.Event) {
	if ev.Error != "" {
		r.Log.Debug("event %s %s %q: %s", ev.Status, ev.Type, ev.Song, ev.Error)
		return
	}
	r.Log.Debug("event %s %s %q %s", ev.Status, ev.Type, ev.Song, ev.Reason)
}

type multi []app.Reporter

// Multi fans events out to every non-nil reporter.
func Multi(reporters ...app.Reporter) app.Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Report(ev domain.Event) {
	for _, r := range m {
		r.Report(ev)
	}
}

type withRun struct {
	next  app.Reporter
	runID string
}

// WithRun stamps every event with runID before forwarding it.
func WithRun(next app.Reporter, runID string) app.Reporter {
	return withRun{next: next, runID: runID}
}

func (w withRun) Report(ev domain.Event) {
	ev.RunID = w.runID
	w.next.Report(ev)
}
