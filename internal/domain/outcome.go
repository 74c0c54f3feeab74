package domain

type OutcomeStatus string

const (
	OutcomeDone    OutcomeStatus = "done"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome is the terminal result of one track.
type Outcome struct {
	TrackID  string        `json:"track_id"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album"`
	Status   OutcomeStatus `json:"status"`
	Path     string        `json:"path,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Kind     FailureKind   `json:"kind,omitempty"`
	Quality  string        `json:"quality,omitempty"`
	Attempts int           `json:"attempts"`
	Bytes    int64         `json:"bytes"`
	Err      error         `json:"-"`
}

func Done(t *Track, path string, bytes int64) Outcome {
	o := newOutcome(t, OutcomeDone)
	o.Path = path
	o.Bytes = bytes
	return o
}

func Skipped(t *Track, reason string) Outcome {
	o := newOutcome(t, OutcomeSkipped)
	o.Reason = reason
	return o
}

func Failed(t *Track, err error) Outcome {
	o := newOutcome(t, OutcomeFailed)
	o.Kind = KindOf(err)
	o.Err = err
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

func newOutcome(t *Track, s OutcomeStatus) Outcome {
	return Outcome{
		TrackID: t.ID,
		Title:   t.Meta.Title,
		Artist:  t.Meta.Artist,
		Album:   t.Meta.Album,
		Status:  s,
		Quality: t.Quality.Name,
	}
}
