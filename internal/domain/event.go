package domain

import "time"

type EventStatus string

const (
	EventInitializing EventStatus = "initializing"
	EventSkipped      EventStatus = "skipped"
	EventResolving    EventStatus = "resolving"
	EventCascade      EventStatus = "cascade"
	EventDownloading  EventStatus = "downloading"
	EventRealTime     EventStatus = "real_time"
	EventRetrying     EventStatus = "retrying"
	EventFinalizing   EventStatus = "finalizing"
	EventDone         EventStatus = "done"
	EventFailed       EventStatus = "failed"
	EventProgress     EventStatus = "progress"
)

// Event is a structured progress report. Optional fields are omitted when zero.
type Event struct {
	Time        time.Time   `json:"time"`
	RunID       string      `json:"run_id,omitempty"`
	Status      EventStatus `json:"status"`
	Type        string      `json:"type"`
	TrackID     string      `json:"track_id,omitempty"`
	Song        string      `json:"song,omitempty"`
	Album       string      `json:"album,omitempty"`
	Artist      string      `json:"artist,omitempty"`
	Quality     string      `json:"quality,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	Error       string      `json:"error,omitempty"`
	RetryCount  int         `json:"retry_count,omitempty"`
	SecondsLeft int         `json:"seconds_left,omitempty"`
	Percentage  float64     `json:"percentage,omitempty"`
	Current     int         `json:"current,omitempty"`
	Total       int         `json:"total,omitempty"`
}

// TrackEvent fills the identifying fields from t.
func TrackEvent(status EventStatus, t *Track) Event {
	return Event{
		Status:  status,
		Type:    string(t.Kind),
		TrackID: t.ID,
		Song:    t.Meta.Title,
		Album:   t.Meta.Album,
		Artist:  t.Meta.Artist,
		Quality: t.Quality.Name,
	}
}
