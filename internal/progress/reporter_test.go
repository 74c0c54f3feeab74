package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gotrack/internal/domain"
)

func TestJSONReporterWritesLines(t *testing.T) {
	var buf bytes.Buffer
	rep := Multi(WithRun(NewJSONReporter(&buf), "run1"), nil)

	rep.Report(domain.Event{Status: domain.EventDownloading, Type: "song", Song: "Aerodynamic"})
	rep.Report(domain.Event{Status: domain.EventFailed, Type: "song", Error: "track unavailable"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "failed", ev["status"])
	assert.Equal(t, "run1", ev["run_id"])
	assert.Equal(t, "track unavailable", ev["error"])
	assert.NotContains(t, lines[0], "retry_count")
}

func TestHubKeepsMostRecent(t *testing.T) {
	h := NewHub(3)
	for _, song := range []string{"a", "b", "c", "d"} {
		h.Report(domain.Event{Song: song, RunID: "r"})
	}
	h.Report(domain.Event{Song: "e", RunID: "other"})

	songs := func(evs []domain.Event) []string {
		var out []string
		for _, e := range evs {
			out = append(out, e.Song)
		}
		return out
	}

	assert.Equal(t, []string{"c", "d", "e"}, songs(h.Recent(0, "")))
	assert.Equal(t, []string{"c", "d"}, songs(h.Recent(0, "r")))
	assert.Equal(t, []string{"e"}, songs(h.Recent(1, "")))
}
