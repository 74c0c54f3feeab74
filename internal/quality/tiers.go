package quality

import (
	"strings"

	"github.com/datallboy/gotrack/internal/domain"
)

// Ladder is a protocol's tiers, best first. The last entry is the terminal fallback.
type Ladder []domain.Quality

var (
	FLAC    = domain.Quality{Name: "FLAC", Code: 9, Format: "flac", Extension: ".flac"}
	MP3_320 = domain.Quality{Name: "MP3_320", Code: 3, Format: "mp3", Extension: ".mp3"}
	MP3_128 = domain.Quality{Name: "MP3_128", Code: 1, Format: "mp3", Extension: ".mp3"}

	VeryHigh = domain.Quality{Name: "VERY_HIGH", Code: 320, Format: "ogg", Extension: ".ogg", Rewrap: true}
	High     = domain.Quality{Name: "HIGH", Code: 160, Format: "ogg", Extension: ".ogg", Rewrap: true}
	Normal   = domain.Quality{Name: "NORMAL", Code: 96, Format: "ogg", Extension: ".ogg", Rewrap: true}

	Episode = domain.Quality{Name: "EPISODE", Code: 0, Format: "mp3", Extension: ".mp3"}
)

var (
	GatewayLadder = Ladder{FLAC, MP3_320, MP3_128}
	StreamLadder  = Ladder{VeryHigh, High, Normal}
	EpisodeLadder = Ladder{Episode}
)

// LadderFor picks the ladder a track is negotiated on.
func LadderFor(t *domain.Track) Ladder {
	switch {
	case t.Kind == domain.KindEpisode:
		return EpisodeLadder
	case t.Protocol == domain.ProtocolStream:
		return StreamLadder
	default:
		return GatewayLadder
	}
}

// Lookup finds a tier by name, ignoring case.
func (l Ladder) Lookup(name string) (domain.Quality, bool) {
	for _, q := range l {
		if strings.EqualFold(q.Name, name) {
			return q, true
		}
	}
	return domain.Quality{}, false
}

// From returns the tiers from q down to the terminal one, or nil when q is not on the ladder.
func (l Ladder) From(q domain.Quality) Ladder {
	for i, t := range l {
		if t.Name == q.Name {
			return l[i:]
		}
	}
	return nil
}

// Terminal is the lowest tier.
func (l Ladder) Terminal() domain.Quality {
	return l[len(l)-1]
}

func (l Ladder) Names() []string {
	out := make([]string, len(l))
	for i, q := range l {
		out[i] = q.Name
	}
	return out
}

// Requested maps a configured tier name onto the track's ladder. A name that
// belongs to another protocol falls back to that ladder's best tier.
func Requested(t *domain.Track, name string) domain.Quality {
	l := LadderFor(t)
	if q, ok := l.Lookup(name); ok {
		return q
	}
	return l[0]
}
