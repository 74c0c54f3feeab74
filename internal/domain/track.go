package domain

import "path/filepath"

type TrackKind string

const (
	KindSong    TrackKind = "song"
	KindEpisode TrackKind = "episode"
)

// Protocol selects how a track's source is resolved and encrypted.
type Protocol string

const (
	// ProtocolGateway tracks resolve through bulk media tokens and use
	// the block cipher.
	ProtocolGateway Protocol = "gateway"
	// ProtocolStream tracks resolve one at a time and carry a
	// server-supplied key/nonce pair.
	ProtocolStream Protocol = "stream"
)

// Metadata is the record handed to the tagging stage once the file is complete.
type Metadata struct {
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	Artists     []string `json:"artists,omitempty"`
	Album       string   `json:"album"`
	AlbumArtist string   `json:"album_artist,omitempty"`
	TrackNumber int      `json:"track_number,omitempty"`
	DiscNumber  int      `json:"disc_number,omitempty"`
	Date        string   `json:"date,omitempty"`
	Genre       string   `json:"genre,omitempty"`
	ISRC        string   `json:"isrc,omitempty"`
	Lyrics      string   `json:"lyrics,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Cover       []byte   `json:"-"`
}

// Track is a single acquisition request. Quality, SourceURL and Encryption
// are rewritten by the negotiator once a tier resolves.
type Track struct {
	ID           string    `json:"id"`
	Kind         TrackKind `json:"kind"`
	Protocol     Protocol  `json:"protocol"`
	Token        string    `json:"token,omitempty"`
	MD5Origin    string    `json:"md5_origin,omitempty"`
	MediaVersion string    `json:"media_version,omitempty"`
	// DirectURL is set for sources that need no resolution call (episodes).
	DirectURL string `json:"url,omitempty"`

	Quality    Quality    `json:"quality"`
	Encryption Encryption `json:"-"`
	SourceURL  string     `json:"-"`

	// Sizes holds the advertised byte length per tier name. A missing entry
	// means unknown; a zero entry means the tier is not served.
	Sizes    map[string]int64 `json:"sizes,omitempty"`
	Duration int              `json:"duration,omitempty"`

	DestDir  string   `json:"dest_dir"`
	FileStem string   `json:"file_stem"`
	Meta     Metadata `json:"meta"`

	// Resolved carries batch results keyed by tier name. Entries are
	// consumed on first use so a retry always re-resolves.
	Resolved map[string]Resolution `json:"-"`
}

// Direct reports whether the track bypasses bulk token resolution.
func (t *Track) Direct() bool {
	return t.Kind == KindEpisode || t.Protocol == ProtocolStream || t.Token == ""
}

// SizeHint returns the advertised byte length for a tier and whether one exists.
func (t *Track) SizeHint(q Quality) (int64, bool) {
	if t.Sizes == nil {
		return 0, false
	}
	n, ok := t.Sizes[q.Name]
	return n, ok
}

func (t *Track) FinalPath() string {
	return filepath.Join(t.DestDir, t.FileStem+t.Quality.Extension)
}

func (t *Track) PartPath() string {
	return t.FinalPath() + ".part"
}

// Label is used in log lines and events.
func (t *Track) Label() string {
	if t.Meta.Artist != "" {
		return t.Meta.Artist + " - " + t.Meta.Title
	}
	if t.Meta.Title != "" {
		return t.Meta.Title
	}
	return t.ID
}

// TakeResolved pops a pre-resolved source for the tier, if the batch produced one.
func (t *Track) TakeResolved(q Quality) (Resolution, bool) {
	r, ok := t.Resolved[q.Name]
	if ok {
		delete(t.Resolved, q.Name)
	}
	return r, ok && r.URL != ""
}
