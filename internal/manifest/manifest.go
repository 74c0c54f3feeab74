package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/datallboy/gotrack/internal/domain"
)

var ErrEmptyManifest = errors.New("manifest contains no tracks")

// Manifest is the JSON description of one batch. The catalog lookup that
// produces it happens upstream.
type Manifest struct {
	Kind   domain.BatchKind `json:"kind"`
	Name   string           `json:"name"`
	Tracks []Entry          `json:"tracks"`
}

type Entry struct {
	ID           string           `json:"id"`
	Kind         domain.TrackKind `json:"kind"`
	Protocol     domain.Protocol  `json:"protocol"`
	Token        string           `json:"token"`
	MD5Origin    string           `json:"md5_origin"`
	MediaVersion string           `json:"media_version"`
	URL          string           `json:"url"`
	Sizes        map[string]int64 `json:"sizes"`
	Duration     int              `json:"duration"`
	DestDir      string           `json:"dest_dir"`
	FileStem     string           `json:"file_stem"`
	Meta         domain.Metadata  `json:"meta"`
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (p *Parser) ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f)
}

func (m *Manifest) validate() error {
	if len(m.Tracks) == 0 {
		return ErrEmptyManifest
	}

	if m.Kind == "" {
		m.Kind = domain.BatchTrack
		if len(m.Tracks) > 1 {
			m.Kind = domain.BatchPlaylist
		}
	}

	for i := range m.Tracks {
		e := &m.Tracks[i]
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("track %d: id is required", i+1)
		}

		if e.Kind == "" {
			e.Kind = domain.KindSong
		}
		if e.Kind != domain.KindSong && e.Kind != domain.KindEpisode {
			return fmt.Errorf("track %s: unknown kind %q", e.ID, e.Kind)
		}

		if e.Protocol == "" {
			e.Protocol = domain.ProtocolGateway
		}
		if e.Protocol != domain.ProtocolGateway && e.Protocol != domain.ProtocolStream {
			return fmt.Errorf("track %s: unknown protocol %q", e.ID, e.Protocol)
		}

		if e.Kind == domain.KindEpisode && e.URL == "" {
			return fmt.Errorf("track %s: episodes need a url", e.ID)
		}
	}
	return nil
}

// Build turns the manifest into a pending batch. Each call returns fresh
// tracks, since the pipeline mutates them.
func (m *Manifest) Build() []*domain.Track {
	tracks := make([]*domain.Track, len(m.Tracks))
	for i, e := range m.Tracks {
		tracks[i] = &domain.Track{
			ID:           e.ID,
			Kind:         e.Kind,
			Protocol:     e.Protocol,
			Token:        e.Token,
			MD5Origin:    e.MD5Origin,
			MediaVersion: e.MediaVersion,
			DirectURL:    e.URL,
			Sizes:        e.Sizes,
			Duration:     e.Duration,
			DestDir:      e.DestDir,
			FileStem:     e.FileStem,
			Meta:         e.Meta,
		}
	}
	return tracks
}

// DisplayName is the manifest name, or the first track's album when unnamed.
func (m *Manifest) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	if album := m.Tracks[0].Meta.Album; album != "" {
		return album
	}
	return m.Tracks[0].Meta.Title
}
