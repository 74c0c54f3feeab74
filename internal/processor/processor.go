package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// audioExtensions are the files considered by the skip check.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".ogg":  {},
	".flac": {},
	".wav":  {},
	".m4a":  {},
	".opus": {},
}

type Processor struct {
	log    *logger.Logger
	outDir string
}

func New(log *logger.Logger, outDir string) *Processor {
	return &Processor{log: log, outDir: outDir}
}

// Layout fills in DestDir and FileStem when the manifest did not provide them:
// <out_dir>/<artist>/<album>/<NN> - <title>.
func (p *Processor) Layout(t *domain.Track) {
	if t.DestDir == "" {
		artist := t.Meta.AlbumArtist
		if artist == "" {
			artist = t.Meta.Artist
		}
		parts := []string{p.outDir}
		if artist != "" {
			parts = append(parts, sanitizeComponent(artist))
		}
		if t.Meta.Album != "" {
			parts = append(parts, sanitizeComponent(t.Meta.Album))
		}
		t.DestDir = filepath.Join(parts...)
	}

	if t.FileStem == "" {
		title := t.Meta.Title
		if title == "" {
			title = t.ID
		}
		stem := sanitizeComponent(title)
		if t.Meta.TrackNumber > 0 {
			stem = fmt.Sprintf("%02d - %s", t.Meta.TrackNumber, stem)
		}
		t.FileStem = stem
	}
}

// FindExisting scans the track's destination directory (not subdirectories)
// for an audio file whose title and album tags equal the track's, compared
// case-sensitively.
func (p *Processor) FindExisting(t *domain.Track) (string, bool) {
	if t.Meta.Title == "" || t.DestDir == "" {
		return "", false
	}

	entries, err := os.ReadDir(t.DestDir)
	if err != nil {
		return "", false
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := audioExtensions[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}

		path := filepath.Join(t.DestDir, e.Name())
		title, album, err := readTitleAlbum(path)
		if err != nil {
			p.log.Debug("[Skip] could not read tags of %s: %v", path, err)
			continue
		}

		if title == t.Meta.Title && album == t.Meta.Album {
			return path, true
		}
	}
	return "", false
}

func readTitleAlbum(path string) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", "", err
	}
	return m.Title(), m.Album(), nil
}

// Finalize renames a complete .part file to its final name.
func (p *Processor) Finalize(partPath, finalPath string) error {
	if err := moveFile(partPath, finalPath); err != nil {
		return fmt.Errorf("finalize %s: %w", filepath.Base(finalPath), err)
	}
	p.log.Debug("Finalized %s", finalPath)
	return nil
}
