package processor

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// id3v23 builds a minimal ID3v2.3 tag with ISO-8859-1 text frames followed by fake audio.
func id3v23(frames map[string]string) []byte {
	var body bytes.Buffer
	for _, id := range []string{"TIT2", "TALB", "TPE1"} {
		text, ok := frames[id]
		if !ok {
			continue
		}
		data := append([]byte{0x00}, text...)
		body.WriteString(id)
		_ = binary.Write(&body, binary.BigEndian, uint32(len(data)))
		body.Write([]byte{0, 0})
		body.Write(data)
	}

	n := body.Len()
	size := []byte{byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}

	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{3, 0, 0})
	out.Write(size)
	out.Write(body.Bytes())
	out.Write(bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x00}, 64))
	return out.Bytes()
}

func track(dir string) *domain.Track {
	return &domain.Track{
		ID:      "1",
		DestDir: dir,
		Meta:    domain.Metadata{Title: "One More Time", Album: "Discovery", Artist: "Daft Punk"},
	}
}

func TestFindExistingMatchesTitleAndAlbum(t *testing.T) {
	dir := t.TempDir()
	p := New(logger.NewNop(), dir)
	tag := id3v23(map[string]string{"TIT2": "One More Time", "TALB": "Discovery", "TPE1": "Daft Punk"})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), tag, 0644))
	_, found := p.FindExisting(track(dir))
	assert.False(t, found, "non-audio extensions are ignored")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "01 - One More Time.MP3"), tag, 0644))
	path, found := p.FindExisting(track(dir))
	assert.True(t, found)
	assert.Equal(t, filepath.Join(dir, "01 - One More Time.MP3"), path)
}

func TestFindExistingIsCaseSensitiveAndShallow(t *testing.T) {
	dir := t.TempDir()
	p := New(logger.NewNop(), dir)

	lower := id3v23(map[string]string{"TIT2": "one more time", "TALB": "discovery"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3"), lower, 0644))

	sub := filepath.Join(dir, "CD1")
	require.NoError(t, os.Mkdir(sub, 0755))
	exact := id3v23(map[string]string{"TIT2": "One More Time", "TALB": "Discovery"})
	require.NoError(t, os.WriteFile(filepath.Join(sub, "b.mp3"), exact, 0644))

	_, found := p.FindExisting(track(dir))
	assert.False(t, found)
}

func TestFindExistingMissingDir(t *testing.T) {
	p := New(logger.NewNop(), "")
	_, found := p.FindExisting(track(filepath.Join(t.TempDir(), "absent")))
	assert.False(t, found)
}

func TestLayoutFallback(t *testing.T) {
	p := New(logger.NewNop(), "/music")
	tr := &domain.Track{ID: "7", Meta: domain.Metadata{
		Title:       "Digital Love?",
		Album:       "Discovery: Deluxe",
		Artist:      "Daft Punk",
		TrackNumber: 3,
	}}

	p.Layout(tr)
	assert.Equal(t, filepath.Join("/music", "Daft Punk", "Discovery_ Deluxe"), tr.DestDir)
	assert.Equal(t, "03 - Digital Love_", tr.FileStem)

	kept := &domain.Track{DestDir: "/custom", FileStem: "x"}
	p.Layout(kept)
	assert.Equal(t, "/custom", kept.DestDir)
	assert.Equal(t, "x", kept.FileStem)
}

func TestSanitizeComponent(t *testing.T) {
	assert.Equal(t, "AC_DC", sanitizeComponent("AC/DC"))
	assert.Equal(t, "_", sanitizeComponent("..."))
	assert.Equal(t, "Beyonc\u00e9", sanitizeComponent("Beyonce\u0301"))
	assert.Equal(t, "a b", sanitizeComponent("a   b "))
}

func TestFinalizeRenames(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "song.flac.part")
	final := filepath.Join(dir, "song.flac")
	require.NoError(t, os.WriteFile(part, []byte("audio"), 0644))

	require.NoError(t, New(logger.NewNop(), dir).Finalize(part, final))
	assert.NoFileExists(t, part)
	assert.FileExists(t, final)
}

func TestSidecarTagger(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "01 - Song.flac")

	err := NewSidecarTagger(logger.NewNop()).Tag(context.Background(), audio, domain.Metadata{Title: "Song", Album: "LP"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "01 - Song.tags.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Song"`)
}
