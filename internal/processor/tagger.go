package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// SidecarTagger hands metadata to external tag writers as a JSON file next
// to the audio file: "01 - Song.flac" gets "01 - Song.tags.json".
type SidecarTagger struct {
	log *logger.Logger
}

func NewSidecarTagger(log *logger.Logger) *SidecarTagger {
	return &SidecarTagger{log: log}
}

func (s *SidecarTagger) Tag(ctx context.Context, path string, meta domain.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + ".tags.json"
	if err := os.WriteFile(sidecar, data, 0644); err != nil {
		return err
	}
	s.log.Debug("Wrote tag sidecar %s", sidecar)
	return nil
}

// NopTagger is used when tag handoff is disabled.
type NopTagger struct{}

func (NopTagger) Tag(context.Context, string, domain.Metadata) error { return nil }
