package app

import (
	"context"
	"io"

	"github.com/datallboy/gotrack/internal/clock"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// SourceResolver turns tracks into playable sources.
type SourceResolver interface {
	ResolveBatch(ctx context.Context, tracks []*domain.Track, tier domain.Quality) ([]domain.Resolution, error)
	Resolve(ctx context.Context, track *domain.Track, tier domain.Quality) (domain.Resolution, error)
}

// Fetcher opens remote payloads. It lets the engine stream without
// importing the fetch package.
type Fetcher interface {
	// Probe checks that url serves content and returns its advertised length.
	Probe(ctx context.Context, url string) (int64, error)
	// Open returns the body and its advertised length (-1 when unknown).
	// Closing the body releases the connection slot.
	Open(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

type Processor interface {
	// Layout fills DestDir/FileStem when the manifest left them empty.
	Layout(track *domain.Track)
	// FindExisting returns a file in the track's destination directory whose
	// tags match its title and album.
	FindExisting(track *domain.Track) (string, bool)
	// Finalize moves a complete .part file to its final name.
	Finalize(partPath, finalPath string) error
}

type Remuxer interface {
	Rewrap(ctx context.Context, src, dst string) error
}

type Tagger interface {
	Tag(ctx context.Context, path string, meta domain.Metadata) error
}

// Registry is the crash-safety ledger of files being written.
type Registry interface {
	Register(path string)
	Unregister(path string)
	Active() []string
}

type Reporter interface {
	Report(ev domain.Event)
}

type Store interface {
	SaveBatch(b *domain.Batch) error
	SaveOutcome(batchID string, o domain.Outcome) error
	GetBatch(id string) (*domain.Batch, error)
	ListBatches(limit int) ([]*domain.Batch, error)
	ListOutcomes(batchID string, limit int) ([]domain.Outcome, error)
	GetActiveBatches() ([]*domain.Batch, error)
}

// Context holds the core environment and shared resources for gotrack.
type Context struct {
	Config *config.Config
	Logger *logger.Logger
	Clock  clock.Clock

	Resolver  SourceResolver
	Fetcher   Fetcher
	Processor Processor
	Remuxer   Remuxer
	Tagger    Tagger
	Registry  Registry
	Reporter  Reporter
	Store     Store
}

// NewContext initializes the base environment. Collaborators are attached by the caller.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config:   cfg,
		Logger:   log,
		Clock:    clock.Real{},
		Reporter: nopReporter{},
	}
}

type nopReporter struct{}

func (nopReporter) Report(domain.Event) {}
