package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/decoding"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/quality"
	"github.com/datallboy/gotrack/internal/throttle"
)

const (
	copyBufferSize = 32 * 1024
	// Real-time mode writes in small slices so pacing stays smooth.
	realTimeChunkSize = 4096
)

// ProgressFactory builds a byte counter for one track. done is called once
// the stream ends, successfully or not.
type ProgressFactory func(track *domain.Track, total int64) (w io.Writer, done func())

// CoverSource fetches cover art by URL.
type CoverSource interface {
	Cover(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	AllowCascade bool
	RealTime     bool
	Progress     ProgressFactory
	Covers       CoverSource
}

// OptionsFromConfig copies the download switches out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AllowCascade: cfg.Download.AllowCascade,
		RealTime:     cfg.Download.RealTime,
	}
}

// Session acquires single tracks: negotiate, stream and decrypt, finalize.
// It is safe for concurrent use; all per-track state lives on the track.
type Session struct {
	app        *app.Context
	codec      *decoding.Codec
	budget     *Budget
	backoff    Backoff
	negotiator *quality.Negotiator
	opts       Options
}

func NewSession(ctx *app.Context, codec *decoding.Codec, budget *Budget, opts Options) *Session {
	return &Session{
		app:        ctx,
		codec:      codec,
		budget:     budget,
		backoff:    BackoffFromConfig(ctx.Config.Retry),
		negotiator: quality.NewNegotiator(ctx),
		opts:       opts,
	}
}

// RequestedQuality is the tier a track starts negotiating from.
func RequestedQuality(cfg *config.Config, t *domain.Track) domain.Quality {
	if t.Protocol == domain.ProtocolStream {
		return quality.Requested(t, cfg.Download.StreamQuality)
	}
	return quality.Requested(t, cfg.Download.Quality)
}

// Download skips tracks that already exist and acquires the rest.
func (s *Session) Download(ctx context.Context, track *domain.Track) domain.Outcome {
	if out, skipped := s.Check(track); skipped {
		return out
	}
	return s.Acquire(ctx, track)
}

// Check lays out the destination and looks for a finished copy on disk.
// It never touches the network.
func (s *Session) Check(track *domain.Track) (domain.Outcome, bool) {
	s.app.Processor.Layout(track)

	path, ok := s.app.Processor.FindExisting(track)
	if !ok {
		return domain.Outcome{}, false
	}

	s.app.Logger.Info("[Skip] %s already exists at %s", track.Label(), path)

	ev := domain.TrackEvent(domain.EventSkipped, track)
	ev.Reason = "already downloaded"
	s.app.Reporter.Report(ev)

	out := domain.Skipped(track, "already downloaded")
	out.Path = path
	return out, true
}

// Acquire negotiates, streams and finalizes a track, retrying transient
// failures within the shared budget. A failed track leaves no file behind.
func (s *Session) Acquire(ctx context.Context, track *domain.Track) domain.Outcome {
	requested := RequestedQuality(s.app.Config, track)
	s.app.Reporter.Report(domain.TrackEvent(domain.EventInitializing, track))

	var written int64
	attempts, err := Retry(ctx, s.budget, s.backoff, s.app.Clock,
		func(ctx context.Context) error {
			s.app.Reporter.Report(domain.TrackEvent(domain.EventResolving, track))

			if _, err := s.negotiator.Negotiate(ctx, track, requested, s.opts.AllowCascade); err != nil {
				return err
			}

			n, err := s.stream(ctx, track)
			written = n
			return err
		},
		func() { s.discard(track.PartPath()) },
		func(attempt int, delay time.Duration, err error) {
			s.app.Logger.Warn("[Retry] %s: Attempt %d/%d - Error: %v", track.Label(), attempt, s.budget.LocalMax, err)

			ev := domain.TrackEvent(domain.EventRetrying, track)
			ev.RetryCount = attempt
			ev.SecondsLeft = int(delay.Seconds())
			ev.Error = err.Error()
			s.app.Reporter.Report(ev)
		},
	)

	if err == nil {
		var path string
		path, err = s.finalize(ctx, track)
		if err == nil {
			s.app.Logger.Info("[Done] %s (%s, %d bytes)", track.Label(), track.Quality.Name, written)
			s.app.Reporter.Report(domain.TrackEvent(domain.EventDone, track))

			out := domain.Done(track, path, written)
			out.Attempts = attempts
			return out
		}
	}

	if ctx.Err() != nil && !errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ctx.Err(), err)
	}

	s.app.Logger.Error("[FAIL] %s: %v", track.Label(), err)

	ev := domain.TrackEvent(domain.EventFailed, track)
	ev.Error = err.Error()
	s.app.Reporter.Report(ev)

	out := domain.Failed(track, err)
	out.Attempts = attempts
	return out
}

// stream writes the decrypted payload to the track's .part file. On any
// error the .part file is removed before returning.
func (s *Session) stream(ctx context.Context, track *domain.Track) (int64, error) {
	if err := os.MkdirAll(track.DestDir, 0755); err != nil {
		return 0, fmt.Errorf("create %s: %w", track.DestDir, err)
	}

	body, size, err := s.app.Fetcher.Open(ctx, track.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: open source: %w", domain.ErrStreamTransient, err)
	}
	defer body.Close()

	if size <= 0 {
		if hint, ok := track.SizeHint(track.Quality); ok {
			size = hint
		}
	}

	plain, err := s.codec.NewReader(track.Encryption, body)
	if err != nil {
		return 0, err
	}

	part := track.PartPath()
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}
	s.app.Registry.Register(part)

	var dst io.Writer = f
	if s.opts.Progress != nil {
		bar, done := s.opts.Progress(track, size)
		defer done()
		dst = io.MultiWriter(f, bar)
	}

	s.app.Reporter.Report(domain.TrackEvent(domain.EventDownloading, track))

	n, err := s.copy(ctx, track, dst, plain, size)
	switch {
	case err != nil:
	case n == 0:
		err = fmt.Errorf("%w: empty payload", domain.ErrStreamTransient)
	case size > 0 && n < size:
		err = fmt.Errorf("%w: short read, got %d of %d bytes", domain.ErrStreamTransient, n, size)
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}

	if err != nil {
		s.discard(part)
		return n, err
	}
	return n, nil
}

// copy moves plaintext from src to dst. Read failures are transient; with
// real-time mode on, writes are paced to the track's duration.
func (s *Session) copy(ctx context.Context, track *domain.Track, dst io.Writer, src io.Reader, size int64) (int64, error) {
	var pace *throttle.Throttle
	bufSize := copyBufferSize
	if s.opts.RealTime {
		pace = throttle.New(size, time.Duration(track.Duration)*time.Second, s.app.Clock)
		bufSize = realTimeChunkSize
	}

	buf := make([]byte, bufSize)
	var written int64
	var lastReport time.Time

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("write %s: %w", track.PartPath(), werr)
			}

			if pace != nil {
				if err := pace.Pace(ctx, nw); err != nil {
					return written, err
				}
				if now := s.app.Clock.Now(); now.Sub(lastReport) >= time.Second {
					lastReport = now
					ev := domain.TrackEvent(domain.EventRealTime, track)
					ev.SecondsLeft = pace.SecondsLeft()
					ev.Percentage = pace.Percentage()
					s.app.Reporter.Report(ev)
				}
			}
		}

		if errors.Is(rerr, io.EOF) {
			return written, nil
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, fmt.Errorf("%w: read: %w", domain.ErrStreamTransient, rerr)
		}
	}
}

// finalize renames the .part file, re-wraps the container when the tier
// needs it, then hands the file to tagging.
func (s *Session) finalize(ctx context.Context, track *domain.Track) (string, error) {
	part, final := track.PartPath(), track.FinalPath()
	s.app.Reporter.Report(domain.TrackEvent(domain.EventFinalizing, track))

	// The raw file under the final name is not finished until it is re-wrapped.
	rewrap := track.Quality.Rewrap && s.app.Remuxer != nil
	if rewrap {
		s.app.Registry.Register(final)
	}

	if err := s.app.Processor.Finalize(part, final); err != nil {
		s.discard(part)
		s.app.Registry.Unregister(final)
		return "", fmt.Errorf("finalize %s: %w", final, err)
	}
	s.app.Registry.Unregister(part)

	if rewrap {
		if err := s.rewrap(ctx, final); err != nil {
			return "", err
		}
	}

	s.attachCover(ctx, track)

	if s.app.Tagger != nil {
		if err := s.app.Tagger.Tag(ctx, final, track.Meta); err != nil {
			s.app.Logger.Warn("[Tag] %s: %v", track.Label(), err)
		}
	}

	return final, nil
}

// rewrap copies the audio stream of path into a fresh container. One
// failure is retried after the initial backoff delay; a second one removes
// every trace of the track. path is registered by the caller.
func (s *Session) rewrap(ctx context.Context, path string) error {
	tmp := path + ".tmp"
	if err := os.Rename(path, tmp); err != nil {
		s.discard(path)
		return fmt.Errorf("%w: %w", domain.ErrContainerConversion, err)
	}
	s.app.Registry.Register(tmp)

	err := s.app.Remuxer.Rewrap(ctx, tmp, path)
	if err != nil && ctx.Err() == nil {
		s.app.Logger.Warn("[Remux] %s: %v, retrying once", path, err)
		if serr := s.app.Clock.Sleep(ctx, s.backoff.Initial); serr == nil {
			err = s.app.Remuxer.Rewrap(ctx, tmp, path)
		}
	}

	s.discard(tmp)
	if err != nil {
		s.discard(path)
		if !errors.Is(err, domain.ErrContainerConversion) {
			err = fmt.Errorf("%w: %w", domain.ErrContainerConversion, err)
		}
		return err
	}

	s.app.Registry.Unregister(path)
	return nil
}

func (s *Session) attachCover(ctx context.Context, track *domain.Track) {
	if s.opts.Covers == nil || track.Meta.CoverURL == "" || track.Meta.Cover != nil {
		return
	}
	data, err := s.opts.Covers.Cover(ctx, track.Meta.CoverURL)
	if err != nil {
		s.app.Logger.Warn("[Cover] %s: %v", track.Label(), err)
		return
	}
	track.Meta.Cover = data
}

// discard removes path and drops it from the crash registry.
func (s *Session) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.app.Logger.Error("could not remove %s: %v", path, err)
	}
	s.app.Registry.Unregister(path)
}
