package quality

import (
	"context"
	"errors"
	"fmt"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// Negotiator walks a track's quality ladder until a tier resolves and its
// source answers the existence probe.
type Negotiator struct {
	resolver app.SourceResolver
	fetcher  app.Fetcher
	reporter app.Reporter
	log      *logger.Logger
}

func NewNegotiator(ctx *app.Context) *Negotiator {
	return &Negotiator{
		resolver: ctx.Resolver,
		fetcher:  ctx.Fetcher,
		reporter: ctx.Reporter,
		log:      ctx.Logger,
	}
}

// Negotiate resolves track starting at requested. On success the track's
// Quality, SourceURL and Encryption are updated in place, which can move it
// to another container extension.
func (n *Negotiator) Negotiate(ctx context.Context, track *domain.Track, requested domain.Quality, allowCascade bool) (domain.Quality, error) {
	tiers := LadderFor(track).From(requested)
	if len(tiers) == 0 {
		return domain.Quality{}, fmt.Errorf("%w: %s is not offered for %s tracks",
			domain.ErrQualityUnavailable, requested.Name, track.Protocol)
	}

	for i, tier := range tiers {
		res, err := n.tryTier(ctx, track, tier)
		if err == nil {
			track.Quality = tier
			track.SourceURL = res.URL
			track.Encryption = res.Encryption
			return tier, nil
		}

		if ctx.Err() != nil {
			return domain.Quality{}, ctx.Err()
		}

		if domain.IsTransient(err) {
			return domain.Quality{}, err
		}

		if i == 0 && !allowCascade {
			return domain.Quality{}, fmt.Errorf("%w: %s (%v)", domain.ErrQualityUnavailable, tier.Name, err)
		}

		if i+1 < len(tiers) {
			next := tiers[i+1]
			n.log.Info("[Cascade] %s: %s unavailable (%v), trying %s", track.Label(), tier.Name, err, next.Name)

			ev := domain.TrackEvent(domain.EventCascade, track)
			ev.Quality = next.Name
			ev.Reason = fmt.Sprintf("%s unavailable", tier.Name)
			n.reporter.Report(ev)
		}
	}

	return domain.Quality{}, fmt.Errorf("%w: no tier from %s down to %s",
		domain.ErrTrackUnavailable, requested.Name, tiers.Terminal().Name)
}

func (n *Negotiator) tryTier(ctx context.Context, track *domain.Track, tier domain.Quality) (domain.Resolution, error) {
	// An advertised zero length means the tier is not served; skip the network entirely.
	if size, ok := track.SizeHint(tier); ok && size == 0 {
		return domain.Resolution{}, fmt.Errorf("%w: zero length advertised", domain.ErrSourceNotFound)
	}

	res, ok := track.TakeResolved(tier)
	if !ok {
		var err error
		res, err = n.resolver.Resolve(ctx, track, tier)
		if err != nil {
			return domain.Resolution{}, err
		}
	}

	size, err := n.fetcher.Probe(ctx, res.URL)
	if err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			return domain.Resolution{}, err
		}
		return domain.Resolution{}, fmt.Errorf("%w: probe: %w", domain.ErrResolutionTransient, err)
	}

	if size == 0 {
		return domain.Resolution{}, fmt.Errorf("%w: empty payload", domain.ErrSourceNotFound)
	}

	if res.Encryption == nil {
		res.Encryption = domain.Plaintext{}
	}
	return res, nil
}
