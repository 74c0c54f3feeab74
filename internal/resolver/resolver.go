package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/infra/logger"
)

// BatchSize is the gateway's ceiling on tokens per bulk call.
const BatchSize = 25

// DegradedSourceCount is the source count that marks a bulk entry as
// incomplete. The gateway normally answers with a primary and a mirror; a
// lone source has been observed to precede failed downloads. This is a
// policy threshold, not a protocol rule.
const DegradedSourceCount = 1

// Cipher tags as the gateway reports them.
const (
	CipherNone  = "NONE"
	CipherBlock = "BF_CBC_STRIPE"
	CipherCTR   = "AES_CTR"
)

// BulkEntry is the gateway's answer for one token.
type BulkEntry struct {
	Sources []string
	Cipher  string
	Key     []byte
	Nonce   []byte
	Err     error
}

type BulkResolver interface {
	// ResolveTokens returns one entry per token, in token order. A whole-batch
	// entitlement refusal is reported as domain.ErrNoRights.
	ResolveTokens(ctx context.Context, tokens []string, tier domain.Quality) ([]BulkEntry, error)
}

type SingleResolver interface {
	ResolveTrack(ctx context.Context, track *domain.Track, tier domain.Quality) (domain.Resolution, error)
}

type Resolver struct {
	bulk   BulkResolver
	single SingleResolver
	log    *logger.Logger
}

func New(bulk BulkResolver, single SingleResolver, log *logger.Logger) *Resolver {
	return &Resolver{bulk: bulk, single: single, log: log}
}

// Resolve is the single-track path.
func (r *Resolver) Resolve(ctx context.Context, track *domain.Track, tier domain.Quality) (domain.Resolution, error) {
	return r.single.ResolveTrack(ctx, track, tier)
}

// ResolveBatch resolves every track at tier and returns results in input order.
// Per-entry failures are recorded on the Resolution; only a non-entitlement
// failure of a whole bulk call is returned as an error.
func (r *Resolver) ResolveBatch(ctx context.Context, tracks []*domain.Track, tier domain.Quality) ([]domain.Resolution, error) {
	out := make([]domain.Resolution, len(tracks))

	var bulkIdx []int
	for i, t := range tracks {
		if t.Direct() {
			out[i] = r.resolveOne(ctx, t, tier)
			continue
		}
		bulkIdx = append(bulkIdx, i)
	}

	for _, chunk := range lo.Chunk(bulkIdx, BatchSize) {
		if err := r.resolveChunk(ctx, tracks, chunk, tier, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Resolver) resolveChunk(ctx context.Context, tracks []*domain.Track, idx []int, tier domain.Quality, out []domain.Resolution) error {
	tokens := lo.Map(idx, func(i int, _ int) string { return tracks[i].Token })

	entries, err := r.bulk.ResolveTokens(ctx, tokens, tier)
	if err != nil {
		if !errors.Is(err, domain.ErrNoRights) {
			return fmt.Errorf("%w: bulk resolve: %w", domain.ErrResolutionTransient, err)
		}
		r.log.Warn("Bulk resolve refused for %d tokens (%v), resolving individually", len(idx), err)
		for _, i := range idx {
			out[i] = r.resolveOne(ctx, tracks[i], tier)
		}
		return nil
	}

	for pos, i := range idx {
		if pos >= len(entries) || !usable(entries[pos]) {
			r.log.Debug("Track %s: bulk entry unusable, resolving individually", tracks[i].ID)
			out[i] = r.resolveOne(ctx, tracks[i], tier)
			continue
		}

		e := entries[pos]
		enc, err := Encryption(tracks[i], e.Cipher, e.Key, e.Nonce)
		if err != nil {
			r.log.Debug("Track %s: %v, resolving individually", tracks[i].ID, err)
			out[i] = r.resolveOne(ctx, tracks[i], tier)
			continue
		}
		out[i] = domain.Resolution{URL: e.Sources[0], Encryption: enc}
	}
	return nil
}

func usable(e BulkEntry) bool {
	return e.Err == nil && len(e.Sources) > DegradedSourceCount
}

func (r *Resolver) resolveOne(ctx context.Context, t *domain.Track, tier domain.Quality) domain.Resolution {
	res, err := r.single.ResolveTrack(ctx, t, tier)
	if err != nil {
		r.log.Debug("Track %s: single resolve at %s failed: %v", t.ID, tier.Name, err)
		return domain.Resolution{Err: err}
	}
	return res
}

// Encryption maps a gateway cipher tag onto the descriptor the codec
// understands.
func Encryption(t *domain.Track, cipher string, key, nonce []byte) (domain.Encryption, error) {
	switch cipher {
	case CipherNone:
		return domain.Plaintext{}, nil
	case CipherBlock:
		return domain.BlockCipherCBC{Seed: t.ID}, nil
	case CipherCTR:
		if len(key) == 0 || len(nonce) == 0 {
			return nil, fmt.Errorf("%w: %s without key material", domain.ErrUnsupportedCipher, cipher)
		}
		return domain.StreamCipherCTR{Key: key, Nonce: nonce}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedCipher, cipher)
	}
}
