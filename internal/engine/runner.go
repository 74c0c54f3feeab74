package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/decoding"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/progress"
)

// LockName is created in the output directory for the duration of a run so
// two processes never write the same tree.
const LockName = ".gotrack.lock"

// Runner drives a batch of tracks through sessions that share one retry budget.
type Runner struct {
	app    *app.Context
	codec  *decoding.Codec
	budget *Budget
	opts   Options
}

func NewRunner(ctx *app.Context, codec *decoding.Codec, budget *Budget, opts Options) *Runner {
	return &Runner{app: ctx, codec: codec, budget: budget, opts: opts}
}

func (r *Runner) Budget() *Budget { return r.budget }

// Run returns one outcome per track in input order. Tracks already on disk
// are skipped before anything is resolved. Once the process-wide retry
// budget is spent, tracks that have not started fail without network calls.
func (r *Runner) Run(ctx context.Context, batch *domain.Batch) ([]domain.Outcome, error) {
	outDir := r.app.Config.Download.OutDir
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(outDir, LockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", outDir, err)
	}
	if !locked {
		return nil, fmt.Errorf("another gotrack process is writing to %s", outDir)
	}
	defer lock.Unlock()

	// Events from this run carry the batch ID.
	runCtx := *r.app
	runCtx.Reporter = progress.WithRun(r.app.Reporter, batch.ID)
	session := NewSession(&runCtx, r.codec, r.budget, r.opts)

	tracks := batch.Tracks
	outcomes := make([]domain.Outcome, len(tracks))
	record := func(i int, o domain.Outcome) {
		outcomes[i] = o
		batch.AddOutcome(o)
		batch.BytesWritten.Add(o.Bytes)
		if r.app.Store != nil {
			if err := r.app.Store.SaveOutcome(batch.ID, o); err != nil {
				r.app.Logger.Warn("could not persist outcome for %s: %v", o.TrackID, err)
			}
		}
	}

	var pending []int
	for i, t := range tracks {
		if o, skipped := session.Check(t); skipped {
			record(i, o)
			continue
		}
		pending = append(pending, i)
	}

	r.preResolve(ctx, tracks, pending)

	var g errgroup.Group
	g.SetLimit(max(r.app.Config.Download.Concurrency, 1))

	for _, i := range pending {
		t := tracks[i]
		g.Go(func() error {
			switch {
			case ctx.Err() != nil:
				record(i, domain.Failed(t, ctx.Err()))
			case r.budget.Exhausted():
				err := fmt.Errorf("%w: not started, %d failures counted process-wide",
					domain.ErrRetryBudgetExhausted, r.budget.Global())
				runCtx.Logger.Error("[FAIL] %s: %v", t.Label(), err)
				record(i, domain.Failed(t, err))
			default:
				record(i, session.Acquire(ctx, t))
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// preResolve resolves pending tracks in bulk, grouped by requested tier, and
// parks each usable source on its track. Anything missing is resolved again
// by the negotiator, so a failed batch only costs the round trip.
func (r *Runner) preResolve(ctx context.Context, tracks []*domain.Track, pending []int) {
	groups := make(map[string][]*domain.Track)
	tiers := make(map[string]domain.Quality)
	var order []string

	for _, i := range pending {
		t := tracks[i]
		if t.Direct() {
			continue
		}
		tier := RequestedQuality(r.app.Config, t)
		if size, ok := t.SizeHint(tier); ok && size == 0 {
			continue
		}
		if _, seen := groups[tier.Name]; !seen {
			order = append(order, tier.Name)
			tiers[tier.Name] = tier
		}
		groups[tier.Name] = append(groups[tier.Name], t)
	}

	for _, name := range order {
		group := groups[name]
		res, err := r.app.Resolver.ResolveBatch(ctx, group, tiers[name])
		if err != nil {
			r.app.Logger.Warn("bulk resolution of %d tracks at %s failed: %v", len(group), name, err)
			continue
		}

		for i, t := range group {
			if i >= len(res) || res[i].URL == "" || res[i].Err != nil {
				continue
			}
			if t.Resolved == nil {
				t.Resolved = make(map[string]domain.Resolution)
			}
			t.Resolved[name] = res[i]
		}
	}
}
