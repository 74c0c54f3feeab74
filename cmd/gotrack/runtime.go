package main

import (
	"fmt"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/cache"
	"github.com/datallboy/gotrack/internal/crashguard"
	"github.com/datallboy/gotrack/internal/decoding"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/fetch"
	"github.com/datallboy/gotrack/internal/gateway"
	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/infra/logger"
	"github.com/datallboy/gotrack/internal/processor"
	"github.com/datallboy/gotrack/internal/progress"
	"github.com/datallboy/gotrack/internal/remux"
	"github.com/datallboy/gotrack/internal/resolver"
	"github.com/datallboy/gotrack/internal/store"
	"github.com/datallboy/gotrack/internal/throttle"
)

// runtime is everything a download needs, wired from configuration.
type runtime struct {
	app    *app.Context
	guard  *crashguard.Guard
	store  *store.PersistentStore
	runner *engine.Runner
}

func newRuntime(cfg *config.Config, log *logger.Logger, reporter app.Reporter, opts engine.Options) (*runtime, error) {
	st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	a := app.NewContext(cfg, log)
	a.Store = st
	a.Reporter = progress.Multi(progress.LogReporter{Log: log}, reporter)

	fetcher := fetch.NewManager(cfg.Gateway.MaxConnections, cfg.Gateway.Timeout,
		throttle.NewLimiter(cfg.Download.SpeedLimit), log)
	a.Fetcher = fetcher

	gw := gateway.New(cfg.Gateway.BaseURL, cfg.Gateway.LicenseToken, cfg.Gateway.Timeout)
	a.Resolver = resolver.New(gw, gw, log)
	a.Processor = processor.New(log, cfg.Download.OutDir)

	if cfg.Remux.Enabled {
		ff, err := remux.NewFFmpeg(cfg.Remux.FFmpegPath)
		if err != nil {
			a.Remuxer = remux.Unavailable{Reason: err}
		} else {
			a.Remuxer = ff
		}
	}

	if cfg.Download.TagSidecar {
		a.Tagger = processor.NewSidecarTagger(log)
	} else {
		a.Tagger = processor.NopTagger{}
	}

	guard := crashguard.New(log)
	a.Registry = guard

	opts.Covers = cache.NewCovers(cfg.Cache.CoverDir, fetcher)

	codec := decoding.New([]byte(cfg.Codec.BlockSecret), cfg.BlockIV())
	budget := engine.NewBudget(cfg.Retry.LocalMax, cfg.Retry.GlobalMax)

	return &runtime{
		app:    a,
		guard:  guard,
		store:  st,
		runner: engine.NewRunner(a, codec, budget, opts),
	}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}
