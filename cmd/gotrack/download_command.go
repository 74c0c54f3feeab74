package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"github.com/datallboy/gotrack/internal/app"
	"github.com/datallboy/gotrack/internal/domain"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/manifest"
	"github.com/datallboy/gotrack/internal/platform"
	"github.com/datallboy/gotrack/internal/progress"
)

var errTracksFailed = errors.New("one or more tracks failed")

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var noCascade bool
	var events bool

	cmd := &cobra.Command{
		Use:   "download <manifest.json>",
		Short: "Download every track in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noCascade {
				ctx.viper.Set("download.allow_cascade", false)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer ctx.close()
			log := ctx.log

			m, err := manifest.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			tracks := m.Build()

			var reporter app.Reporter
			if events {
				reporter = progress.NewJSONReporter(os.Stderr)
			}

			opts := engine.OptionsFromConfig(cfg)
			if cfg.Download.Progress && cfg.Download.Concurrency == 1 && isatty.IsTerminal(os.Stdout.Fd()) {
				opts.Progress = progressBars
			}

			rt, err := newRuntime(cfg, log, reporter, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			// A termination signal removes partial files before exiting.
			stop := rt.guard.Listen(func(code int) {
				ctx.close()
				os.Exit(code)
			})
			defer stop()
			defer rt.guard.Release()

			if cfg.Remux.Enabled && hasStreamTracks(tracks) {
				for _, miss := range platform.CheckDependencies(map[string]string{"ffmpeg": cfg.Remux.FFmpegPath}) {
					log.Warn("%s not found: %s will fail", miss.Binary, miss.Feature)
				}
			}

			batch := &domain.Batch{
				ID:          ksuid.New().String(),
				Kind:        m.Kind,
				Name:        m.DisplayName(),
				Status:      domain.StatusDownloading,
				Tracks:      tracks,
				TotalTracks: len(tracks),
				CreatedAt:   time.Now(),
			}
			if err := rt.store.SaveBatch(batch); err != nil {
				log.Warn("could not record batch: %v", err)
			}

			log.Info("Starting %s %q: %d tracks", batch.Kind, batch.Name, len(tracks))

			outcomes, err := rt.runner.Run(cmd.Context(), batch)
			if err != nil {
				return err
			}

			failed := batch.Counts()[domain.OutcomeFailed]
			batch.Status = domain.StatusCompleted
			if failed > 0 {
				batch.Status = domain.StatusFailed
				batch.Error = fmt.Sprintf("%d of %d tracks failed", failed, batch.TotalTracks)
			}
			batch.FinishedAt = time.Now()
			if err := rt.store.SaveBatch(batch); err != nil {
				log.Warn("could not record batch: %v", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderOutcomes(outcomes))
			fmt.Fprintln(cmd.OutOrStdout(), summaryLine(batch))

			if failed > 0 {
				return errTracksFailed
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("quality", "", "Requested tier for gateway tracks (FLAC, MP3_320, MP3_128)")
	flags.String("stream-quality", "", "Requested tier for stream tracks (VERY_HIGH, HIGH, NORMAL)")
	flags.BoolVar(&noCascade, "no-cascade", false, "Fail instead of falling back to a lower tier")
	flags.Bool("real-time", false, "Pace downloads to the track duration")
	flags.Int("concurrency", 0, "Tracks downloaded in parallel")
	flags.String("out", "", "Output directory")
	flags.BoolVar(&events, "events", false, "Write JSON progress events to stderr")

	ctx.bind(flags, "download.quality", "quality")
	ctx.bind(flags, "download.stream_quality", "stream-quality")
	ctx.bind(flags, "download.real_time", "real-time")
	ctx.bind(flags, "download.concurrency", "concurrency")
	ctx.bind(flags, "download.out_dir", "out")

	return cmd
}

func progressBars(track *domain.Track, total int64) (io.Writer, func()) {
	bar := progressbar.DefaultBytes(total, track.Label())
	return bar, func() { _ = bar.Finish() }
}

func hasStreamTracks(tracks []*domain.Track) bool {
	for _, t := range tracks {
		if t.Protocol == domain.ProtocolStream {
			return true
		}
	}
	return false
}
