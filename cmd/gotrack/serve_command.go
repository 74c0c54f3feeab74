package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"github.com/datallboy/gotrack/internal/api"
	"github.com/datallboy/gotrack/internal/engine"
	"github.com/datallboy/gotrack/internal/platform"
	"github.com/datallboy/gotrack/internal/progress"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download queue behind an HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer ctx.close()
			log := ctx.log

			if cfg.Remux.Enabled {
				for _, miss := range platform.CheckDependencies(map[string]string{"ffmpeg": cfg.Remux.FFmpegPath}) {
					log.Warn("%s not found: %s will fail", miss.Binary, miss.Feature)
				}
			}

			hub := progress.NewHub(512)
			rt, err := newRuntime(cfg, log, hub, engine.OptionsFromConfig(cfg))
			if err != nil {
				return err
			}
			defer rt.Close()

			// Cancelled sessions remove their own files; Release catches the rest.
			defer rt.guard.Release()

			runCtx, stop := rt.guard.NotifyContext(cmd.Context())
			defer stop()

			queue := engine.NewQueueManager(rt.app, rt.runner, true)
			queueDone := make(chan struct{})
			go func() {
				defer close(queueDone)
				queue.Start(runCtx)
			}()

			e := echo.New()
			api.RegisterRoutes(e, rt.app, queue, hub)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           e,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				log.Info("API listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				stop()
				<-queueDone
				return err
			case <-runCtx.Done():
			}

			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			<-queueDone
			return nil
		},
	}

	cmd.Flags().String("port", "", "HTTP listen port")
	ctx.bind(cmd.Flags(), "port", "port")

	return cmd
}
