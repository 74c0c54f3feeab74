package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/datallboy/gotrack/internal/infra/config"
	"github.com/datallboy/gotrack/internal/platform"
	"github.com/datallboy/gotrack/internal/store"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check for optional external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := ctx.ensureConfig()
			if err != nil {
				fmt.Fprintf(out, "Using defaults: %v\n", err)
				cfg = config.Default()
			} else {
				defer ctx.close()
				reportHistory(out, cfg.Store.SQLitePath)
			}

			missing := platform.CheckDependencies(map[string]string{"ffmpeg": cfg.Remux.FFmpegPath})
			if len(missing) == 0 {
				fmt.Fprintln(out, "All optional tools found")
				return nil
			}

			rows := make([][]string, 0, len(missing))
			for _, m := range missing {
				rows = append(rows, []string{m.Binary, m.Feature})
			}
			fmt.Fprintln(out, renderTable([]string{"Missing", "Needed for"}, rows, nil))
			return nil
		},
	}
}

func reportHistory(out io.Writer, path string) {
	st, err := store.NewPersistentStore(path)
	if err != nil {
		fmt.Fprintf(out, "History database unusable: %v\n", err)
		return
	}
	defer st.Close()

	version, dirty, err := st.SchemaVersion()
	switch {
	case err != nil:
		fmt.Fprintf(out, "History database %s: %v\n", path, err)
	case dirty:
		fmt.Fprintf(out, "History database %s: schema version %d is dirty\n", path, version)
	default:
		fmt.Fprintf(out, "History database %s: schema version %d\n", path, version)
	}
}
