package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/datallboy/gotrack/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var batchID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer ctx.close()

			st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()

			if batchID == "" {
				batches, err := st.ListBatches(limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						b.ID,
						string(b.Kind),
						b.Name,
						string(b.Status),
						strconv.Itoa(b.TotalTracks),
						b.CreatedAt.Format("2006-01-02 15:04"),
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No downloads recorded yet.")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Name", "Status", "Tracks", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			}

			outcomes, err := st.ListOutcomes(batchID, limit)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				return fmt.Errorf("no outcomes recorded for batch %s", batchID)
			}
			fmt.Fprintln(out, renderOutcomes(outcomes))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().StringVar(&batchID, "batch", "", "Show the tracks of one batch")
	return cmd
}
