package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentgen/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded build runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			db, history, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No builds recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tTARGET\tSTATE\tTASKS\tFILES\tSTARTED\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					r.ID, r.Target, r.State, r.TaskCount, len(r.Manifest),
					r.StartedAt.Local().Format(time.DateTime), runDuration(r))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "maximum number of runs to show")
	return cmd
}

func runDuration(r store.BuildRun) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
