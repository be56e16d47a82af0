package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/socialgraph/internal/app"
	"github.com/alem-hub/socialgraph/internal/infrastructure/scheduler/jobs"
)

func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recount denormalized counters and repair drift",
		Long: `Recount followers, following, likes, members and review aggregates from
the edge and review tables, and overwrite any stored value that differs.

With --dry-run the differences are only reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.setup(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			infra, err := app.Open(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer infra.Close()

			job := jobs.NewReconcileCountersJob(infra.Store, infra.Bus, log, jobs.ReconcileCountersConfig{DryRun: dryRun})
			stats, err := job.Reconcile(ctx)
			if stats != nil {
				if werr := writeStats(cmd.OutOrStdout(), opts.output, stats); werr != nil {
					return werr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without writing corrections")
	return cmd
}

func writeStats(w io.Writer, format string, stats *jobs.ReconcileStats) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	mode := "applied"
	if !stats.Applied {
		mode = "dry run"
	}
	fmt.Fprintf(w, "checked %d accounts and %d profiles in %s (%s)\n",
		stats.AccountsChecked, stats.ProfilesChecked, stats.Duration.Round(time.Millisecond), mode)
	if stats.Failures > 0 {
		fmt.Fprintf(w, "%d entities failed, see log\n", stats.Failures)
	}
	if len(stats.Corrections) == 0 {
		fmt.Fprintln(w, "no drift found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tID\tCOUNTER\tSTORED\tACTUAL")
	for _, c := range stats.Corrections {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%g\n", c.Family, c.ID, c.Counter, c.Stored, c.Actual)
	}
	return tw.Flush()
}
