package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/helperd/internal/config"
	"github.com/nextlevelbuilder/helperd/internal/queue"
	"github.com/nextlevelbuilder/helperd/internal/store"
)

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the execution queue",
	}
	cmd.AddCommand(queueInspectCmd())
	cmd.AddCommand(queueGCCmd())
	return cmd
}

func withQueue(ctx context.Context, fn func(context.Context, *queue.ExecutionQueue) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("scheduling store: %w", err)
	}
	defer func(st store.Store) { st.Close() }(st)

	return fn(ctx, queue.New(st))
}

func queueInspectCmd() *cobra.Command {
	var horizon time.Duration
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List pending jobs inside the horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd.Context(), func(ctx context.Context, q *queue.ExecutionQueue) error {
				due, err := q.DueNow(ctx, time.Now().Add(horizon).Unix())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EXECUTION\tHELPER\tOWNER\tAT\tPRIORITY\tSTATUS")
				for _, rec := range due {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						rec.ExecutionID, rec.HelperID, rec.UserID,
						time.Unix(rec.ExecutionTime, 0).UTC().Format(time.RFC3339),
						rec.Priority, rec.Status)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Printf("%d job(s)\n", len(due))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&horizon, "horizon", 2*time.Hour, "how far ahead to list")
	return cmd
}

func queueGCCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete terminal job records older than the retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd.Context(), func(ctx context.Context, q *queue.ExecutionQueue) error {
				return q.GC(ctx, time.Now(), retention)
			})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 24*time.Hour, "terminal record retention")
	return cmd
}
