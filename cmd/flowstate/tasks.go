package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowstate-go/flowstate/flow/store"
)

func newTasksCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and operate on queued tasks",
	}
	cmd.AddCommand(newTasksListCommand(opts))
	cmd.AddCommand(newTasksWakeCommand(opts))
	cmd.AddCommand(newTasksRequeueStaleCommand(opts))
	return cmd
}

func newTasksListCommand(opts *rootOptions) *cobra.Command {
	var queueID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		Example: `  # Tasks on the configured queue
  flowstate tasks list

  # Tasks on every queue
  flowstate tasks list --queue ""`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if !cmd.Flags().Changed("queue") {
				queueID = cfg.Queue
			}
			tasks, err := st.Tasks().List(cmd.Context(), queueID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tDUE\tRETRIES\tQUEUE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					t.ID, t.Name, t.Status,
					store.FromEpoch(t.Timestamp).Format(time.RFC3339),
					t.RetryCount, t.QueueID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&queueID, "queue", "", "Filter by queue id (empty lists every queue)")
	return cmd
}

func newTasksWakeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "wake <task-id>",
		Short: "Return a suspended task to the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.Tasks().Wakeup(cmd.Context(), args[0]); err != nil {
				return err
			}
			slog.Info("task woken", "task_id", args[0])
			return nil
		},
	}
}

func newTasksRequeueStaleCommand(opts *rootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "requeue-stale",
		Short: "Reschedule tasks orphaned by crashed workers",
		Long: `Tasks claimed by a worker that died stay RUNNING forever. This command
flips RUNNING tasks whose ready-time is older than the threshold back to
SCHEDULED so a live worker picks them up.

A running worker can do this automatically; see the worker's StaleAfter
option.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			cutoff := store.Epoch(time.Now().Add(-olderThan))
			n, err := st.Tasks().RequeueStale(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			slog.Info("stale tasks requeued", "count", n, "older_than", olderThan.String())
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 5*time.Minute, "Age before a RUNNING task counts as stale")
	return cmd
}
