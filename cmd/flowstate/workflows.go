package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowstate-go/flowstate/flow/store"
)

func newWorkflowsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Inspect workflow rows",
	}
	cmd.AddCommand(newWorkflowsListCommand(opts))
	return cmd
}

func newWorkflowsListCommand(opts *rootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Example: `  # All workflows
  flowstate workflows list

  # Only workflows a worker could resume
  flowstate workflows list --status STOPPED`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			workflows, err := st.Workflows().List(cmd.Context(), store.WorkflowStatus(strings.ToUpper(status)))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tINPUT")
			for _, wf := range workflows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", wf.ID, wf.Name, wf.Status, truncate(string(wf.Input), 48))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, COMPLETED, STOPPED)")
	return cmd
}

// truncate shortens long payloads so the table stays readable.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
