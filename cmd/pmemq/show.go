package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newShowCmd())
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <pool>",
		Short: "Print the queue contents",
		Long: `The show command prints every queued value from first to last without
changing the pool.

Example:
  pmemq show queue.pool
  pmemq show queue.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, args)
		},
	}
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	q, err := openQueue(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer q.Pool().Close()

	if jsonOut {
		values, err := q.Show()
		if err != nil {
			return err
		}
		if values == nil {
			values = []int64{}
		}
		return printJSON(cmd.OutOrStdout(), values)
	}
	return show(cmd.OutOrStdout(), q)
}
