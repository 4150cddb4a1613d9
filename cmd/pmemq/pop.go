package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var popCount int

func init() {
	rootCmd.AddCommand(newPopCmd())
}

func newPopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pop <pool>",
		Short: "Remove and print values from the front of the queue",
		Long: `The pop command removes values from the front of the queue and prints them,
one per line. Popping an empty queue is an error.

Example:
  pmemq pop queue.pool
  pmemq pop queue.pool -n 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPop(cmd, args)
		},
	}
	cmd.Flags().IntVarP(&popCount, "count", "n", 1, "Number of values to pop")
	return cmd
}

func runPop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q, err := openQueue(ctx, args[0])
	if err != nil {
		return err
	}
	defer q.Pool().Close()

	for i := 0; i < popCount; i++ {
		v, err := q.Pop(ctx)
		if err != nil {
			return fmt.Errorf("pop: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
	}
	return nil
}
