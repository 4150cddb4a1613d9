package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPushCmd())
}

func newPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push <pool> <value>...",
		Short: "Append values to the queue",
		Long: `The push command appends one or more integers, each in its own transaction.

Example:
  pmemq push queue.pool 1 2 3`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd, args)
		},
	}
	return cmd
}

func runPush(cmd *cobra.Command, args []string) error {
	values := make([]int64, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", a, err)
		}
		values = append(values, v)
	}

	ctx := cmd.Context()
	q, err := openQueue(ctx, args[0])
	if err != nil {
		return err
	}
	defer q.Pool().Close()

	for _, v := range values {
		if err := q.Push(ctx, v); err != nil {
			return fmt.Errorf("push %d: %w", v, err)
		}
		printVerbose(cmd.ErrOrStderr(), "Pushed %d\n", v)
	}
	return nil
}
