package main

import (
	"fmt"

	"github.com/joshuapare/pmemkit/pobj"
	"github.com/spf13/cobra"
)

var (
	createLayout  string
	createSize    int
	createLogSize int
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <pool>",
		Short: "Create an empty pool file",
		Long: `The create command writes a new pool file with an empty heap and undo log.
The file must not already exist.

Example:
  pmemq create queue.pool
  pmemq create queue.pool --size 67108864 --log-size 262144`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, args)
		},
	}
	cmd.Flags().StringVar(&createLayout, "layout", "", "Layout tag (default from config, else \"queue\")")
	cmd.Flags().IntVar(&createSize, "size", 0, "Initial heap size in bytes")
	cmd.Flags().IntVar(&createLogSize, "log-size", 0, "Undo log capacity in bytes")
	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	path := args[0]
	layout := settings.Layout
	if createLayout != "" {
		layout = createLayout
	}
	opts := settings.createOptions()
	if createSize > 0 {
		opts.HeapSize = createSize
	}
	if createLogSize > 0 {
		opts.LogSize = createLogSize
	}

	printVerbose(cmd.ErrOrStderr(), "Creating %s (layout %q, heap %d, log %d)\n", path, layout, opts.HeapSize, opts.LogSize)
	if err := pobj.Create(path, layout, opts); err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	printInfo(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
