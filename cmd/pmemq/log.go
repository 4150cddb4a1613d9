package main

import (
	"fmt"

	"github.com/joshuapare/pmemkit/internal/format"
	"github.com/joshuapare/pmemkit/internal/mmfile"
	"github.com/joshuapare/pmemkit/region/undo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLogCmd())
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <pool>",
		Short: "Dump the undo log",
		Long: `The log command prints the undo log entries a crash left behind, without
replaying them. An empty log means the last transaction finished.

Example:
  pmemq log queue.pool`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, args)
		},
	}
	return cmd
}

func runLog(cmd *cobra.Command, args []string) error {
	m, err := mmfile.Map(args[0])
	if err != nil {
		return fmt.Errorf("failed to map pool: %w", err)
	}
	defer m.Close()

	b := m.Bytes()
	hdr, err := format.ParseHeader(b)
	if err != nil {
		return err
	}
	end := hdr.LogOffset + hdr.LogSize
	if end > uint64(len(b)) {
		return fmt.Errorf("log area: %w", format.ErrTruncated)
	}
	lh, entries, err := undo.DecodeArea(b[hdr.LogOffset:end])
	if err != nil {
		return fmt.Errorf("failed to decode undo log: %w", err)
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), struct {
			Seq       uint32       `json:"seq"`
			Committed bool         `json:"committed"`
			Entries   []undo.Entry `json:"entries"`
		}{lh.Seq, lh.Seq == hdr.SecondarySequence, entries})
	}
	fmt.Fprintln(cmd.OutOrStdout(), undo.Format(lh, entries))
	if len(entries) > 0 && lh.Seq == hdr.SecondarySequence {
		printInfo(cmd.OutOrStdout(), "\nTransaction %d committed; the next open discards this log.\n", lh.Seq)
	}
	return nil
}
