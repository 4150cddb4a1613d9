package main

import (
	"fmt"
	"io"
	"time"

	"github.com/joshuapare/pmemkit/region"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <pool>",
		Short: "Display pool header information",
		Long: `The info command reads the pool header and undo log header without
opening the pool for write, so no recovery runs.

Example:
  pmemq info queue.pool
  pmemq info queue.pool --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args)
		},
	}
	return cmd
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	printVerbose(cmd.ErrOrStderr(), "Inspecting pool: %s\n", path)

	st, err := region.Inspect(path)
	if err != nil {
		return fmt.Errorf("failed to read pool header: %w", err)
	}

	if jsonOut {
		return printJSON(out, st)
	}

	p := message.NewPrinter(language.English)
	sty := newStyles(out)
	printInfo(out, "\n%s\n", sty.header.Render("Pool Information:"))
	printInfo(out, "  File:       %s\n", path)
	printInfo(out, "  Layout:     %s\n", st.Layout)
	printInfo(out, "  Version:    %d.%d\n", st.Major, st.Minor)
	printInfo(out, "  Size:       %s\n", humanSize(p, st.FileSize))
	printInfo(out, "  Heap:       %s at 0x%X\n", humanSize(p, int64(st.HeapSize)), st.HeapOffset)
	if slack := st.Slack(); slack > 0 {
		printInfo(out, "  Slack:      %s\n", humanSize(p, slack))
	}
	printInfo(out, "  Sequence:   %d/%d\n", st.PrimarySeq, st.SecondarySeq)
	if !st.LastWrite.IsZero() {
		printInfo(out, "  Last write: %s\n", st.LastWrite.UTC().Format(time.RFC3339))
	}
	if st.RootOID != 0 {
		printInfo(out, "  Root:       0x%X (type %d, %d bytes)\n", st.RootOID, st.RootType, st.RootSize)
	} else {
		printInfo(out, "  Root:       none\n")
	}

	printInfo(out, "\n%s\n", sty.header.Render("Undo Log:"))
	printInfo(out, "  Capacity:   %s at 0x%X\n", humanSize(p, int64(st.LogSize)), st.LogOffset)
	printInfo(out, "  Sequence:   %d\n", st.LogSeq)
	printInfo(out, "  Entries:    %s\n", p.Sprintf("%d (%d bytes)", st.LogEntries, st.LogUsed))

	printInfo(out, "\n%s\n", sty.header.Render("State:"))
	printState(out, sty, st)
	return nil
}

func printState(w io.Writer, s styles, st region.Stats) {
	mark := func(ok bool, good, bad string) {
		printInfo(w, "  %s\n", s.check(ok, good, bad))
	}
	mark(st.ChecksumOK, "Header checksum valid", "Header checksum mismatch")
	mark(st.PrimarySeq == st.SecondarySeq, "Last transaction completed", "Transaction in progress")
	mark(!st.PendingRecovery, "No pending rollback", "Undo log will be rolled back on next open")
	mark(!st.DirtyShutdown, "Clean shutdown", "Not closed cleanly")
}

// humanSize renders n with thousands separators and, past one KiB, a binary
// unit.
func humanSize(p *message.Printer, n int64) string {
	switch {
	case n < 1024:
		return p.Sprintf("%d bytes", n)
	case n < 1024*1024:
		return p.Sprintf("%.1f KiB (%d bytes)", float64(n)/1024, n)
	default:
		return p.Sprintf("%.1f MiB (%d bytes)", float64(n)/(1024*1024), n)
	}
}
