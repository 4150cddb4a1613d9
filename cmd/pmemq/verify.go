package main

import (
	"errors"
	"fmt"

	"github.com/joshuapare/pmemkit/internal/mmfile"
	"github.com/joshuapare/pmemkit/region/verify"
	"github.com/spf13/cobra"
)

var verifyDeep bool

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <pool>",
		Short: "Check pool structure",
		Long: `The verify command checks the header, undo log, heap cells and file size
through a read-only mapping. With --deep it then opens the pool, which rolls
back any interrupted transaction, and walks the object graph and queue links.

Example:
  pmemq verify queue.pool
  pmemq verify queue.pool --deep`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args)
		},
	}
	cmd.Flags().BoolVar(&verifyDeep, "deep", false, "Also open the pool and check reachability")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]
	out := cmd.OutOrStdout()

	m, err := mmfile.Map(path)
	if err != nil {
		return fmt.Errorf("failed to map pool: %w", err)
	}
	problems := verify.All(m.Bytes())
	broken := verify.AllInvariants(m.Bytes()) != nil
	m.Close()

	sty := newStyles(out)
	printInfo(out, "\n%s\n", sty.header.Render("Structure:"))
	for _, p := range problems {
		printInfo(out, "  %s\n", sty.fail(p.Error()))
	}
	if len(problems) == 0 {
		printInfo(out, "  %s\n", sty.pass("Header, log and heap valid"))
	}
	if broken || !verifyDeep {
		return summarize(problems)
	}

	q, err := openQueue(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer q.Pool().Close()

	printInfo(out, "\n%s\n", sty.header.Render("Objects:"))
	rep, err := q.Pool().Check()
	printInfo(out, "  Reachable: %d\n", rep.Reachable)
	for _, p := range rep.Problems {
		printInfo(out, "  %s\n", sty.fail(p))
	}
	for _, oid := range rep.Leaked {
		printInfo(out, "  %s\n", sty.fail("leaked object "+oid.String()))
	}
	if err != nil {
		problems = append(problems, err)
	}
	if err := q.Check(); err != nil {
		printInfo(out, "  %s\n", sty.fail(err.Error()))
		problems = append(problems, err)
	}
	if len(problems) == 0 {
		printInfo(out, "  %s\n", sty.pass("Object graph consistent"))
	}
	return summarize(problems)
}

func summarize(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("verification failed: %w", errors.Join(problems...))
}
