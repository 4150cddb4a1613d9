package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/joshuapare/pmemkit/queue"
	"github.com/spf13/cobra"
)

const prompt = "[push value|pop|show|exit]"

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <pool>",
		Short: "Operate the queue interactively",
		Long: `The run command reads whitespace separated commands from standard input:

  push <value>   append an integer
  pop            remove and print the first value
  show           print every value, first to last
  exit           close the pool and quit

Popping an empty queue prints an error and keeps going. Any other word
prints "unknown ops" and ends the session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
	}
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q, err := openQueue(ctx, args[0])
	if err != nil {
		return err
	}
	defer q.Pool().Close()

	return session(cmd, q, cmd.InOrStdin())
}

// session runs the command loop until exit, end of input or an unknown word.
func session(cmd *cobra.Command, q *queue.Queue, in io.Reader) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	sc := bufio.NewScanner(in)
	sc.Split(bufio.ScanWords)
	for {
		fmt.Fprintln(out, prompt)
		if !sc.Scan() {
			return sc.Err()
		}
		switch sc.Text() {
		case "push":
			if !sc.Scan() {
				printError(errOut, "push: missing value\n")
				return sc.Err()
			}
			v, err := strconv.ParseInt(sc.Text(), 10, 64)
			if err != nil {
				printError(errOut, "push: %v\n", err)
				continue
			}
			if err := q.Push(ctx, v); err != nil {
				return fmt.Errorf("push %d: %w", v, err)
			}
		case "pop":
			v, err := q.Pop(ctx)
			if errors.Is(err, queue.ErrEmpty) {
				printError(errOut, "%v\n", err)
				continue
			}
			if err != nil {
				return fmt.Errorf("pop: %w", err)
			}
			fmt.Fprintln(out, v)
		case "show":
			if err := show(out, q); err != nil {
				return err
			}
		case "exit":
			return nil
		default:
			fmt.Fprintln(errOut, "unknown ops")
			return nil
		}
	}
}

// show prints one "show: v" line per value and a blank line after them.
func show(w io.Writer, q *queue.Queue) error {
	var werr error
	err := q.Walk(func(v int64) bool {
		_, werr = fmt.Fprintf(w, "show: %d\n", v)
		return werr == nil
	})
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	if werr != nil {
		return werr
	}
	_, err = fmt.Fprintln(w)
	return err
}
