package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joshuapare/pmemkit/internal/logger"
	"github.com/joshuapare/pmemkit/pobj"
	"github.com/joshuapare/pmemkit/queue"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	quiet      bool
	jsonOut    bool
	noColor    bool
	flushMode  string
	logLevel   string

	settings = defaultSettings()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "pmemq",
	Short: "Operate a crash-consistent persistent queue",
	Long: `pmemq creates, inspects and operates queue pools: memory-mapped files
whose contents change only through undo-logged transactions, so an
interrupted operation is rolled back the next time the pool is opened.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRunE = loadSettings
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return closeLog()
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "INI file with [pool] and [log] sections")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&flushMode, "flush-mode", "", "Commit flush mode: auto, data or full")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Enable file logging at this level")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings merges the config file and the persistent flags, then starts
// file logging when either asks for it.
func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := readSettings(configPath)
	if err != nil {
		return err
	}
	if err := s.applyFlags(cmd.Flags()); err != nil {
		return err
	}
	settings = s

	closer, err := logger.Init(logger.Options{
		Enabled: s.LogEnabled,
		LogDir:  s.LogDir,
		Level:   s.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise logging: %w", err)
	}
	closeLog = closer
	return nil
}

// openQueue opens the queue pool at path with the current settings.
func openQueue(ctx context.Context, path string) (*queue.Queue, error) {
	pool, err := pobj.Open(ctx, path, settings.Layout, settings.poolOptions(), queue.Types()...)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(ctx, pool)
	if err != nil {
		_ = pool.Close()
		return nil, err
	}
	printVerbose(os.Stderr, "Opened pool %s (rolled back: %v)\n", path, pool.Recovery().RolledBack())
	return q, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(w io.Writer, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printError prints an error message
func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(w io.Writer, format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
