package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/xfercache/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
	logFile  string
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "xferctl",
	Short: "Inspect size-class tables and exercise transfer caches",
	Long: `xferctl prints the size-class tables used by the transfer cache layer
and runs synthetic allocation workloads through a cache manager, reporting
per-class hit rates, capacity movement and central free list traffic.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Allocator log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append allocator logs to this file")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging routes allocator logs to stderr (or --log-file) when a level
// is given. Without one they are discarded unless XFERCACHE_LOG is set.
func setupLogging(cmd *cobra.Command, args []string) error {
	if logLevel == "" && logFile == "" {
		return nil
	}
	var level slog.Level
	if logLevel != "" {
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
	}
	fn, err := logger.Init(logger.Options{
		Enabled: true,
		Writer:  cmd.ErrOrStderr(),
		Path:    logFile,
		Level:   level,
		JSON:    jsonOut,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	closeLog = fn
	return nil
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
