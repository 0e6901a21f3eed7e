// Package cmd provides CLI commands for bl-docs.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/config"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/downloader"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitAuthError   = 3
)

var (
	debug     bool
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "bl-docs",
	Short: "Download accounting documents from Björn Lundén",
	Long: `bl-docs downloads the documents attached to journal entries in
Björn Lundén accounting and saves them as PDF files, one directory per account.

It supports:
- Client-credentials authentication with a cached token
- Listing connected companies to find a user key
- Download history in SQLite and Prometheus textfile metrics
- Dry-run mode for checking paths

Example:
  bl-docs download -c config.yaml -o documents
  bl-docs companies config.yaml
  bl-docs stats --history-db history.db`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}
		opts := &slog.HandlerOptions{Level: logLevel}

		var handler slog.Handler
		switch logFormat {
		case "text":
			handler = slog.NewTextHandler(os.Stderr, opts)
		case "json":
			handler = slog.NewJSONHandler(os.Stderr, opts)
		default:
			return fmt.Errorf("invalid --log-format %q (expected text or json)", logFormat)
		}
		slog.SetDefault(slog.New(handler))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	// Add subcommands
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(companiesCmd)
	rootCmd.AddCommand(statsCmd)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrInvalid):
		return ExitConfigError
	case errors.Is(err, downloader.ErrAuthentication):
		return ExitAuthError
	default:
		return ExitFailure
	}
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(exitCode(err))
	}
}
