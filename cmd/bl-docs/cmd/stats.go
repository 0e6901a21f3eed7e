package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/config"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/db"
)

var (
	statsHistoryDB string
	statsConfig    string
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display download statistics",
	Long: `Display statistics from the download history database.

Shows:
- Total number of runs, and how many failed
- Total number of files written and distinct documents
- Last successful run

Example:
  bl-docs stats --history-db history.db
  bl-docs stats -c config.yaml`,
	Run: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsHistoryDB, "history-db", "", "History database path")
	statsCmd.Flags().StringVarP(&statsConfig, "config", "c", "", "Config file to read history_db from")
}

func runStats(cmd *cobra.Command, args []string) {
	err := showStats(cmd.OutOrStdout(), statsHistoryDB, statsConfig)
	exitOnError(err, "failed to show statistics")
}

func showStats(w io.Writer, dbPath, configPath string) error {
	if dbPath == "" && configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		return fmt.Errorf("%w: --history-db or a config with history_db is required", config.ErrInvalid)
	}

	slog.Debug("Opening history database", "path", dbPath)
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	stats, err := db.NewHistory(conn).GetStats()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "\n=== Download Statistics ===")
	fmt.Fprintf(w, "Runs:               %d (%d failed)\n", stats.TotalRuns, stats.FailedRuns)
	fmt.Fprintf(w, "Files written:      %d\n", stats.TotalFiles)
	fmt.Fprintf(w, "Distinct documents: %d\n", stats.DistinctDocuments)
	fmt.Fprintf(w, "Bytes written:      %d\n", stats.TotalBytes)

	if stats.LastRun.Valid {
		fmt.Fprintf(w, "Last run:           %s (%s)\n", stats.LastRun.String, stats.LastRunFinishedAt.String)
	} else {
		fmt.Fprintf(w, "Last run:           (never)\n")
	}

	fmt.Fprintln(w)
	return nil
}
