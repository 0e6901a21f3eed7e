package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/bjornlunden"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/config"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/db"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/downloader"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/metrics"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/tokencache"
)

// downloadFlags holds the download command line.
type downloadFlags struct {
	configPath string
	outputDir  string
	mode       string
	dryRun     bool
	dateFrom   string
	dateTo     string
	rows       int
}

var dlFlags downloadFlags

// downloadCmd represents the download command.
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download journal entry documents as PDF",
	Long: `Download the documents attached to journal entries.

This command:
1. Authenticates with client credentials (reusing a cached token)
2. Fetches the chart of accounts and the journal entries in the date window
3. Saves every referenced document once per ledger entry, as
   {output}/{account name} - {account id}/{date}_{amount}_{text} - {journal} - {ledger text}.pdf
4. Records the run in the history database when history_db is set

Without a user_key in the configuration it lists the connected companies instead.

Example:
  bl-docs download -c config.yaml -o documents
  bl-docs download -c config.yaml -o documents --from 2023-01-01 --to 2023-12-31 --dry-run
  bl-docs download -c config.yaml --mode discover-tenant`,
	Run: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&dlFlags.configPath, "config", "c", "", "Config file (YAML) (required)")
	downloadCmd.Flags().StringVarP(&dlFlags.outputDir, "output", "o", "", "Output directory (required for download-documents)")
	downloadCmd.Flags().StringVar(&dlFlags.mode, "mode", "", "download-documents or discover-tenant (default: discover-tenant when user_key is missing)")
	downloadCmd.Flags().BoolVar(&dlFlags.dryRun, "dry-run", false, "Dry run mode (print paths, no downloads)")
	downloadCmd.Flags().StringVar(&dlFlags.dateFrom, "from", "", "Start date (YYYY-MM-DD), overrides start_date")
	downloadCmd.Flags().StringVar(&dlFlags.dateTo, "to", "", "End date (YYYY-MM-DD), overrides end_date")
	downloadCmd.Flags().IntVar(&dlFlags.rows, "rows", 0, "Journal entry row limit, overrides rows")

	downloadCmd.MarkFlagRequired("config")
}

func runDownload(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := download(ctx, cmd.OutOrStdout(), dlFlags)
	exitOnError(err, "download failed")
}

// download loads the configuration and runs the selected mode.
func download(ctx context.Context, w io.Writer, flags downloadFlags) error {
	logger := slog.Default()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.dateFrom != "" {
		cfg.StartDate = flags.dateFrom
	}
	if flags.dateTo != "" {
		cfg.EndDate = flags.dateTo
	}
	if flags.rows > 0 {
		cfg.Rows = flags.rows
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	mode := flags.mode
	switch mode {
	case "":
		mode = downloader.ModeDownloadDocuments
		if !cfg.HasUserKey() {
			fmt.Fprintln(w, "Missing user key in the config file. Select one from the list of connected companies:")
			mode = downloader.ModeDiscoverTenant
		}
	case downloader.ModeDownloadDocuments:
		if !cfg.HasUserKey() {
			return fmt.Errorf("%w: user_key is required for %s", config.ErrInvalid, mode)
		}
	case downloader.ModeDiscoverTenant:
	default:
		return fmt.Errorf("%w: unknown mode %q", config.ErrInvalid, mode)
	}

	if mode == downloader.ModeDiscoverTenant {
		client, tokens := newAPI(cfg, logger)
		d := downloader.New(client, downloader.Options{Tokens: tokens, Logger: logger})
		return d.Discover(ctx, w)
	}

	if flags.outputDir == "" {
		return fmt.Errorf("%w: --output is required for %s", config.ErrInvalid, mode)
	}

	client, tokens := newAPI(cfg, logger)
	opts := downloader.Options{
		Tokens:     tokens,
		OutputRoot: flags.outputDir,
		StartDate:  cfg.StartDate,
		EndDate:    cfg.ResolveEndDate(time.Now()),
		Rows:       cfg.Rows,
		DryRun:     flags.dryRun,
		Stdout:     w,
		Logger:     logger,
	}

	if cfg.HistoryDB != "" {
		logger.Debug("Opening history database", "path", cfg.HistoryDB)
		conn, err := db.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer conn.Close()
		opts.Recorder = db.NewHistory(conn)
	}

	var reg *prometheus.Registry
	if cfg.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		opts.Metrics = metrics.NewCollector(reg)
	}

	summary, runErr := downloader.New(client, opts).Run(ctx)

	if reg != nil {
		if err := metrics.WriteTextfile(cfg.MetricsFile, reg); err != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	printSummary(w, summary, flags.dryRun)
	return nil
}

// newAPI builds the API client and its token source from the configuration.
func newAPI(cfg *config.Config, logger *slog.Logger) (*bjornlunden.Client, *downloader.TokenProvider) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	auth := bjornlunden.NewAuthenticator(bjornlunden.AuthConfig{
		AuthBaseURL:  cfg.AuthBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		DefaultTTL:   cfg.TokenTTL,
		HTTPClient:   httpClient,
	})

	client := bjornlunden.NewClient(bjornlunden.ClientConfig{
		BaseURL:           cfg.BaseURL,
		UserKey:           cfg.UserKey,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.Retries(),
		HTTPClient:        httpClient,
		Logger:            logger,
	})

	cache := tokencache.New(cfg.TokenCache, tokencache.WithLogger(logger))
	return client, downloader.NewTokenProvider(cache, auth, logger)
}

func printSummary(w io.Writer, s *downloader.Summary, dryRun bool) {
	fmt.Fprintln(w, "\n=== Download Summary ===")
	fmt.Fprintf(w, "Run ID:                  %s\n", s.RunID)
	fmt.Fprintf(w, "Journal entries:         %d\n", s.Journals)
	fmt.Fprintf(w, "  with documents:        %d\n", s.JournalsWithDocuments)
	fmt.Fprintf(w, "Documents:               %d\n", s.Documents)
	if dryRun {
		fmt.Fprintln(w, "Files written:           (dry run)")
	} else {
		fmt.Fprintf(w, "Files written:           %d (%d bytes)\n", s.FilesWritten, s.Bytes)
	}
	fmt.Fprintf(w, "Failures:                %d\n", s.Failures)
	fmt.Fprintln(w)
}
