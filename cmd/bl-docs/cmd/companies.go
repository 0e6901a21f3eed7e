package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/config"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/downloader"
)

// companiesCmd represents the companies command.
var companiesCmd = &cobra.Command{
	Use:   "companies <config>",
	Short: "List connected companies and their user keys",
	Long: `List the companies connected to the API client, one per line as
"name:<TAB>publicKey". Put the public key in user_key to download documents.

Example:
  bl-docs companies config.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runCompanies,
}

func runCompanies(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := listCompanies(ctx, cmd.OutOrStdout(), args[0])
	exitOnError(err, "failed to list companies")
}

func listCompanies(ctx context.Context, w io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.Default()
	client, tokens := newAPI(cfg, logger)
	return downloader.New(client, downloader.Options{Tokens: tokens, Logger: logger}).Discover(ctx, w)
}
