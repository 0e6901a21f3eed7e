// Package downloader lists journal entries that reference documents and saves
// each document as a PDF below the output directory, filed per account.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/bjornlunden"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/db"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/metrics"
	"github.com/shunichi-ikebuchi/bl-docs/pkg/pathutil"
)

// Modes of operation.
const (
	ModeDownloadDocuments = "download-documents"
	ModeDiscoverTenant    = "discover-tenant"
)

var (
	// ErrAuthentication is returned when no access token could be obtained.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnknownAccount is logged when a ledger entry references an account missing from the chart of accounts.
	ErrUnknownAccount = errors.New("unknown account")
)

// API is the subset of the accounting API the downloader uses.
type API interface {
	SetAccessToken(token string)
	ListCompanies(ctx context.Context) ([]bjornlunden.Company, error)
	ListAccounts(ctx context.Context) ([]bjornlunden.Account, error)
	FetchJournalEntries(ctx context.Context, startDate, endDate string, rows int) ([]bjornlunden.JournalEntry, error)
	GetDocumentMetadata(ctx context.Context, id bjornlunden.ID) (*bjornlunden.DocumentMetadata, error)
	FetchDocumentPDF(ctx context.Context, id bjornlunden.ID) ([]byte, error)
}

// TokenSource supplies a bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Recorder stores the history of runs and written files.
type Recorder interface {
	StartRun(run db.RunRecord) error
	RecordDownload(record db.DownloadRecord) error
	FinishRun(run db.RunRecord, runErr error) error
}

// Metrics counts what a run did.
type Metrics interface {
	RecordJournals(total, withDocuments int)
	RecordDocument()
	RecordFileWritten(size int)
	RecordFailure(reason string)
	RecordFetchLatency(duration time.Duration)
	RecordRunFinished(at time.Time)
}

// Options configures a Downloader.
type Options struct {
	Tokens     TokenSource
	OutputRoot string
	StartDate  string // YYYY-MM-DD
	EndDate    string // YYYY-MM-DD
	Rows       int    // 0 means bjornlunden.DefaultRows
	DryRun     bool

	Recorder Recorder  // optional
	Metrics  Metrics   // optional
	Stdout   io.Writer // progress lines; default os.Stdout
	Logger   *slog.Logger
	Now      func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	RunID                 string
	Journals              int
	JournalsWithDocuments int
	Documents             int
	FilesWritten          int
	Bytes                 int64
	Failures              int
}

// Downloader runs the discover and download workflows.
type Downloader struct {
	api    API
	opts   Options
	paths  *pathutil.PathResolver
	logger *slog.Logger
}

// New creates a Downloader.
func New(api API, opts Options) *Downloader {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rows <= 0 {
		opts.Rows = bjornlunden.DefaultRows
	}

	return &Downloader{
		api:    api,
		opts:   opts,
		paths:  pathutil.New(pathutil.Config{OutputRoot: opts.OutputRoot}),
		logger: opts.Logger,
	}
}

// authenticate obtains a token and hands it to the API client.
func (d *Downloader) authenticate(ctx context.Context) error {
	if d.opts.Tokens == nil {
		return fmt.Errorf("%w: no token source configured", ErrAuthentication)
	}

	token, err := d.opts.Tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	d.api.SetAccessToken(token)
	return nil
}

// Discover writes the connected companies to w, one "name:\tpublicKey" line each.
func (d *Downloader) Discover(ctx context.Context, w io.Writer) error {
	if err := d.authenticate(ctx); err != nil {
		return err
	}

	companies, err := d.api.ListCompanies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connected companies: %w", err)
	}

	for _, company := range companies {
		fmt.Fprintf(w, "%s:\t%s\n", company.Name, company.PublicKey)
	}
	return nil
}

// Run downloads every document referenced by a journal entry in the date window.
// Failures of single documents are logged, counted and skipped; failing to
// authenticate or to list accounts or journal entries aborts the run.
func (d *Downloader) Run(ctx context.Context) (summary *Summary, err error) {
	summary = &Summary{RunID: uuid.NewString()}
	logger := d.logger.With("run_id", summary.RunID)

	if d.opts.Recorder != nil && !d.opts.DryRun {
		run := db.RunRecord{
			RunID:     summary.RunID,
			Mode:      ModeDownloadDocuments,
			StartDate: d.opts.StartDate,
			EndDate:   d.opts.EndDate,
		}
		if err := d.opts.Recorder.StartRun(run); err != nil {
			return summary, fmt.Errorf("failed to record run: %w", err)
		}
		defer func() {
			run.Journals = summary.Journals
			run.Documents = summary.Documents
			run.FilesWritten = summary.FilesWritten
			run.Failures = summary.Failures
			if recErr := d.opts.Recorder.FinishRun(run, err); recErr != nil {
				logger.Warn("Failed to record run result", "error", recErr)
			}
		}()
	}
	if d.opts.Metrics != nil {
		defer func() { d.opts.Metrics.RecordRunFinished(d.opts.Now()) }()
	}

	if err := d.authenticate(ctx); err != nil {
		return summary, err
	}

	accounts, err := d.loadAccounts(ctx)
	if err != nil {
		return summary, err
	}

	entries, err := d.api.FetchJournalEntries(ctx, d.opts.StartDate, d.opts.EndDate, d.opts.Rows)
	if err != nil {
		return summary, fmt.Errorf("failed to get journal entries: %w", err)
	}

	var withDocuments []bjornlunden.JournalEntry
	for _, entry := range entries {
		if entry.HasDocuments() {
			withDocuments = append(withDocuments, entry)
		}
	}
	summary.Journals = len(entries)
	summary.JournalsWithDocuments = len(withDocuments)
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordJournals(len(entries), len(withDocuments))
	}

	logger.Info("Fetched journal entries",
		"total", len(entries),
		"with_documents", len(withDocuments),
		"start_date", d.opts.StartDate,
		"end_date", d.opts.EndDate)

	for _, journal := range withDocuments {
		for _, documentID := range journal.DocumentIDs {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			d.processDocument(ctx, logger, summary, accounts, journal, documentID)
		}
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	logger.Info("Run finished",
		"documents", summary.Documents,
		"files_written", summary.FilesWritten,
		"bytes", summary.Bytes,
		"failures", summary.Failures)

	return summary, nil
}

func (d *Downloader) loadAccounts(ctx context.Context) (map[bjornlunden.ID]bjornlunden.Account, error) {
	list, err := d.api.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}

	accounts := make(map[bjornlunden.ID]bjornlunden.Account, len(list))
	for _, account := range list {
		accounts[account.ID] = account
	}
	return accounts, nil
}

// processDocument saves one document once per ledger entry of its journal entry.
func (d *Downloader) processDocument(ctx context.Context, logger *slog.Logger, summary *Summary,
	accounts map[bjornlunden.ID]bjornlunden.Account, journal bjornlunden.JournalEntry, documentID bjornlunden.ID) {
	summary.Documents++
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordDocument()
	}

	logger = logger.With("journal_id", journal.ID.String(), "document_id", documentID.String())

	meta, err := d.api.GetDocumentMetadata(ctx, documentID)
	if err != nil {
		d.fail(logger, summary, metrics.ReasonMetadata, "Failed to get document metadata", err)
	} else {
		logger.Debug("Document metadata", "file_name", meta.FileName, "content_type", meta.ContentType)
	}

	for _, entry := range journal.LedgerEntries {
		if ctx.Err() != nil {
			return
		}

		account, ok := accounts[entry.AccountID]
		if !ok {
			err := fmt.Errorf("%w: %s", ErrUnknownAccount, entry.AccountID)
			d.fail(logger, summary, metrics.ReasonUnknownAccount, "Skipping ledger entry", err)
			continue
		}

		path := d.paths.GetDocumentPath(account.Name, account.ID.String(), pathutil.DocumentName{
			Date:        entry.Date,
			Amount:      entry.Amount,
			JournalText: journal.JournalEntryText,
			JournalName: journal.JournalName,
			LedgerText:  entry.Text,
		})

		fmt.Fprintf(d.opts.Stdout, "Saving document %s as %s\n", documentID, path)
		if d.opts.DryRun {
			continue
		}

		if err := d.paths.EnsureParentDir(path); err != nil {
			d.fail(logger, summary, metrics.ReasonWrite, "Failed to create account directory", err)
			continue
		}

		start := time.Now()
		pdf, err := d.api.FetchDocumentPDF(ctx, documentID)
		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordFetchLatency(time.Since(start))
		}
		if err != nil {
			d.fail(logger, summary, metrics.ReasonFetch, "Failed to get document",
				err, "status", bjornlunden.StatusCode(err))
			continue
		}

		if err := os.WriteFile(path, pdf, 0644); err != nil {
			d.fail(logger, summary, metrics.ReasonWrite, "Failed to write document", err, "path", path)
			continue
		}

		summary.FilesWritten++
		summary.Bytes += int64(len(pdf))
		if d.opts.Metrics != nil {
			d.opts.Metrics.RecordFileWritten(len(pdf))
		}

		if d.opts.Recorder != nil {
			record := db.DownloadRecord{
				RunID:      summary.RunID,
				DocumentID: documentID.String(),
				JournalID:  journal.ID.String(),
				AccountID:  account.ID.String(),
				Path:       path,
				Size:       int64(len(pdf)),
			}
			if err := d.opts.Recorder.RecordDownload(record); err != nil {
				d.fail(logger, summary, metrics.ReasonRecord, "Failed to record download", err, "path", path)
			}
		}
	}
}

func (d *Downloader) fail(logger *slog.Logger, summary *Summary, reason, msg string, err error, args ...any) {
	summary.Failures++
	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordFailure(reason)
	}
	logger.Warn(msg, append(args, "reason", reason, "error", err)...)
}
