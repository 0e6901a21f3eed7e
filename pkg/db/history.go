package db

import (
	"database/sql"
	"fmt"
	"time"
)

// MetadataLastRun holds the run id of the last run that finished without a fatal error.
const MetadataLastRun = "last_run"

// RunRecord represents one download run.
type RunRecord struct {
	RunID        string
	Mode         string
	StartDate    string
	EndDate      string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Journals     int
	Documents    int
	FilesWritten int
	Failures     int
	Error        sql.NullString
}

// DownloadRecord represents one saved PDF.
type DownloadRecord struct {
	ID           int64
	RunID        string
	DocumentID   string
	JournalID    string
	AccountID    string
	Path         string
	Size         int64
	DownloadedAt time.Time
}

// History manages download history operations.
type History struct {
	conn *Connection
}

// NewHistory creates a new History instance.
func NewHistory(conn *Connection) *History {
	return &History{conn: conn}
}

// StartRun records the start of a run.
func (h *History) StartRun(run RunRecord) error {
	query := `
		INSERT INTO runs (run_id, mode, start_date, end_date)
		VALUES (?, ?, ?, ?)
	`

	if _, err := h.conn.Exec(query, run.RunID, run.Mode, run.StartDate, run.EndDate); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
// A nil runErr also marks the run as the last successful one.
func (h *History) FinishRun(run RunRecord, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	return h.conn.Transaction(func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE runs SET
				finished_at = CURRENT_TIMESTAMP,
				journals = ?,
				documents = ?,
				files_written = ?,
				failures = ?,
				error = ?
			WHERE run_id = ?
		`, run.Journals, run.Documents, run.FilesWritten, run.Failures, errText, run.RunID)
		if err != nil {
			return fmt.Errorf("failed to finish run: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("failed to finish run: unknown run %s", run.RunID)
		}

		if runErr != nil {
			return nil
		}
		if err := setMetadata(tx, MetadataLastRun, run.RunID); err != nil {
			return err
		}
		return nil
	})
}

// RecordDownload records a saved document.
func (h *History) RecordDownload(record DownloadRecord) error {
	query := `
		INSERT INTO downloads (run_id, document_id, journal_id, account_id, path, size)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := h.conn.Exec(query,
		record.RunID,
		record.DocumentID,
		record.JournalID,
		record.AccountID,
		record.Path,
		record.Size,
	)
	if err != nil {
		return fmt.Errorf("failed to record download: %w", err)
	}

	return nil
}

// GetRun retrieves a run by id. It returns nil when the run is unknown.
func (h *History) GetRun(runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, mode, start_date, end_date, started_at, finished_at,
			journals, documents, files_written, failures, error
		FROM runs
		WHERE run_id = ?
	`

	var run RunRecord
	err := h.conn.QueryRow(query, runID).Scan(
		&run.RunID,
		&run.Mode,
		&run.StartDate,
		&run.EndDate,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Journals,
		&run.Documents,
		&run.FilesWritten,
		&run.Failures,
		&run.Error,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return &run, nil
}

// GetDownloadsByRun retrieves the documents saved by a run, in write order.
func (h *History) GetDownloadsByRun(runID string) ([]DownloadRecord, error) {
	query := `
		SELECT id, run_id, document_id, journal_id, account_id, path, size, downloaded_at
		FROM downloads
		WHERE run_id = ?
		ORDER BY id
	`

	rows, err := h.conn.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get downloads by run: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		var record DownloadRecord
		if err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.DocumentID,
			&record.JournalID,
			&record.AccountID,
			&record.Path,
			&record.Size,
			&record.DownloadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download records: %w", err)
	}
	return records, nil
}

// IsDownloaded checks if a document has ever been saved.
func (h *History) IsDownloaded(documentID string) (bool, error) {
	var count int
	err := h.conn.QueryRow(`SELECT COUNT(*) FROM downloads WHERE document_id = ?`, documentID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check if downloaded: %w", err)
	}

	return count > 0, nil
}

// Stats represents download statistics.
type Stats struct {
	TotalRuns         int
	FailedRuns        int
	TotalFiles        int
	DistinctDocuments int
	TotalBytes        int64
	LastRun           sql.NullString
	LastRunFinishedAt sql.NullString
}

// GetStats retrieves download statistics.
func (h *History) GetStats() (*Stats, error) {
	var stats Stats

	err := h.conn.QueryRow(`SELECT COUNT(*), COUNT(error) FROM runs`).Scan(&stats.TotalRuns, &stats.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to get run count: %w", err)
	}

	err = h.conn.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT document_id), COALESCE(SUM(size), 0) FROM downloads
	`).Scan(&stats.TotalFiles, &stats.DistinctDocuments, &stats.TotalBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to get download counts: %w", err)
	}

	lastRun, err := h.GetMetadata(MetadataLastRun)
	if err != nil {
		return nil, err
	}
	if lastRun != "" {
		stats.LastRun = sql.NullString{String: lastRun, Valid: true}
		err = h.conn.QueryRow(`SELECT CAST(finished_at AS TEXT) FROM runs WHERE run_id = ?`, lastRun).Scan(&stats.LastRunFinishedAt)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to get last run time: %w", err)
		}
	}

	return &stats, nil
}

// GetMetadata retrieves a metadata value. Unknown keys yield "".
func (h *History) GetMetadata(key string) (string, error) {
	var value string
	err := h.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get metadata: %w", err)
	}

	return value, nil
}

// SetMetadata sets a metadata value.
func (h *History) SetMetadata(key, value string) error {
	return h.conn.Transaction(func(tx *sql.Tx) error {
		return setMetadata(tx, key, value)
	})
}

func setMetadata(tx *sql.Tx, key, value string) error {
	query := `
		INSERT INTO metadata (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := tx.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}
	return nil
}
