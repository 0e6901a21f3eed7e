package db

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()

	conn, err := Open(filepath.Join(t.TempDir(), "history", "bl-docs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewHistory(conn)
}

func TestRunLifecycle(t *testing.T) {
	h := openTestHistory(t)

	run := RunRecord{RunID: "run-1", Mode: "download-documents", StartDate: "1920-01-01", EndDate: "2023-12-31"}
	if err := h.StartRun(run); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	got, err := h.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got == nil || got.FinishedAt.Valid {
		t.Fatalf("GetRun() = %+v, expected an unfinished run", got)
	}

	run.Journals, run.Documents, run.FilesWritten, run.Failures = 3, 3, 4, 1
	if err := h.FinishRun(run, nil); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, err = h.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if !got.FinishedAt.Valid || got.FilesWritten != 4 || got.Failures != 1 || got.Error.Valid {
		t.Errorf("GetRun() = %+v, expected finished run with 4 files and 1 failure", got)
	}

	last, err := h.GetMetadata(MetadataLastRun)
	if err != nil {
		t.Fatalf("GetMetadata() error = %v", err)
	}
	if last != "run-1" {
		t.Errorf("last run = %q, expected run-1", last)
	}
}

func TestFinishRunWithError(t *testing.T) {
	h := openTestHistory(t)

	run := RunRecord{RunID: "run-2", Mode: "download-documents", StartDate: "1920-01-01", EndDate: "2023-12-31"}
	if err := h.StartRun(run); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := h.FinishRun(run, errors.New("list accounts failed")); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	got, _ := h.GetRun("run-2")
	if !got.Error.Valid || got.Error.String != "list accounts failed" {
		t.Errorf("Error = %+v, expected the run error", got.Error)
	}

	last, _ := h.GetMetadata(MetadataLastRun)
	if last != "" {
		t.Errorf("last run = %q, expected none after a failed run", last)
	}

	stats, err := h.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalRuns != 1 || stats.FailedRuns != 1 || stats.LastRun.Valid {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	h := openTestHistory(t)

	if err := h.FinishRun(RunRecord{RunID: "nope"}, nil); err == nil {
		t.Error("FinishRun() expected error for unknown run")
	}
}

func TestRecordDownload(t *testing.T) {
	h := openTestHistory(t)

	if err := h.StartRun(RunRecord{RunID: "run-1", Mode: "download-documents", StartDate: "a", EndDate: "b"}); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	records := []DownloadRecord{
		{RunID: "run-1", DocumentID: "doc-1", JournalID: "1", AccountID: "6110", Path: "out/a.pdf", Size: 10},
		{RunID: "run-1", DocumentID: "doc-1", JournalID: "1", AccountID: "1930", Path: "out/b.pdf", Size: 10},
		{RunID: "run-1", DocumentID: "doc-2", JournalID: "3", AccountID: "6110", Path: "out/c.pdf", Size: 5},
	}
	for _, r := range records {
		if err := h.RecordDownload(r); err != nil {
			t.Fatalf("RecordDownload() error = %v", err)
		}
	}

	got, err := h.GetDownloadsByRun("run-1")
	if err != nil {
		t.Fatalf("GetDownloadsByRun() error = %v", err)
	}
	if len(got) != 3 || got[1].AccountID != "1930" {
		t.Errorf("GetDownloadsByRun() = %+v", got)
	}

	ok, err := h.IsDownloaded("doc-2")
	if err != nil || !ok {
		t.Errorf("IsDownloaded(doc-2) = %v, %v, expected true", ok, err)
	}
	ok, _ = h.IsDownloaded("doc-9")
	if ok {
		t.Error("IsDownloaded(doc-9) = true, expected false")
	}

	stats, err := h.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalFiles != 3 || stats.DistinctDocuments != 2 || stats.TotalBytes != 25 {
		t.Errorf("GetStats() = %+v, expected 3 files, 2 documents, 25 bytes", stats)
	}
}

func TestRecordDownloadRequiresRun(t *testing.T) {
	h := openTestHistory(t)

	err := h.RecordDownload(DownloadRecord{RunID: "missing", DocumentID: "d", JournalID: "j", AccountID: "a", Path: "p"})
	if err == nil {
		t.Error("RecordDownload() expected foreign key error")
	}
}

func TestMetadata(t *testing.T) {
	h := openTestHistory(t)

	if v, err := h.GetMetadata("k"); err != nil || v != "" {
		t.Errorf("GetMetadata(k) = %q, %v, expected empty", v, err)
	}

	if err := h.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("SetMetadata() error = %v", err)
	}
	if err := h.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("SetMetadata() error = %v", err)
	}

	if v, _ := h.GetMetadata("k"); v != "v2" {
		t.Errorf("GetMetadata(k) = %q, expected v2", v)
	}
}
