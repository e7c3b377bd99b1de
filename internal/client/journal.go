// Package client implements the CLI side: the upload journal, the folder
// watcher, and the HTTP calls against a sync server.
package client

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"nxsync/internal/syncer"
	"nxsync/pkg/models"
)

// Upload statuses tracked in the journal.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)

// Journal is the client's local record of what has been uploaded and when.
// It exists so repeated sync runs only push files the server has not seen
// at their current modification time.
type Journal struct {
	*sql.DB
}

// OpenJournal opens (and if needed creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{sqlDB}
	if err := j.initialize(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	_, err := j.Exec(`
		CREATE TABLE IF NOT EXISTS uploads (
			folder_id TEXT,
			rel_path TEXT,
			size INTEGER,
			modified_ms INTEGER,
			status TEXT,
			uploaded_at INTEGER,
			PRIMARY KEY (folder_id, rel_path)
		);
		CREATE INDEX IF NOT EXISTS idx_uploads_status ON uploads(folder_id, status);
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA temp_store=MEMORY;
	`)
	if err != nil {
		return fmt.Errorf("initialize journal: %w", err)
	}
	return nil
}

// Record stores the outcome of one upload attempt.
func (j *Journal) Record(folderID, relPath string, size, modifiedMs, uploadedAt int64, status string) error {
	_, err := j.Exec(`
		INSERT OR REPLACE INTO uploads (folder_id, rel_path, size, modified_ms, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, folderID, relPath, size, modifiedMs, status, uploadedAt)
	return err
}

// RecordBatch stores multiple outcomes in a single transaction.
func (j *Journal) RecordBatch(folderID string, entries []JournalEntry) error {
	tx, err := j.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO uploads (folder_id, rel_path, size, modified_ms, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(folderID, e.RelPath, e.Size, e.ModifiedMs, e.Status, e.UploadedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// JournalEntry is one row of the upload journal.
type JournalEntry struct {
	RelPath    string
	Size       int64
	ModifiedMs int64
	Status     string
	UploadedAt int64
}

// UploadedModTime returns the modification time (ms) recorded for the last
// successful upload of relPath, or ok=false if it was never uploaded.
func (j *Journal) UploadedModTime(folderID, relPath string) (int64, bool, error) {
	var modified int64
	err := j.QueryRow(`
		SELECT modified_ms FROM uploads
		WHERE folder_id = ? AND rel_path = ? AND status = ?
	`, folderID, relPath, StatusUploaded).Scan(&modified)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return modified, true, nil
}

// Pending filters the scanned files down to the ones the journal has not seen
// at their current modification time. The comparison mirrors the server's
// reconciler: a file is pending when no uploaded row exists or the recorded
// time is strictly older.
func (j *Journal) Pending(folderID string, local []syncer.LocalFile) ([]syncer.LocalFile, error) {
	var pending []syncer.LocalFile
	for _, f := range local {
		recorded, ok, err := j.UploadedModTime(folderID, f.RelPath)
		if err != nil {
			return nil, err
		}
		if !ok || recorded < f.ModTime {
			pending = append(pending, f)
		}
	}
	return pending, nil
}

// Stats aggregates the journal for a folder.
func (j *Journal) Stats(folderID string) (*models.Stats, error) {
	var stats models.Stats
	err := j.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(size), 0),
			COUNT(CASE WHEN status = 'uploaded' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'uploaded' THEN size ELSE 0 END), 0),
			COUNT(CASE WHEN status = 'failed' THEN 1 END),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN size ELSE 0 END), 0)
		FROM uploads
		WHERE folder_id = ?
	`, folderID).Scan(
		&stats.TotalFiles,
		&stats.TotalSize,
		&stats.UploadedFiles,
		&stats.UploadedSize,
		&stats.FailedFiles,
		&stats.FailedSize,
	)
	if err != nil {
		return nil, fmt.Errorf("journal stats: %w", err)
	}
	stats.PendingFiles = stats.TotalFiles - stats.UploadedFiles - stats.FailedFiles
	stats.PendingSize = stats.TotalSize - stats.UploadedSize - stats.FailedSize
	return &stats, nil
}

// MarkPending records scanned files that still need uploading, so Stats
// reflects a scan even before any bytes move.
func (j *Journal) MarkPending(folderID string, files []syncer.LocalFile) error {
	entries := make([]JournalEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, JournalEntry{
			RelPath:    f.RelPath,
			Size:       f.Size,
			ModifiedMs: f.ModTime,
			Status:     StatusPending,
		})
	}
	return j.RecordBatch(folderID, entries)
}
