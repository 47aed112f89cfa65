package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateDownload inserts a new download record in the pending state along
// with its file list, inside one transaction.
func (s *Store) CreateDownload(ctx context.Context, repo string, files []DownloadFileRecord) (*DownloadRecord, error) {
	id := uuid.NewString()
	now := formatTime(time.Now().UTC())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create download: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO downloads (id, repo, status, bytes_downloaded, total_bytes, speed_bytes_per_s, eta_seconds, error, created_at)
VALUES (?, ?, ?, 0, 0, 0, 0, '', ?)`,
		id, repo, DownloadPending, now,
	); err != nil {
		return nil, fmt.Errorf("insert download: %w", err)
	}

	for i := range files {
		files[i].ID = uuid.NewString()
		files[i].DownloadID = id
		if _, err := tx.ExecContext(ctx, `
INSERT INTO download_files (id, download_id, remote_path, dest_path, total_bytes, downloaded_bytes, complete)
VALUES (?, ?, ?, ?, 0, 0, 0)`,
			files[i].ID, id, files[i].RemotePath, files[i].DestPath,
		); err != nil {
			return nil, fmt.Errorf("insert download file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create download: %w", err)
	}

	return s.GetDownload(ctx, id)
}

// SetDownloadStatus transitions a download's status, optionally stamping
// started_at (on the downloading transition) or completed_at (on a
// terminal transition).
func (s *Store) SetDownloadStatus(ctx context.Context, id string, status DownloadStatus, errMsg string) error {
	now := formatTime(time.Now().UTC())
	var startedAt, completedAt any
	if status == DownloadDownloading {
		startedAt = now
	}
	if status == DownloadCompleted || status == DownloadFailed || status == DownloadCancelled {
		completedAt = now
	}
	_, err := s.execWithRetry(ctx, `
UPDATE downloads SET status = ?, error = ?,
    started_at = COALESCE(started_at, ?),
    completed_at = COALESCE(completed_at, ?)
WHERE id = ?`,
		status, errMsg, startedAt, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("set download status: %w", err)
	}
	return nil
}

// UpdateDownloadProgress persists one file's progress plus the download's
// recomputed aggregate totals, speed, and ETA.
func (s *Store) UpdateDownloadProgress(ctx context.Context, fileID string, downloadedBytes, totalBytes int64, complete bool, agg DownloadRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update progress: %w", err)
	}
	defer tx.Rollback()

	completeFlag := 0
	if complete {
		completeFlag = 1
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE download_files SET downloaded_bytes = ?, total_bytes = ?, complete = ? WHERE id = ?`,
		downloadedBytes, totalBytes, completeFlag, fileID,
	); err != nil {
		return fmt.Errorf("update download file: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE downloads SET bytes_downloaded = ?, total_bytes = ?, speed_bytes_per_s = ?, eta_seconds = ? WHERE id = ?`,
		agg.BytesDownloaded, agg.TotalBytes, agg.SpeedBytesPerS, agg.ETASeconds, agg.ID,
	); err != nil {
		return fmt.Errorf("update download aggregate: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update progress: %w", err)
	}
	return nil
}

// GetDownload loads one download and its files.
func (s *Store) GetDownload(ctx context.Context, id string) (*DownloadRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, repo, status, bytes_downloaded, total_bytes, speed_bytes_per_s, eta_seconds, error, created_at, started_at, completed_at
FROM downloads WHERE id = ?`, id)

	rec, err := scanDownload(row)
	if err != nil {
		return nil, err
	}

	files, err := s.downloadFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Files = files
	return rec, nil
}

// ListDownloads returns every download record ordered newest-first.
func (s *Store) ListDownloads(ctx context.Context) ([]*DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, repo, status, bytes_downloaded, total_bytes, speed_bytes_per_s, eta_seconds, error, created_at, started_at, completed_at
FROM downloads ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DownloadRecord
	for rows.Next() {
		rec, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range out {
		files, err := s.downloadFiles(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.Files = files
	}
	return out, nil
}

// CleanupDownloads removes terminal download records (and their files,
// via the foreign key cascade) older than cutoff.
func (s *Store) CleanupDownloads(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, `
DELETE FROM downloads
WHERE status IN (?, ?, ?) AND created_at < ?`,
		DownloadCompleted, DownloadFailed, DownloadCancelled, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup downloads: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) downloadFiles(ctx context.Context, downloadID string) ([]DownloadFileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, download_id, remote_path, dest_path, total_bytes, downloaded_bytes, complete
FROM download_files WHERE download_id = ? ORDER BY rowid ASC`, downloadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DownloadFileRecord
	for rows.Next() {
		var f DownloadFileRecord
		var complete int
		if err := rows.Scan(&f.ID, &f.DownloadID, &f.RemotePath, &f.DestPath, &f.TotalBytes, &f.DownloadedBytes, &complete); err != nil {
			return nil, err
		}
		f.Complete = complete != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanDownload(row rowScanner) (*DownloadRecord, error) {
	var rec DownloadRecord
	var createdAt string
	var startedAt, completedAt *string
	if err := row.Scan(&rec.ID, &rec.Repo, &rec.Status, &rec.BytesDownloaded, &rec.TotalBytes,
		&rec.SpeedBytesPerS, &rec.ETASeconds, &rec.Error, &createdAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = created
	started, err := parseTimePtr(startedAt)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = started
	completed, err := parseTimePtr(completedAt)
	if err != nil {
		return nil, err
	}
	rec.CompletedAt = completed
	return &rec, nil
}
