package queue

import "time"

// DownloadStatus is the lifecycle state of a DownloadRecord.
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadPaused      DownloadStatus = "paused"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
	DownloadCancelled   DownloadStatus = "cancelled"
)

// DownloadFileRecord is one file within a DownloadRecord.
type DownloadFileRecord struct {
	ID               string
	DownloadID       string
	RemotePath       string
	DestPath         string
	TotalBytes       int64
	DownloadedBytes  int64
	Complete         bool
}

// DownloadRecord is a persisted multi-file model download.
type DownloadRecord struct {
	ID              string
	Repo            string
	Status          DownloadStatus
	BytesDownloaded int64
	TotalBytes      int64
	SpeedBytesPerS  float64
	ETASeconds      float64
	Error           string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Files           []DownloadFileRecord
}
