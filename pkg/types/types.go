// Package types holds wire-level DTOs shared by the HTTP API and the CLI.
package types

import "time"

// JobType enumerates the kinds of generation request a client may submit.
type JobType string

const (
	JobGenerate  JobType = "generate"
	JobEdit      JobType = "edit"
	JobVariation JobType = "variation"
	JobUpscale   JobType = "upscale"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Job is the wire representation of a queued or completed generation request.
type Job struct {
	ID                  string            `json:"id"`
	Type                JobType           `json:"type"`
	ModelID             string            `json:"model_id"`
	Prompt              string            `json:"prompt"`
	NegativePrompt      string            `json:"negative_prompt,omitempty"`
	Width               int               `json:"width,omitempty"`
	Height              int               `json:"height,omitempty"`
	Seed                *int64            `json:"seed,omitempty"`
	N                   int               `json:"n,omitempty"`
	Quality             string            `json:"quality,omitempty"`
	Style               string            `json:"style,omitempty"`
	SourceImagePath     string            `json:"source_image_path,omitempty"`
	MaskPath            string            `json:"mask_path,omitempty"`
	Strength            *float64          `json:"strength,omitempty"`
	CFGScale            *float64          `json:"cfg_scale,omitempty"`
	SampleSteps         *int              `json:"sample_steps,omitempty"`
	SamplingMethod      string            `json:"sampling_method,omitempty"`
	ClipSkip            *int              `json:"clip_skip,omitempty"`
	Status              JobStatus         `json:"status"`
	Progress            float64           `json:"progress"`
	Error               string            `json:"error,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	StartedAt           *time.Time        `json:"started_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	ModelLoadingTimeMs  *int64            `json:"model_loading_time_ms,omitempty"`
	GenerationTimeMs    *int64            `json:"generation_time_ms,omitempty"`
	Images              []GeneratedImage  `json:"images,omitempty"`
}

// GeneratedImage is one image produced by a completed job.
type GeneratedImage struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Index         int    `json:"index"`
	MIME          string `json:"mime"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	URL           string `json:"url"`
}

// Pagination describes a windowed listing result.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// JobList is the envelope returned by GET /jobs.
type JobList struct {
	Jobs       []Job      `json:"jobs"`
	Pagination Pagination `json:"pagination"`
}

// ProcessStatus is the lifecycle state of a model's backing process.
type ProcessStatus string

const (
	ProcessStarting ProcessStatus = "starting"
	ProcessRunning  ProcessStatus = "running"
	ProcessStopping ProcessStatus = "stopping"
	ProcessStopped  ProcessStatus = "stopped"
	ProcessError    ProcessStatus = "error"
)

// ModelStatus is the wire representation of a model's runtime state.
type ModelStatus struct {
	ModelID   string        `json:"model_id"`
	Status    ProcessStatus `json:"status"`
	PID       int           `json:"pid,omitempty"`
	Port      int           `json:"port,omitempty"`
	UptimeMs  int64         `json:"uptime_ms,omitempty"`
}

// ModelDescriptor is the wire representation of a configured model.
type ModelDescriptor struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	LoadMode         string   `json:"load_mode"`
	ExecMode         string   `json:"exec_mode"`
	Capabilities     []string `json:"capabilities"`
	StartupTimeoutMs int      `json:"startup_timeout_ms"`
}

// DownloadStatus is the lifecycle state of a DownloadJob.
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadPaused      DownloadStatus = "paused"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
	DownloadCancelled   DownloadStatus = "cancelled"
)

// DownloadFile is one file within a DownloadJob.
type DownloadFile struct {
	Path             string  `json:"path"`
	Destination      string  `json:"destination"`
	TotalBytes       int64   `json:"total_bytes"`
	DownloadedBytes  int64   `json:"downloaded_bytes"`
	Progress         float64 `json:"progress"`
	Complete         bool    `json:"complete"`
}

// DownloadJob is the wire representation of a model download.
type DownloadJob struct {
	ID              string         `json:"id"`
	Repo            string         `json:"repo"`
	Files           []DownloadFile `json:"files"`
	Status          DownloadStatus `json:"status"`
	BytesDownloaded int64          `json:"bytes_downloaded"`
	TotalBytes      int64          `json:"total_bytes"`
	SpeedBps        float64        `json:"speed_bps"`
	ETASeconds      float64        `json:"eta_seconds"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Event is one JSON frame (one websocket text message) sent over the event stream.
type Event struct {
	Topic     string    `json:"topic"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// SubscribeFrame is the client-sent frame selecting event topics.
type SubscribeFrame struct {
	Subscribe []string `json:"subscribe"`
}
