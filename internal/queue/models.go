package queue

import "time"

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Type is the kind of generation request a Job represents.
type Type string

const (
	TypeGenerate  Type = "generate"
	TypeEdit      Type = "edit"
	TypeVariation Type = "variation"
	TypeUpscale   Type = "upscale"
)

// Job is a persisted generation request. Queue and history share one row:
// a completed job still carries its own status/progress/images.
type Job struct {
	ID                 string
	Type               Type
	ModelID            string
	Prompt             string
	NegativePrompt     string
	Width              int
	Height             int
	Seed               *int64
	N                  int
	Quality            string
	Style              string
	SourceImagePath    string
	MaskPath           string
	Strength           *float64
	CFGScale           *float64
	SampleSteps        *int
	SamplingMethod     string
	ClipSkip           *int
	Status             Status
	Progress           float64
	Error              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
	HeartbeatAt        *time.Time
	ModelLoadingTimeMs *int64
	GenerationTimeMs   *int64
	Images             []GeneratedImage
}

// GeneratedImage is one output image belonging to a completed Job.
type GeneratedImage struct {
	ID            string
	JobID         string
	Index         int
	MIME          string
	Width         int
	Height        int
	RevisedPrompt string
	FilePath      string
	CreatedAt     time.Time
}

// Filter narrows a List query.
type Filter struct {
	Statuses []Status
	Limit    int
	Offset   int
}

// HealthSummary reports aggregate job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(timeLayout, value)
}

func parseTimePtr(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	t, err := parseTime(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
