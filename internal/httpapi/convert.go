package httpapi

import (
	"fmt"

	"forge/internal/config"
	"forge/internal/modelmgr"
	"forge/internal/queue"
	"forge/internal/registry"
	"forge/pkg/types"
)

func jobToWire(j *queue.Job) types.Job {
	out := types.Job{
		ID:                 j.ID,
		Type:               types.JobType(j.Type),
		ModelID:            j.ModelID,
		Prompt:             j.Prompt,
		NegativePrompt:     j.NegativePrompt,
		Width:              j.Width,
		Height:             j.Height,
		Seed:               j.Seed,
		N:                  j.N,
		Quality:            j.Quality,
		Style:              j.Style,
		SourceImagePath:    j.SourceImagePath,
		MaskPath:           j.MaskPath,
		Strength:           j.Strength,
		CFGScale:           j.CFGScale,
		SampleSteps:        j.SampleSteps,
		SamplingMethod:     j.SamplingMethod,
		ClipSkip:           j.ClipSkip,
		Status:             types.JobStatus(j.Status),
		Progress:           j.Progress,
		Error:              j.Error,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
		ModelLoadingTimeMs: j.ModelLoadingTimeMs,
		GenerationTimeMs:   j.GenerationTimeMs,
	}
	for _, img := range j.Images {
		out.Images = append(out.Images, imageToWire(img))
	}
	return out
}

func imageToWire(img queue.GeneratedImage) types.GeneratedImage {
	return types.GeneratedImage{
		ID:            img.ID,
		JobID:         img.JobID,
		Index:         img.Index,
		MIME:          img.MIME,
		Width:         img.Width,
		Height:        img.Height,
		RevisedPrompt: img.RevisedPrompt,
		URL:           fmt.Sprintf("/images/%s", img.ID),
	}
}

func modelToWire(m config.ModelConfig) types.ModelDescriptor {
	return types.ModelDescriptor{
		ID:               m.ID,
		Name:             m.Name,
		Description:      m.Description,
		LoadMode:         m.LoadMode,
		ExecMode:         m.ExecMode,
		Capabilities:     m.Capabilities,
		StartupTimeoutMs: m.StartupTimeoutMs,
	}
}

func modelStatusToWire(st modelmgr.Status) types.ModelStatus {
	out := types.ModelStatus{
		ModelID: st.ModelID,
		Status:  processStatusToWire(st.State),
	}
	if st.PID != 0 {
		out.PID = st.PID
	}
	if st.Port != 0 {
		out.Port = st.Port
	}
	out.UptimeMs = st.UptimeMs
	return out
}

func processStatusToWire(s registry.Status) types.ProcessStatus {
	switch s {
	case registry.StatusStarting:
		return types.ProcessStarting
	case registry.StatusRunning:
		return types.ProcessRunning
	case registry.StatusStopping:
		return types.ProcessStopping
	case registry.StatusError:
		return types.ProcessError
	default:
		return types.ProcessStopped
	}
}

func downloadToWire(rec *queue.DownloadRecord) types.DownloadJob {
	out := types.DownloadJob{
		ID:              rec.ID,
		Repo:            rec.Repo,
		Status:          types.DownloadStatus(rec.Status),
		BytesDownloaded: rec.BytesDownloaded,
		TotalBytes:      rec.TotalBytes,
		SpeedBps:        rec.SpeedBytesPerS,
		ETASeconds:      rec.ETASeconds,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
		Error:           rec.Error,
	}
	for _, f := range rec.Files {
		progress := 0.0
		if f.TotalBytes > 0 {
			progress = float64(f.DownloadedBytes) / float64(f.TotalBytes)
		}
		out.Files = append(out.Files, types.DownloadFile{
			Path:            f.RemotePath,
			Destination:     f.DestPath,
			TotalBytes:      f.TotalBytes,
			DownloadedBytes: f.DownloadedBytes,
			Progress:        progress,
			Complete:        f.Complete,
		})
	}
	return out
}
