package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"forge/internal/queue"
)

// dispatchedImage is one image produced by a dispatch, not yet persisted
// to the managed image store.
type dispatchedImage struct {
	Index         int
	MIME          string
	Data          []byte
	RevisedPrompt string
}

const extraArgsOpenTag = "<sd_cpp_extra_args>"
const extraArgsCloseTag = "</sd_cpp_extra_args>"

// generateRequest is the engine-native JSON body for generate/edit/variation
// dispatch.
type generateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	N              int     `json:"n,omitempty"`
	Seed           *int64  `json:"seed,omitempty"`
	Steps          *int    `json:"steps,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	Sampler        string  `json:"sampler,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	InitImages     []string `json:"init_images,omitempty"`
	Mask           string  `json:"mask,omitempty"`
}

type generateResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt,omitempty"`
	} `json:"data"`
}

// upscaleRequest is the engine-native body for the extra-single-image
// upscale endpoint.
type upscaleRequest struct {
	Image           string `json:"image"`
	ResizeMode      int    `json:"resize_mode"`
	UpscalingResize int    `json:"upscaling_resize"`
	Upscaler1       string `json:"upscaler_1"`
}

type upscaleResponse struct {
	Image string `json:"image"`
}

// sideChannelParams carries advanced parameters the engine only accepts
// through the prompt-suffix sentinel tag.
type sideChannelParams struct {
	SampleSteps    *int     `json:"sample_steps,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	SamplingMethod string   `json:"sampling_method,omitempty"`
	ClipSkip       *int     `json:"clip_skip,omitempty"`
}

func encodePrompt(prompt string, params effectiveParams) (string, error) {
	side := sideChannelParams{
		SampleSteps:    params.SampleSteps,
		CFGScale:       params.CFGScale,
		SamplingMethod: params.SamplingMethod,
		ClipSkip:       params.ClipSkip,
	}
	payload, err := json.Marshal(side)
	if err != nil {
		return "", err
	}
	return prompt + extraArgsOpenTag + string(payload) + extraArgsCloseTag, nil
}

// engineEndpoint derives the generation-engine path from the job type: the
// sd-webui-compatible API exposes separate txt2img, img2img, and
// extra-single-image endpoints rather than a single shared one.
func engineEndpoint(apiURL string, jobType queue.Type) string {
	base := strings.TrimSuffix(apiURL, "/")
	switch jobType {
	case queue.TypeEdit, queue.TypeVariation:
		return base + "/sdapi/v1/img2img"
	case queue.TypeUpscale:
		return base + "/sdapi/v1/extra-single-image"
	default:
		return base + "/sdapi/v1/txt2img"
	}
}

func (d *dispatcher) dispatchHTTP(ctx context.Context, job *queue.Job, apiURL string, params effectiveParams) ([]dispatchedImage, error) {
	if job.Type == queue.TypeUpscale {
		return d.dispatchUpscaleHTTP(ctx, job, engineEndpoint(apiURL, job.Type))
	}

	prompt, err := encodePrompt(job.Prompt, params)
	if err != nil {
		return nil, EngineBadResponse{ModelID: job.ModelID, Err: err}
	}

	body := generateRequest{
		Prompt:         prompt,
		NegativePrompt: job.NegativePrompt,
		Width:          params.Width,
		Height:         params.Height,
		N:              jobBatchSize(job),
		Seed:           job.Seed,
		Steps:          params.SampleSteps,
		CFGScale:       params.CFGScale,
		Sampler:        params.SamplingMethod,
	}
	if job.Type == queue.TypeVariation {
		body.Strength = params.Strength
	}
	if job.Type == queue.TypeVariation || job.Type == queue.TypeEdit {
		if img, err := readImageBase64(job.SourceImagePath); err == nil {
			body.InitImages = []string{img}
		} else if job.SourceImagePath != "" {
			return nil, JobInvalid{Reason: fmt.Sprintf("read source image: %v", err)}
		}
		if job.MaskPath != "" {
			if mask, err := readImageBase64(job.MaskPath); err == nil {
				body.Mask = mask
			} else {
				return nil, JobInvalid{Reason: fmt.Sprintf("read mask image: %v", err)}
			}
		}
	}

	var decoded generateResponse
	if err := d.postJSON(ctx, job.ModelID, engineEndpoint(apiURL, job.Type), body, &decoded); err != nil {
		return nil, err
	}

	images := make([]dispatchedImage, 0, len(decoded.Data))
	for i, item := range decoded.Data {
		raw, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, EngineBadResponse{ModelID: job.ModelID, Err: fmt.Errorf("decode image %d: %w", i, err)}
		}
		images = append(images, dispatchedImage{
			Index:         i,
			MIME:          "image/png",
			Data:          raw,
			RevisedPrompt: item.RevisedPrompt,
		})
	}
	return images, nil
}

func (d *dispatcher) dispatchUpscaleHTTP(ctx context.Context, job *queue.Job, endpoint string) ([]dispatchedImage, error) {
	img, err := readImageBase64(job.SourceImagePath)
	if err != nil {
		return nil, JobInvalid{Reason: fmt.Sprintf("read source image: %v", err)}
	}

	body := upscaleRequest{
		Image:           img,
		ResizeMode:      0,
		UpscalingResize: 2,
		Upscaler1:       "ESRGAN_4x",
	}

	var decoded upscaleResponse
	if err := d.postJSON(ctx, job.ModelID, endpoint, body, &decoded); err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(decoded.Image)
	if err != nil {
		return nil, EngineBadResponse{ModelID: job.ModelID, Err: fmt.Errorf("decode upscaled image: %w", err)}
	}
	return []dispatchedImage{{
		Index: 0,
		MIME:  "image/png",
		Data:  raw,
	}}, nil
}

func (d *dispatcher) postJSON(ctx context.Context, modelID, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return EngineBadResponse{ModelID: modelID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return EngineBadResponse{ModelID: modelID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return EngineHTTPError{ModelID: modelID, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return EngineHTTPError{ModelID: modelID, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return EngineBadResponse{ModelID: modelID, Err: err}
	}
	return nil
}

func jobBatchSize(job *queue.Job) int {
	if job.N > 0 {
		return job.N
	}
	return 1
}

func readImageBase64(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
