package forgectl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forge/pkg/types"
)

// ErrDaemonUnreachable is returned when the daemon's HTTP API cannot be
// reached at all (connection refused, DNS failure, etc.), as distinct
// from a request that reached the daemon and came back as an error.
var ErrDaemonUnreachable = errors.New("forge daemon is not reachable")

// Client is a thin wrapper over net/http for talking to forged's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a Client against the daemon listening at bind (the same
// host:port forged's server.bind config names).
func New(bind string) *Client {
	base := bind
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimSuffix(base, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks whether the daemon's HTTP API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
			return 0, nil, fmt.Errorf("%w at %s: %v", ErrDaemonUnreachable, c.baseURL, err)
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

type apiError struct {
	Error string `json:"error"`
}

func errorFromBody(status int, body []byte) error {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (status %d)", e.Error, status)
	}
	return fmt.Errorf("request failed with status %d", status)
}

func query(params map[string]string) string {
	v := url.Values{}
	for k, val := range params {
		if val != "" {
			v.Set(k, val)
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// CreateJobRequest is the payload forwarded as-is to POST /jobs/{action}.
type CreateJobRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	N              int      `json:"n,omitempty"`
	Quality        string   `json:"quality,omitempty"`
	Style          string   `json:"style,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	CFGScale       *float64 `json:"cfg_scale,omitempty"`
	SampleSteps    *int     `json:"sample_steps,omitempty"`
	SamplingMethod string   `json:"sampling_method,omitempty"`
	ClipSkip       *int     `json:"clip_skip,omitempty"`
}

// CreateJob submits a new generation job and returns its assigned id.
func (c *Client) CreateJob(ctx context.Context, action string, req CreateJobRequest) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/jobs/"+action, req)
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", errorFromBody(status, body)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.JobID, nil
}

// CreateJobWithFiles submits an edit or variation job whose source image
// (and optional mask) live on disk, uploading them as multipart file parts
// rather than local paths so the daemon need not share a filesystem with
// the caller.
func (c *Client) CreateJobWithFiles(ctx context.Context, action string, req CreateJobRequest, imagePath, maskPath string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	if err := writer.WriteField("payload", string(payload)); err != nil {
		return "", fmt.Errorf("write payload field: %w", err)
	}
	if err := attachFile(writer, "image", imagePath); err != nil {
		return "", err
	}
	if err := attachFile(writer, "mask", maskPath); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	url := c.baseURL + "/jobs/" + action
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDaemonUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", errorFromBody(resp.StatusCode, body)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.JobID, nil
}

func attachFile(writer *multipart.Writer, field, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}

// ListJobs returns a page of jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, limit, offset int, statuses []string) (types.JobList, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = fmt.Sprint(limit)
	}
	if offset > 0 {
		params["offset"] = fmt.Sprint(offset)
	}
	path := "/jobs" + query(params)
	if len(statuses) > 0 {
		v, _ := url.ParseQuery(strings.TrimPrefix(path, "/jobs?"))
		for _, s := range statuses {
			v.Add("status", s)
		}
		path = "/jobs?" + v.Encode()
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return types.JobList{}, err
	}
	if status != http.StatusOK {
		return types.JobList{}, errorFromBody(status, body)
	}
	var out types.JobList
	if err := json.Unmarshal(body, &out); err != nil {
		return types.JobList{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// GetJob fetches a single job by id, including its generated images.
func (c *Client) GetJob(ctx context.Context, id string) (types.Job, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return types.Job{}, err
	}
	if status != http.StatusOK {
		return types.Job{}, errorFromBody(status, body)
	}
	var out types.Job
	if err := json.Unmarshal(body, &out); err != nil {
		return types.Job{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// CancelJob cancels a pending job.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errorFromBody(status, body)
	}
	return nil
}

// ListModels returns every configured model descriptor.
func (c *Client) ListModels(ctx context.Context) ([]types.ModelDescriptor, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, errorFromBody(status, body)
	}
	var out struct {
		Models []types.ModelDescriptor `json:"models"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Models, nil
}

// ModelStatus fetches the runtime status of a single model.
func (c *Client) ModelStatus(ctx context.Context, id string) (types.ModelStatus, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/models/"+url.PathEscape(id)+"/status", nil)
	if err != nil {
		return types.ModelStatus{}, err
	}
	if status != http.StatusOK {
		return types.ModelStatus{}, errorFromBody(status, body)
	}
	var out types.ModelStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return types.ModelStatus{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// StartModel requests that a model's backing engine process be started.
func (c *Client) StartModel(ctx context.Context, id string) (types.ModelStatus, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/models/"+url.PathEscape(id)+"/start", nil)
	if err != nil {
		return types.ModelStatus{}, err
	}
	if status != http.StatusOK && status != http.StatusAccepted {
		return types.ModelStatus{}, errorFromBody(status, body)
	}
	var out types.ModelStatus
	if err := json.Unmarshal(body, &out); err != nil {
		return types.ModelStatus{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// StopModel requests that a model's backing engine process be stopped.
func (c *Client) StopModel(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodPost, "/models/"+url.PathEscape(id)+"/stop", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errorFromBody(status, body)
	}
	return nil
}

// StartDownload begins downloading files from repo.
func (c *Client) StartDownload(ctx context.Context, repo string, files []string) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/models/download", map[string]any{
		"repo":  repo,
		"files": files,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted {
		return "", errorFromBody(status, body)
	}
	var out struct {
		DownloadID string `json:"download_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.DownloadID, nil
}

// DownloadStatus fetches the current state of a download.
func (c *Client) DownloadStatus(ctx context.Context, id string) (types.DownloadJob, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/models/download/"+url.PathEscape(id), nil)
	if err != nil {
		return types.DownloadJob{}, err
	}
	if status != http.StatusOK {
		return types.DownloadJob{}, errorFromBody(status, body)
	}
	var out types.DownloadJob
	if err := json.Unmarshal(body, &out); err != nil {
		return types.DownloadJob{}, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// CancelDownload cancels an in-progress download.
func (c *Client) CancelDownload(ctx context.Context, id string) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/models/download/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return errorFromBody(status, body)
	}
	return nil
}
