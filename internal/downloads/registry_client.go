package downloads

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RegistryClient talks to the remote model registry's metadata endpoint.
// The registry exposes the same underlying data under what upstream
// treats as two operations (model info, file listing); ModelInfo folds
// both into a single call returning the file paths in the model's
// siblings list.
type RegistryClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
}

// NewRegistryClient constructs a client against baseURL (the registry
// root, e.g. https://huggingface.co).
func NewRegistryClient(httpClient *http.Client, baseURL string, timeout time.Duration) *RegistryClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RegistryClient{httpClient: httpClient, baseURL: baseURL, timeout: timeout}
}

type modelInfoResponse struct {
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

// ModelInfo fetches {baseURL}/api/models/{repo} and returns the repo's
// sibling file paths. A non-2xx response or malformed body is reported
// as ErrNetworkFailure so callers don't need to distinguish transport
// errors from registry errors.
func (r *RegistryClient) ModelInfo(ctx context.Context, repo string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	metaURL := r.baseURL + "/api/models/" + repo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, ErrNetworkFailure{Repo: repo, Err: err}
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, ErrNetworkFailure{Repo: repo, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, ErrNetworkFailure{Repo: repo, Err: fmt.Errorf("registry returned status %d", resp.StatusCode)}
	}

	var info modelInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, ErrNetworkFailure{Repo: repo, Err: fmt.Errorf("decode model info: %w", err)}
	}

	siblings := make([]string, len(info.Siblings))
	for i, s := range info.Siblings {
		siblings[i] = s.RFilename
	}
	return siblings, nil
}
