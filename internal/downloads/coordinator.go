package downloads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"forge/internal/events"
	"forge/internal/logging"
	"forge/internal/queue"
)

// Coordinator drives model downloads: validating the source repo,
// persisting per-download and per-file progress, and running each
// download's files sequentially with HTTP range-resume.
type Coordinator struct {
	store      *queue.Store
	bus        *events.Bus
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	dir        string
	timeout    time.Duration

	sem chan struct{}

	registry *RegistryClient

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	progLog map[string]*logging.ProgressSampler
}

// New constructs a Coordinator. baseURL is the remote registry root (e.g.
// https://huggingface.co); dir is the local directory downloaded files are
// written under, one subdirectory per repo. maxConcurrent bounds how many
// downloads run at once; requestTimeout bounds the registry metadata
// request that validates a repo. File transfers are not bounded by it.
func New(store *queue.Store, bus *events.Bus, baseURL, dir string, maxConcurrent int, requestTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	httpClient := &http.Client{}
	trimmedBase := strings.TrimSuffix(baseURL, "/")
	return &Coordinator{
		store:      store,
		bus:        bus,
		httpClient: httpClient,
		logger:     logger,
		baseURL:    trimmedBase,
		dir:        dir,
		timeout:    requestTimeout,
		sem:        make(chan struct{}, maxConcurrent),
		cancels:    make(map[string]context.CancelFunc),
		progLog:    make(map[string]*logging.ProgressSampler),
		registry:   NewRegistryClient(httpClient, trimmedBase, requestTimeout),
	}
}

// Start validates repo against the registry, creates the download record,
// and begins downloading files sequentially in the background. It returns
// as soon as the record exists; progress is reported asynchronously
// through the event bus and can be polled with Status.
func (c *Coordinator) Start(ctx context.Context, repo string, paths []string) (string, error) {
	if err := c.validateRepo(ctx, repo); err != nil {
		return "", err
	}

	files := make([]queue.DownloadFileRecord, len(paths))
	for i, p := range paths {
		files[i] = queue.DownloadFileRecord{
			RemotePath: p,
			DestPath:   filepath.Join(c.dir, sanitizeRepo(repo), filepath.FromSlash(p)),
		}
	}

	rec, err := c.store.CreateDownload(ctx, repo, files)
	if err != nil {
		return "", fmt.Errorf("create download record: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[rec.ID] = cancel
	c.mu.Unlock()

	go c.run(runCtx, rec.ID, repo, rec.Files)

	return rec.ID, nil
}

// validateRepo confirms repo exists on the registry by fetching its
// metadata. The returned siblings list is the same data the registry
// exposes under what upstream treats as two separate calls; forge folds
// both into RegistryClient.ModelInfo and only uses it for validation
// here, since the request layer already supplies the file list.
func (c *Coordinator) validateRepo(ctx context.Context, repo string) error {
	_, err := c.registry.ModelInfo(ctx, repo)
	return err
}

// Cancel signals the in-flight download (if any) to abort. The run loop
// marks the record cancelled once it observes the cancellation.
func (c *Coordinator) Cancel(id string) bool {
	c.mu.Lock()
	cancel, ok := c.cancels[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Status returns the current aggregated view of a download.
func (c *Coordinator) Status(ctx context.Context, id string) (*queue.DownloadRecord, error) {
	rec, err := c.store.GetDownload(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound{ID: id}
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound{ID: id}
	}
	return rec, nil
}

// All lists every download record.
func (c *Coordinator) All(ctx context.Context) ([]*queue.DownloadRecord, error) {
	return c.store.ListDownloads(ctx)
}

// Cleanup removes terminal download records older than maxAge.
func (c *Coordinator) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	return c.store.CleanupDownloads(ctx, time.Now().Add(-maxAge))
}

func (c *Coordinator) finishCancel(id string) {
	c.mu.Lock()
	delete(c.cancels, id)
	delete(c.progLog, id)
	c.mu.Unlock()
}

// progressSampler returns the per-download log-throttling sampler, creating
// it on first use. Buckets fire every 10% to keep concurrent multi-file
// downloads from flooding the console at the default log level.
func (c *Coordinator) progressSampler(id string) *logging.ProgressSampler {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.progLog[id]
	if !ok {
		s = logging.NewProgressSampler(10)
		c.progLog[id] = s
	}
	return s
}

func resolveRemoteURL(baseURL, repo, path string) string {
	var encoded []string
	for _, segment := range strings.Split(path, "/") {
		encoded = append(encoded, url.PathEscape(segment))
	}
	return fmt.Sprintf("%s/%s/resolve/main/%s", baseURL, repo, strings.Join(encoded, "/"))
}

func sanitizeRepo(repo string) string {
	return strings.ReplaceAll(repo, "/", "__")
}
