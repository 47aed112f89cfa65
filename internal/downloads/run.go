package downloads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"forge/internal/events"
	"forge/internal/queue"
)

const progressTickInterval = 500 * time.Millisecond
const progressTickBytes = 1 << 20 // 1 MiB

func (c *Coordinator) run(ctx context.Context, id, repo string, files []queue.DownloadFileRecord) {
	defer c.finishCancel(id)

	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	if err := c.store.SetDownloadStatus(ctx, id, queue.DownloadDownloading, ""); err != nil {
		c.logger.Error("set download status failed", "download_id", id, "error", err)
	}
	c.bus.Publish(events.TopicDownloads, "download_started", id)

	agg := aggregate{recordID: id}
	for _, f := range files {
		agg.fileTotals = append(agg.fileTotals, f.TotalBytes)
		agg.fileDownloaded = append(agg.fileDownloaded, f.DownloadedBytes)
	}

	for i, file := range files {
		if file.Complete {
			continue
		}
		if err := c.downloadFile(ctx, id, repo, file, i, &agg); err != nil {
			c.finish(ctx, id, err)
			return
		}
	}

	if err := c.store.SetDownloadStatus(ctx, id, queue.DownloadCompleted, ""); err != nil {
		c.logger.Error("set download status failed", "download_id", id, "error", err)
	}
	c.bus.Publish(events.TopicDownloads, "download_completed", id)
}

func (c *Coordinator) finish(ctx context.Context, id string, err error) {
	status := queue.DownloadFailed
	msg := err.Error()
	if errors.Is(ctx.Err(), context.Canceled) || IsCancelled(err) {
		status = queue.DownloadCancelled
		msg = "cancelled"
	}
	if setErr := c.store.SetDownloadStatus(context.Background(), id, status, msg); setErr != nil {
		c.logger.Error("set download status failed", "download_id", id, "error", setErr)
	}
	c.bus.Publish(events.TopicDownloads, "download_"+string(status), id)
}

// aggregate tracks running per-file and summed totals across one
// download's file list, used to recompute the aggregate record on every
// progress tick without re-querying the store.
type aggregate struct {
	recordID       string
	fileTotals     []int64
	fileDownloaded []int64
}

func (a *aggregate) totals() (downloaded, total int64) {
	for i := range a.fileTotals {
		downloaded += a.fileDownloaded[i]
		total += a.fileTotals[i]
	}
	return
}

// downloadFile fetches one file with range-resume support. It deliberately
// does not bound the transfer with c.timeout: model files run into the
// gigabytes and a flat deadline would abort a healthy slow transfer. The
// timeout only bounds the repo validation request made by Start.
func (c *Coordinator) downloadFile(ctx context.Context, downloadID, repo string, file queue.DownloadFileRecord, idx int, agg *aggregate) error {
	if err := os.MkdirAll(filepath.Dir(file.DestPath), 0o755); err != nil {
		return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: err}
	}

	startOffset := int64(0)
	if info, err := os.Stat(file.DestPath); err == nil {
		startOffset = info.Size()
	}

	remoteURL := resolveRemoteURL(c.baseURL, repo, file.RemotePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: err}
	}
	if startOffset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(startOffset, 10)+"-")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ErrCancelled{ID: downloadID}
		}
		return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return c.markFileComplete(ctx, file, startOffset, agg, idx)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: errStatus(resp.StatusCode)}
	}

	total := parseTotalSize(resp, startOffset)
	agg.fileTotals[idx] = total

	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if startOffset > 0 && resp.StatusCode == http.StatusPartialContent {
		flag = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	} else {
		startOffset = 0
	}
	out, err := os.OpenFile(file.DestPath, flag, 0o644)
	if err != nil {
		return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: err}
	}
	defer out.Close()

	downloaded := startOffset
	agg.fileDownloaded[idx] = downloaded

	buf := make([]byte, 32*1024)
	lastTick := time.Now()
	sinceTick := int64(0)
	for {
		select {
		case <-ctx.Done():
			return ErrCancelled{ID: downloadID}
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: werr}
			}
			downloaded += int64(n)
			sinceTick += int64(n)
			agg.fileDownloaded[idx] = downloaded

			if sinceTick >= progressTickBytes || time.Since(lastTick) >= progressTickInterval {
				c.publishProgress(ctx, downloadID, file, downloaded, total, sinceTick, time.Since(lastTick), agg)
				lastTick = time.Now()
				sinceTick = 0
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return ErrNetworkFailure{Repo: repo, Path: file.RemotePath, Err: readErr}
		}
	}

	c.publishProgress(ctx, downloadID, file, downloaded, total, sinceTick, time.Since(lastTick), agg)
	return c.markFileComplete(ctx, file, downloaded, agg, idx)
}

func (c *Coordinator) markFileComplete(ctx context.Context, file queue.DownloadFileRecord, downloaded int64, agg *aggregate, idx int) error {
	agg.fileDownloaded[idx] = downloaded
	downloadedTotal, totalTotal := agg.totals()
	rec := queue.DownloadRecord{ID: agg.recordID, BytesDownloaded: downloadedTotal, TotalBytes: totalTotal}
	return c.store.UpdateDownloadProgress(ctx, file.ID, downloaded, agg.fileTotals[idx], true, rec)
}

func (c *Coordinator) publishProgress(ctx context.Context, downloadID string, file queue.DownloadFileRecord, downloaded, total, bytesDelta int64, timeDelta time.Duration, agg *aggregate) {
	speed := 0.0
	if timeDelta > 0 {
		speed = float64(bytesDelta) / timeDelta.Seconds()
	}
	eta := 0.0
	if speed > 0 && total > downloaded {
		eta = float64(total-downloaded) / speed
	}

	downloadedTotal, totalTotal := agg.totals()
	rec := queue.DownloadRecord{
		ID:              downloadID,
		BytesDownloaded: downloadedTotal,
		TotalBytes:      totalTotal,
		SpeedBytesPerS:  speed,
		ETASeconds:      eta,
	}
	if err := c.store.UpdateDownloadProgress(ctx, file.ID, downloaded, total, false, rec); err != nil {
		c.logger.Error("update download progress failed", "download_id", downloadID, "error", err)
	}
	c.bus.Publish(events.TopicDownloads, "download_progress", rec)

	percent := -1.0
	if total > 0 {
		percent = float64(downloaded) / float64(total) * 100
	}
	if c.progressSampler(downloadID).ShouldLog(percent, file.RemotePath, "") {
		c.logger.Info("download progress",
			"download_id", downloadID, "file", file.RemotePath,
			"downloaded_bytes", downloaded, "total_bytes", total,
			"speed_bytes_per_s", int64(speed), "eta_seconds", int64(eta))
	}
}

func parseTotalSize(resp *http.Response, startOffset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if size, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return size
			}
		}
	}
	if resp.ContentLength >= 0 {
		return startOffset + resp.ContentLength
	}
	return 0
}

type statusError int

func (e statusError) Error() string { return "unexpected HTTP status " + strconv.Itoa(int(e)) }

func errStatus(code int) error { return statusError(code) }
