package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forge/internal/downloads"
	"forge/internal/modelmgr"
	"forge/internal/queue"
)

// metricsCollector registers as a prometheus.Collector that queries live
// queue/download/model state at scrape time, plus request counters
// updated by the instrument middleware on every request.
type metricsCollector struct {
	store     *queue.Store
	downloads *downloads.Coordinator
	engines   *modelmgr.Manager
	registry  *prometheus.Registry

	jobsByStatus     *prometheus.Desc
	downloadsActive  *prometheus.Desc
	modelsRunning    *prometheus.Desc
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

func newMetricsCollector(store *queue.Store, dl *downloads.Coordinator, engines *modelmgr.Manager) *metricsCollector {
	c := &metricsCollector{
		store:     store,
		downloads: dl,
		engines:   engines,
		registry:  prometheus.NewRegistry(),
		jobsByStatus: prometheus.NewDesc(
			"forge_jobs_total", "Number of jobs by status.", []string{"status"}, nil,
		),
		downloadsActive: prometheus.NewDesc(
			"forge_downloads_active", "Number of in-progress model downloads.", nil, nil,
		),
		modelsRunning: prometheus.NewDesc(
			"forge_models_running", "Number of model engines currently running.", nil, nil,
		),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forge_http_requests_total",
			Help: "Total HTTP requests by route and status.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "forge_http_request_duration_seconds",
			Help: "HTTP request duration by route.",
		}, []string{"route"}),
	}
	c.registry.MustRegister(c, c.requestsTotal, c.requestDuration)
	return c
}

func (c *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
	ch <- c.downloadsActive
	ch <- c.modelsRunning
}

func (c *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if summary, err := c.store.Health(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(summary.Pending), "pending")
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(summary.Processing), "processing")
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(summary.Completed), "completed")
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(summary.Failed), "failed")
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(summary.Cancelled), "cancelled")
	}

	if c.downloads != nil {
		if records, err := c.downloads.All(ctx); err == nil {
			active := 0
			for _, rec := range records {
				if rec.Status == queue.DownloadDownloading || rec.Status == queue.DownloadPending {
					active++
				}
			}
			ch <- prometheus.MustNewConstMetric(c.downloadsActive, prometheus.GaugeValue, float64(active))
		}
	}

	if c.engines != nil {
		ch <- prometheus.MustNewConstMetric(c.modelsRunning, prometheus.GaugeValue, float64(len(c.engines.Running())))
	}
}

func (c *metricsCollector) handler() http.HandlerFunc {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return h.ServeHTTP
}

// instrument is chi middleware recording request counts and latency per
// route pattern.
func (c *metricsCollector) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		c.requestsTotal.WithLabelValues(route, r.Method, http.StatusText(rec.status)).Inc()
		c.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
