package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftools",
			Name:      "tool_runs_total",
			Help:      "Total tool runs by tool and result (success, input_error, failed)",
		},
		[]string{"tool", "result"},
	)

	toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdftools",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool runs by tool",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	toolBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftools",
			Name:      "bytes_total",
			Help:      "Bytes read and written by tool and direction (in, out)",
		},
		[]string{"tool", "direction"},
	)

	filesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftools",
			Name:      "files_skipped_total",
			Help:      "Input files skipped during batch assembly, by tool",
		},
		[]string{"tool"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdftools",
			Name:      "jobs_total",
			Help:      "Async jobs by terminal state",
		},
		[]string{"state"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdftools",
			Name:      "queue_depth",
			Help:      "Pending entries in the job stream",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(toolRuns, toolLatency, toolBytes, filesSkipped, jobsTotal, queueDepth)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveTool(tool, result string, dur time.Duration) {
	toolRuns.WithLabelValues(tool, result).Inc()
	toolLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func AddBytes(tool string, in, out int) {
	toolBytes.WithLabelValues(tool, "in").Add(float64(in))
	toolBytes.WithLabelValues(tool, "out").Add(float64(out))
}

func IncSkipped(tool string) { filesSkipped.WithLabelValues(tool).Inc() }
func IncJob(state string) { jobsTotal.WithLabelValues(state).Inc() }
func SetQueueDepth(v int64) { queueDepth.Set(float64(v)) }
