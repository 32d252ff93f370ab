package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	toolRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsuite",
			Name:      "tool_runs_total",
			Help:      "Total tool invocations by tool and result",
		},
		[]string{"tool", "result"},
	)

	toolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docsuite",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations by tool",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	pagesRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsuite",
			Name:      "pages_rendered_total",
			Help:      "Pages rasterized by result (ok, error)",
		},
		[]string{"result"},
	)

	itemsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsuite",
			Name:      "items_skipped_total",
			Help:      "Inputs skipped during a tool run by tool and reason",
		},
		[]string{"tool", "reason"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docsuite",
			Name:      "deliveries_total",
			Help:      "Artifact deliveries by adapter and result",
		},
		[]string{"adapter", "result"},
	)

	jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docsuite",
			Name:      "jobs_active",
			Help:      "Asynchronous jobs currently running by tool",
		},
		[]string{"tool"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(toolRuns, toolLatency, pagesRendered, itemsSkipped, deliveries, jobsActive)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveTool records one tool run.
func ObserveTool(tool string, err error, dur time.Duration) {
	toolRuns.WithLabelValues(tool, result(err)).Inc()
	toolLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func IncRendered(ok bool) {
	if ok {
		pagesRendered.WithLabelValues("ok").Inc()
		return
	}
	pagesRendered.WithLabelValues("error").Inc()
}

func IncSkipped(tool, reason string) { itemsSkipped.WithLabelValues(tool, reason).Inc() }

func ObserveDelivery(adapter string, err error) { deliveries.WithLabelValues(adapter, result(err)).Inc() }

func JobStarted(tool string)  { jobsActive.WithLabelValues(tool).Inc() }
func JobFinished(tool string) { jobsActive.WithLabelValues(tool).Dec() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
