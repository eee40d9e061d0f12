package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	uploadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanslate_uploads_total",
			Help: "Total number of successfully decoded uploads.",
		},
	)
	uploadFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cleanslate_upload_failures_total",
			Help: "Total number of uploads no decode strategy could read.",
		},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanslate_commands_total",
			Help: "Total number of completed commands by mode.",
		},
		[]string{"mode"},
	)
	commandFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanslate_command_failures_total",
			Help: "Total number of failed commands by pipeline stage.",
		},
		[]string{"stage"},
	)
	fragmentExecutionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cleanslate_fragment_execution_seconds",
			Help:    "Generated fragment execution latency in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cleanslate_active_sessions",
			Help: "Current count of live sessions.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		uploadsTotal,
		uploadFailuresTotal,
		commandsTotal,
		commandFailuresTotal,
		fragmentExecutionSeconds,
		activeSessions,
	)
}

func ObserveUpload() {
	uploadsTotal.Inc()
}

func ObserveUploadFailure() {
	uploadFailuresTotal.Inc()
}

// ObserveCommand records a completed command. Mode is one of action,
// inspection, reset, or undo.
func ObserveCommand(mode string, execElapsed time.Duration) {
	commandsTotal.WithLabelValues(mode).Inc()
	if execElapsed > 0 {
		fragmentExecutionSeconds.Observe(execElapsed.Seconds())
	}
}

// ObserveCommandFailure records a failed command. Stage is generate or
// execute.
func ObserveCommandFailure(stage string) {
	commandFailuresTotal.WithLabelValues(stage).Inc()
}

func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}
