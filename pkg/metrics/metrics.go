package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "agent"
)

var (
	// DeploymentsTotal counts deployments by result
	DeploymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Total number of deployments by result",
		},
		[]string{"result"},
	)

	// DeploymentDuration measures the time a deployment job takes
	DeploymentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Time spent running a deployment job",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// ProcessesTotal counts external processes by exit result
	ProcessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processes_total",
			Help:      "Total number of external processes run",
		},
		[]string{"result"},
	)

	// RedactedLinesTotal counts relayed output lines that had a secret masked
	RedactedLinesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_redacted_lines_total",
			Help:      "Total number of relayed process output lines containing a masked secret",
		},
	)

	// RegisteredSecrets tracks the size of the agent-wide secret registry
	RegisteredSecrets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_secrets",
			Help:      "Number of secrets in the agent-wide masking registry, derived forms included",
		},
	)
)
