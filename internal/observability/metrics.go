// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indexer.
type Metrics struct {
	// Scanner metrics
	BlocksScanned      prometheus.Counter
	ScanHeight         prometheus.Gauge
	ChainTipHeight     prometheus.Gauge
	BlockProcessingDur prometheus.Histogram
	ScanFaults         *prometheus.CounterVec

	// Consensus metrics
	OperationsAccepted *prometheus.CounterVec
	OperationsRejected *prometheus.CounterVec
	TokensDeployed     prometheus.Counter

	// Chain data source metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Reconciliation metrics
	ReconciliationRuns  prometheus.Counter
	TicksVerified       prometheus.Counter
	DiscrepanciesFound  prometheus.Counter

	// Health metrics
	LastCommittedBlock prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "drc20_indexer"
	}

	return &Metrics{
		BlocksScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "blocks_scanned_total",
			Help:      "Total number of blocks scanned and committed",
		}),
		ScanHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_height",
			Help:      "Height of the last committed block",
		}),
		ChainTipHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "chain_tip_height",
			Help:      "Best block height reported by the chain data source",
		}),
		BlockProcessingDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "block_processing_seconds",
			Help:      "Time spent evaluating and committing one block",
			Buckets:   prometheus.DefBuckets,
		}),
		ScanFaults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "faults_total",
			Help:      "Total number of fatal scanner faults by kind",
		}, []string{"kind"}),

		OperationsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "operations_accepted_total",
			Help:      "Total number of accepted operations by kind",
		}, []string{"kind"}),
		OperationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "operations_rejected_total",
			Help:      "Total number of rejected operations by kind and reason",
		}, []string{"kind", "reason"}),
		TokensDeployed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "tokens_deployed_total",
			Help:      "Total number of tokens deployed",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_latency_seconds",
			Help:      "Chain RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		ReconciliationRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs",
		}),
		TicksVerified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "ticks_verified_total",
			Help:      "Total number of tick comparisons that matched",
		}),
		DiscrepanciesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciliation",
			Name:      "discrepancies_total",
			Help:      "Total number of tick comparisons that diverged",
		}),

		LastCommittedBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_committed_block_timestamp",
			Help:      "Unix timestamp of the last committed block",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordBlockCommitted records a committed block.
func RecordBlockCommitted(height int64, seconds float64) {
	DefaultMetrics.BlocksScanned.Inc()
	DefaultMetrics.ScanHeight.Set(float64(height))
	DefaultMetrics.BlockProcessingDur.Observe(seconds)
	DefaultMetrics.LastCommittedBlock.Set(float64(time.Now().Unix()))
}

// RecordChainTip updates the chain tip gauge.
func RecordChainTip(height int64) {
	DefaultMetrics.ChainTipHeight.Set(float64(height))
}

// RecordOperation records one operation verdict.
func RecordOperation(kind string, valid bool, reason string) {
	if valid {
		DefaultMetrics.OperationsAccepted.WithLabelValues(kind).Inc()
		if kind == "deploy" {
			DefaultMetrics.TokensDeployed.Inc()
		}
		return
	}
	DefaultMetrics.OperationsRejected.WithLabelValues(kind, reason).Inc()
}

// RecordScanFault records a fatal scanner fault.
func RecordScanFault(kind string) {
	DefaultMetrics.ScanFaults.WithLabelValues(kind).Inc()
}

// RecordReconciliation records one reconciliation comparison.
func RecordReconciliation(verified bool) {
	if verified {
		DefaultMetrics.TicksVerified.Inc()
	} else {
		DefaultMetrics.DiscrepanciesFound.Inc()
	}
}

// RecordReconciliationRun records one reconciliation sweep.
func RecordReconciliationRun() {
	DefaultMetrics.ReconciliationRuns.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordRPCLatency records chain RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
