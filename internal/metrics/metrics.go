// ============================================================================
// Falcon-SQL Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose scheduler/engine metrics for Prometheus
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation,
//   Errors), scoped to the scheduler's per-client fairness model rather than
//   a generic job queue.
//
// Metric Categories:
//
//   1. Statement Counters - Cumulative, monotonically increasing:
//      - sql_statements_submitted_total: Total statement batches submitted
//      - sql_dispatch_total: Total batches dispatched to a worker
//      - sql_statements_completed_total: Total batches completed successfully
//      - sql_statements_failed_total: Total batches that returned an error
//      - sql_clients_disconnected_total: Total clients that disconnected
//
//   2. Performance Metrics (Histogram) - Distribution stats:
//      - sql_dispatch_latency_seconds: time a worker spends executing a batch
//
//   3. Status Metrics (Gauge) - Instantaneous values:
//      - sql_recovery_time_seconds: Last WAL-replay recovery time
//      - sql_queue_depth: Sum of queued Jobs across all clients
//      - sql_open_transactions: Number of clients with an open transaction
//
// Use Cases:
//
//   Alerting:
//   - sql_dispatch_latency_seconds > 5s  → Performance degradation
//   - sql_statements_failed_total rate increase → Error rate alert
//   - sql_queue_depth continuous growth → Insufficient worker capacity
//   - sql_recovery_time_seconds > 3s → Recovery SLA breach
//
//   Capacity Planning:
//   - sql_statements_completed_total / time → Throughput trends
//   - sql_open_transactions vs pool size → Transaction-channel saturation risk
//
// Prometheus Query Examples:
//
//   # Statements per minute
//   rate(sql_statements_completed_total[1m])
//
//   # 95th percentile dispatch latency
//   histogram_quantile(0.95, sql_dispatch_latency_seconds_bucket)
//
//   # Error rate
//   rate(sql_statements_failed_total[5m]) / rate(sql_dispatch_total[5m])
//
// HTTP Endpoint:
//   Exposed via /metrics endpoint, scraped by Prometheus. Default port 9090.
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the scheduler and engine.
type Collector struct {
	statementsSubmitted prometheus.Counter
	dispatched          prometheus.Counter
	completed           prometheus.Counter
	failed              prometheus.Counter
	disconnected        prometheus.Counter

	dispatchLatency prometheus.Histogram
	recoveryTime    prometheus.Gauge

	queueDepth       prometheus.Gauge
	openTransactions prometheus.Gauge

	mu sync.Mutex
}

// NewCollector creates a new metrics collector and registers it with the
// default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		statementsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sql_statements_submitted_total",
			Help: "Total number of statement batches submitted by clients",
		}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sql_dispatch_total",
			Help: "Total number of Jobs dispatched to a worker",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sql_statements_completed_total",
			Help: "Total number of statement batches completed successfully",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sql_statements_failed_total",
			Help: "Total number of statement batches that returned an error",
		}),
		disconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sql_clients_disconnected_total",
			Help: "Total number of clients that disconnected",
		}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sql_dispatch_latency_seconds",
			Help:    "Time a worker spends executing one statement batch, in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		recoveryTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sql_recovery_time_seconds",
			Help: "Time taken for the last snapshot+WAL recovery, in seconds",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sql_queue_depth",
			Help: "Sum of queued Jobs across all client queues",
		}),
		openTransactions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sql_open_transactions",
			Help: "Number of clients with an open transaction",
		}),
	}

	prometheus.MustRegister(c.statementsSubmitted)
	prometheus.MustRegister(c.dispatched)
	prometheus.MustRegister(c.completed)
	prometheus.MustRegister(c.failed)
	prometheus.MustRegister(c.disconnected)
	prometheus.MustRegister(c.dispatchLatency)
	prometheus.MustRegister(c.recoveryTime)
	prometheus.MustRegister(c.queueDepth)
	prometheus.MustRegister(c.openTransactions)

	return c
}

// RecordSubmit records a statement batch submitted by a client.
func (c *Collector) RecordSubmit() {
	c.statementsSubmitted.Inc()
}

// RecordDispatch records a Job handed to a worker (or transaction channel).
func (c *Collector) RecordDispatch() {
	c.dispatched.Inc()
}

// RecordCompleted records a successfully completed batch with its latency.
func (c *Collector) RecordCompleted(latencySeconds float64) {
	c.completed.Inc()
	c.dispatchLatency.Observe(latencySeconds)
}

// RecordFailed records a batch that returned an execution error.
func (c *Collector) RecordFailed() {
	c.failed.Inc()
}

// RecordDisconnect records a client disconnecting.
func (c *Collector) RecordDisconnect() {
	c.disconnected.Inc()
}

// SetRecoveryTime sets the last-recovery-time gauge.
func (c *Collector) SetRecoveryTime(seconds float64) {
	c.recoveryTime.Set(seconds)
}

// UpdateSchedulerStats updates the scheduler's instantaneous gauges.
func (c *Collector) UpdateSchedulerStats(queueDepth, openTransactions int) {
	c.queueDepth.Set(float64(queueDepth))
	c.openTransactions.Set(float64(openTransactions))
}

// StartServer starts the Prometheus metrics HTTP server on port.
func StartServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, mux)
}
