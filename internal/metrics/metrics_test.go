package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.statementsSubmitted, "statementsSubmitted counter should be initialized")
	assert.NotNil(t, collector.dispatched, "dispatched counter should be initialized")
	assert.NotNil(t, collector.completed, "completed counter should be initialized")
	assert.NotNil(t, collector.failed, "failed counter should be initialized")
	assert.NotNil(t, collector.disconnected, "disconnected counter should be initialized")
	assert.NotNil(t, collector.dispatchLatency, "dispatchLatency histogram should be initialized")
	assert.NotNil(t, collector.recoveryTime, "recoveryTime gauge should be initialized")
	assert.NotNil(t, collector.queueDepth, "queueDepth gauge should be initialized")
	assert.NotNil(t, collector.openTransactions, "openTransactions gauge should be initialized")
}

func TestRecordSubmit(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordSubmit()
	}, "RecordSubmit should not panic")

	for i := 0; i < 5; i++ {
		collector.RecordSubmit()
	}
}

func TestRecordDispatch(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordDispatch()
	}, "RecordDispatch should not panic")

	for i := 0; i < 10; i++ {
		collector.RecordDispatch()
	}
}

func TestRecordCompleted(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	latencies := []float64{0.001, 0.01, 0.1, 1.0, 5.0}

	for _, latency := range latencies {
		assert.NotPanics(t, func() {
			collector.RecordCompleted(latency)
		}, "RecordCompleted should not panic with latency %f", latency)
	}
}

func TestRecordFailed(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordFailed()
	}, "RecordFailed should not panic")

	for i := 0; i < 3; i++ {
		collector.RecordFailed()
	}
}

func TestRecordDisconnect(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordDisconnect()
	}, "RecordDisconnect should not panic")

	for i := 0; i < 2; i++ {
		collector.RecordDisconnect()
	}
}

func TestSetRecoveryTime(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	recoveryTimes := []float64{0.001, 0.5, 1.5, 3.0}

	for _, rt := range recoveryTimes {
		assert.NotPanics(t, func() {
			collector.SetRecoveryTime(rt)
		}, "SetRecoveryTime should not panic with time %f", rt)
	}
}

func TestUpdateSchedulerStats(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	testCases := []struct {
		name        string
		queueDepth  int
		openTxns    int
	}{
		{"zero values", 0, 0},
		{"normal values", 10, 5},
		{"high queue depth", 100, 8},
		{"high open txns", 5, 50},
		{"equal values", 20, 20},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				collector.UpdateSchedulerStats(tc.queueDepth, tc.openTxns)
			}, "UpdateSchedulerStats should not panic")
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)

	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordSubmit()
			collector.RecordDispatch()
			collector.RecordCompleted(0.1)
			collector.UpdateSchedulerStats(10, 5)
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	// Test multiple collector instances work independently
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// Second collector will panic due to duplicate registration
	// This is expected: a process should have only one collector
	assert.Panics(t, func() {
		NewCollector()
	}, "Creating a second collector should panic due to duplicate registration")
}

func TestMetricOperationSequence(t *testing.T) {
	// Test a typical statement-batch handling sequence
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		// 1. Statements submitted
		collector.RecordSubmit()
		collector.UpdateSchedulerStats(1, 0)

		// 2. Job dispatched
		collector.RecordDispatch()
		collector.UpdateSchedulerStats(0, 0)

		// 3. Batch completed
		collector.RecordCompleted(0.5)
		collector.UpdateSchedulerStats(0, 0)
	}, "Complete statement-batch lifecycle should not panic")
}

func TestMetricOperationWithFailure(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordSubmit()
		collector.RecordDispatch()
		collector.RecordFailed()
		collector.RecordDisconnect()
	}, "Statement failure scenario should not panic")
}

func TestRecoveryTimeScenario(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.SetRecoveryTime(2.5)
		collector.UpdateSchedulerStats(50, 0)
		collector.RecordDispatch()
		collector.RecordCompleted(0.1)
	}, "Recovery scenario should not panic")
}

func TestZeroAndNegativeValues(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordCompleted(0.0)          // zero latency
		collector.SetRecoveryTime(0.0)          // zero recovery time
		collector.UpdateSchedulerStats(0, 0)    // empty queue
		collector.UpdateSchedulerStats(-1, -1) // negative values (shouldn't happen)
	}, "Edge case values should not panic")
}
