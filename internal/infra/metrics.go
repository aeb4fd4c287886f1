package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	ordersCreated   atomic.Uint64
	subordersPlaced atomic.Uint64
	ordersFilled    atomic.Uint64
	ordersCancelled atomic.Uint64
	retries         atomic.Uint64
	triggersFired   atomic.Uint64
	errorsTotal     atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordOrderCreated records a new logical order.
func (m *Metrics) RecordOrderCreated() {
	m.ordersCreated.Add(1)
}

// RecordSuborderPlaced records one exchange-visible order placement.
func (m *Metrics) RecordSuborderPlaced() {
	m.subordersPlaced.Add(1)
}

// RecordOrderFilled records a fully filled logical order.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordOrderCancelled records a cancelled logical order.
func (m *Metrics) RecordOrderCancelled() {
	m.ordersCancelled.Add(1)
}

// RecordRetry records one retried exchange call.
func (m *Metrics) RecordRetry() {
	m.retries.Add(1)
}

// RecordTriggerFired records one fired price trigger.
func (m *Metrics) RecordTriggerFired() {
	m.triggersFired.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	OrdersCreated   uint64
	SubordersPlaced uint64
	OrdersFilled    uint64
	OrdersCancelled uint64
	Retries         uint64
	TriggersFired   uint64
	ErrorsTotal     uint64
	Timestamp       time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		OrdersCreated:   m.ordersCreated.Load(),
		SubordersPlaced: m.subordersPlaced.Load(),
		OrdersFilled:    m.ordersFilled.Load(),
		OrdersCancelled: m.ordersCancelled.Load(),
		Retries:         m.retries.Load(),
		TriggersFired:   m.triggersFired.Load(),
		ErrorsTotal:     m.errorsTotal.Load(),
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.ordersCreated.Store(0)
	m.subordersPlaced.Store(0)
	m.ordersFilled.Store(0)
	m.ordersCancelled.Store(0)
	m.retries.Store(0)
	m.triggersFired.Store(0)
	m.errorsTotal.Store(0)
}
