package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects chat runtime metrics.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	TurnsAccepted    int64
	TurnsPersisted   int64
	PersistFailures  int64
	Hydrations       int64
	DegradedSessions int64
	ImagesGenerated  int64

	// Gauges
	ActiveSessions int64
	PendingWrites  int64

	// Histograms (simplified)
	persistLatencies []time.Duration
	inferLatencies   []time.Duration
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		persistLatencies: make([]time.Duration, 0, 1000),
		inferLatencies:   make([]time.Duration, 0, 1000),
	}
}

// IncTurnsAccepted increments the accepted turns counter and pending gauge.
func (m *Metrics) IncTurnsAccepted() {
	atomic.AddInt64(&m.TurnsAccepted, 1)
	atomic.AddInt64(&m.PendingWrites, 1)
}

// IncTurnsPersisted increments the persisted turns counter.
func (m *Metrics) IncTurnsPersisted() {
	atomic.AddInt64(&m.TurnsPersisted, 1)
	atomic.AddInt64(&m.PendingWrites, -1)
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	atomic.AddInt64(&m.PersistFailures, 1)
	atomic.AddInt64(&m.PendingWrites, -1)
}

// IncHydrations increments the cold-start hydration counter.
func (m *Metrics) IncHydrations() {
	atomic.AddInt64(&m.Hydrations, 1)
}

// IncDegradedSessions increments the degraded-session counter.
func (m *Metrics) IncDegradedSessions() {
	atomic.AddInt64(&m.DegradedSessions, 1)
}

// IncImagesGenerated increments the generated images counter.
func (m *Metrics) IncImagesGenerated() {
	atomic.AddInt64(&m.ImagesGenerated, 1)
}

// SessionOpened increments the active sessions gauge.
func (m *Metrics) SessionOpened() {
	atomic.AddInt64(&m.ActiveSessions, 1)
}

// SessionClosed decrements the active sessions gauge.
func (m *Metrics) SessionClosed() {
	atomic.AddInt64(&m.ActiveSessions, -1)
}

// RecordPersistLatency records a durable write latency.
func (m *Metrics) RecordPersistLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLatencies = append(m.persistLatencies, d)
}

// RecordInferenceLatency records a model completion latency.
func (m *Metrics) RecordInferenceLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inferLatencies = append(m.inferLatencies, d)
}

// GetSummary returns a summary of collected metrics.
func (m *Metrics) GetSummary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := map[string]interface{}{
		"turns_accepted":    atomic.LoadInt64(&m.TurnsAccepted),
		"turns_persisted":   atomic.LoadInt64(&m.TurnsPersisted),
		"persist_failures":  atomic.LoadInt64(&m.PersistFailures),
		"hydrations":        atomic.LoadInt64(&m.Hydrations),
		"degraded_sessions": atomic.LoadInt64(&m.DegradedSessions),
		"images_generated":  atomic.LoadInt64(&m.ImagesGenerated),
		"active_sessions":   atomic.LoadInt64(&m.ActiveSessions),
		"pending_writes":    atomic.LoadInt64(&m.PendingWrites),
	}

	if len(m.persistLatencies) > 0 {
		var total time.Duration
		for _, d := range m.persistLatencies {
			total += d
		}
		summary["avg_persist_latency_ms"] = total.Milliseconds() / int64(len(m.persistLatencies))
	}

	if len(m.inferLatencies) > 0 {
		var total time.Duration
		for _, d := range m.inferLatencies {
			total += d
		}
		summary["avg_inference_latency_ms"] = total.Milliseconds() / int64(len(m.inferLatencies))
	}

	return summary
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.TurnsAccepted, 0)
	atomic.StoreInt64(&m.TurnsPersisted, 0)
	atomic.StoreInt64(&m.PersistFailures, 0)
	atomic.StoreInt64(&m.Hydrations, 0)
	atomic.StoreInt64(&m.DegradedSessions, 0)
	atomic.StoreInt64(&m.ImagesGenerated, 0)
	atomic.StoreInt64(&m.ActiveSessions, 0)
	atomic.StoreInt64(&m.PendingWrites, 0)

	m.persistLatencies = m.persistLatencies[:0]
	m.inferLatencies = m.inferLatencies[:0]
}
