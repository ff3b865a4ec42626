package authkit

import (
	"sync"
	"sync/atomic"
)

// Auth event names counted by the identity resolver and the polish gate.
const (
	MetricRegisterSuccess      = "auth.register.success"
	MetricRegisterFailure      = "auth.register.failure"
	MetricLoginSuccess         = "auth.login.success"
	MetricLoginFailure         = "auth.login.failure"
	MetricOAuthStart           = "auth.oauth.start"
	MetricOAuthSuccess         = "auth.oauth.success"
	MetricOAuthFailure         = "auth.oauth.failure"
	MetricGoogleIDTokenSuccess = "auth.google_id_token.success"
	MetricGoogleIDTokenFailure = "auth.google_id_token.failure"
	MetricIdentitySuccess      = "auth.identity.success"
	MetricIdentityFailure      = "auth.identity.failure"
	MetricPolishBringOwnKey    = "polish.byok"
	MetricPolishAllowed        = "polish.allowed"
	MetricPolishRejectedToken  = "polish.rejected.token"
	MetricPolishRejectedQuota  = "polish.rejected.quota"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

type discardMetrics struct{}

func (discardMetrics) Increment(string) {}

func metricsOrDiscard(recorder MetricsRecorder) MetricsRecorder {
	if recorder == nil {
		return discardMetrics{}
	}
	return recorder
}

// CounterMetrics implements MetricsRecorder with one atomic counter per event.
type CounterMetrics struct {
	mutex    sync.RWMutex
	counters map[string]*atomic.Int64
}

// NewCounterMetrics constructs an in-memory metrics recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counters: make(map[string]*atomic.Int64)}
}

func (recorder *CounterMetrics) Increment(event string) {
	recorder.counter(event).Add(1)
}

func (recorder *CounterMetrics) counter(event string) *atomic.Int64 {
	recorder.mutex.RLock()
	counter, ok := recorder.counters[event]
	recorder.mutex.RUnlock()
	if ok {
		return counter
	}

	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	if counter, ok = recorder.counters[event]; !ok {
		counter = &atomic.Int64{}
		recorder.counters[event] = counter
	}
	return counter
}

// Count returns the current value for event, zero when it was never recorded.
func (recorder *CounterMetrics) Count(event string) int64 {
	recorder.mutex.RLock()
	defer recorder.mutex.RUnlock()
	if counter, ok := recorder.counters[event]; ok {
		return counter.Load()
	}
	return 0
}

// Snapshot copies every counter that has been recorded at least once.
func (recorder *CounterMetrics) Snapshot() map[string]int64 {
	recorder.mutex.RLock()
	defer recorder.mutex.RUnlock()
	values := make(map[string]int64, len(recorder.counters))
	for event, counter := range recorder.counters {
		values[event] = counter.Load()
	}
	return values
}
