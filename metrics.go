package stringbot

import "sync/atomic"

// MetricID defines a public type used by string-bot APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricFlowStarted is an exported constant or variable used by the session engine.
	MetricFlowStarted MetricID = iota
	// MetricFlowCompleted is an exported constant or variable used by the session engine.
	MetricFlowCompleted
	// MetricFlowAborted is an exported constant or variable used by the session engine.
	MetricFlowAborted
	// MetricFlowAbandoned is an exported constant or variable used by the session engine.
	MetricFlowAbandoned
	// MetricFlowTimeout is an exported constant or variable used by the session engine.
	MetricFlowTimeout
	// MetricRateLimitHit is an exported constant or variable used by the session engine.
	MetricRateLimitHit
	// MetricValidationFailure is an exported constant or variable used by the session engine.
	MetricValidationFailure
	// MetricCodeRequested is an exported constant or variable used by the session engine.
	MetricCodeRequested
	// MetricCodeRejected is an exported constant or variable used by the session engine.
	MetricCodeRejected
	// MetricSecondFactorRequired is an exported constant or variable used by the session engine.
	MetricSecondFactorRequired
	// MetricSecondFactorRejected is an exported constant or variable used by the session engine.
	MetricSecondFactorRejected
	// MetricProviderFailure is an exported constant or variable used by the session engine.
	MetricProviderFailure
	// MetricSessionStored is an exported constant or variable used by the session engine.
	MetricSessionStored
	// MetricSessionRevoked is an exported constant or variable used by the session engine.
	MetricSessionRevoked
	// MetricCapacityExceeded is an exported constant or variable used by the session engine.
	MetricCapacityExceeded
	// MetricIntegrityFailure is an exported constant or variable used by the session engine.
	MetricIntegrityFailure
	// MetricInternalError is an exported constant or variable used by the session engine.
	MetricInternalError

	metricCount
)

var metricNames = [metricCount]string{
	MetricFlowStarted:          "flow_started",
	MetricFlowCompleted:        "flow_completed",
	MetricFlowAborted:          "flow_aborted",
	MetricFlowAbandoned:        "flow_abandoned",
	MetricFlowTimeout:          "flow_timeout",
	MetricRateLimitHit:         "rate_limit_hit",
	MetricValidationFailure:    "validation_failure",
	MetricCodeRequested:        "code_requested",
	MetricCodeRejected:         "code_rejected",
	MetricSecondFactorRequired: "second_factor_required",
	MetricSecondFactorRejected: "second_factor_rejected",
	MetricProviderFailure:      "provider_failure",
	MetricSessionStored:        "session_stored",
	MetricSessionRevoked:       "session_revoked",
	MetricCapacityExceeded:     "capacity_exceeded",
	MetricIntegrityFailure:     "integrity_failure",
	MetricInternalError:        "internal_error",
}

// Name describes the name operation and its observable behavior.
func (id MetricID) Name() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics is a fixed set of lock-free counters. All methods are safe for
// concurrent use.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{}
}

// Inc describes the inc operation and its observable behavior.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
