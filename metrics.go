package credlock

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a single engine counter or histogram.
//
// IDs are dense and stable within a release: exporters iterate
// [0, metricIDCount) and rely on the order below.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that issued a session.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts logins rejected for bad credentials or
	// an inactive account.
	MetricLoginFailure
	// MetricLoginRateLimited counts logins refused by the throttle or
	// the IP reputation check before credentials were evaluated.
	MetricLoginRateLimited
	// MetricMFARequired counts logins suspended pending an MFA proof.
	MetricMFARequired
	// MetricMFASuccess counts completed MFA verifications, inline or
	// via a challenge.
	MetricMFASuccess
	// MetricMFAFailure counts rejected MFA proofs.
	MetricMFAFailure
	// MetricRefreshSuccess counts rotations that issued a new pair.
	MetricRefreshSuccess
	// MetricRefreshReuseDetected counts rotations that presented an
	// already-consumed refresh token.
	MetricRefreshReuseDetected
	// MetricRefreshFailure counts rotations rejected for any other
	// reason (unknown, expired, revoked, malformed).
	MetricRefreshFailure
	// MetricRefreshRateLimited counts rotations refused by the
	// per-session throttle.
	MetricRefreshRateLimited
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts logout-all operations (not sessions).
	MetricLogoutAll
	// MetricSessionInvalidated counts sessions torn down outside the
	// logout paths: reuse sweeps, inactive-account teardown, explicit
	// InvalidateSession calls.
	MetricSessionInvalidated
	// MetricTokenRevoked counts access-token fingerprints written to
	// the revocation registry.
	MetricTokenRevoked
	// MetricAuthenticateSuccess counts access tokens accepted by
	// Authenticate.
	MetricAuthenticateSuccess
	// MetricAuthenticateFailure counts access tokens rejected by
	// Authenticate.
	MetricAuthenticateFailure
	// MetricAuthenticateLatency is the Authenticate latency histogram.
	// It has no counter semantics; only Observe feeds it.
	MetricAuthenticateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line so hot
// counters incremented from different goroutines do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the in-process counter set. All methods are safe for
// concurrent use and are no-ops on a nil receiver, so callers never
// need to guard instrumentation sites.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and, when
// latency histograms are enabled, the raw (non-cumulative) buckets.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a counter set honoring cfg. Latency histograms
// require the metric set itself to be enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the Authenticate histogram is being
// recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter. Unknown IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the latency histogram. Only
// MetricAuthenticateLatency accepts observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthenticateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current counter value, or zero for unknown IDs.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter (and histogram, when enabled) into
// fresh maps. The snapshot is not atomic across counters; individual
// values are.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthenticateLatency].buckets[i])
		}
		s.Histograms[MetricAuthenticateLatency] = buckets
	}

	return s
}

// bucketIndex maps a duration onto the fixed bucket boundaries
// 5/10/25/50/100/250/500ms, with the last bucket catching everything
// slower.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
