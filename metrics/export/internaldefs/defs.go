package internaldefs

import (
	credlock "github.com/credlock/credlock"
)

// CounterDef binds a core counter ID to its stable exported name.
type CounterDef struct {
	ID   credlock.MetricID
	Name string
	Help string
}

// HistogramDef binds a core histogram ID to its stable exported name.
type HistogramDef struct {
	ID   credlock.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order. Exporters
// iterate this slice so Prometheus and OTel output stay in lockstep.
var CounterDefs = []CounterDef{
	{ID: credlock.MetricLoginSuccess, Name: "credlock_login_success_total", Help: "Successful logins."},
	{ID: credlock.MetricLoginFailure, Name: "credlock_login_failure_total", Help: "Failed logins."},
	{ID: credlock.MetricLoginRateLimited, Name: "credlock_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: credlock.MetricMFARequired, Name: "credlock_mfa_required_total", Help: "Logins suspended pending an MFA proof."},
	{ID: credlock.MetricMFASuccess, Name: "credlock_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: credlock.MetricMFAFailure, Name: "credlock_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: credlock.MetricRefreshSuccess, Name: "credlock_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: credlock.MetricRefreshReuseDetected, Name: "credlock_refresh_reuse_detected_total", Help: "Refresh token reuses detected."},
	{ID: credlock.MetricRefreshFailure, Name: "credlock_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: credlock.MetricRefreshRateLimited, Name: "credlock_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: credlock.MetricLogout, Name: "credlock_logout_total", Help: "Single-session logouts."},
	{ID: credlock.MetricLogoutAll, Name: "credlock_logout_all_total", Help: "Logout-all operations."},
	{ID: credlock.MetricSessionInvalidated, Name: "credlock_session_invalidated_total", Help: "Session invalidation operations."},
	{ID: credlock.MetricTokenRevoked, Name: "credlock_token_revoked_total", Help: "Access-token fingerprints written to the revocation registry."},
	{ID: credlock.MetricAuthenticateSuccess, Name: "credlock_authenticate_success_total", Help: "Access tokens accepted by Authenticate."},
	{ID: credlock.MetricAuthenticateFailure, Name: "credlock_authenticate_failure_total", Help: "Access tokens rejected by Authenticate."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: credlock.MetricAuthenticateLatency, Name: "credlock_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching the
// core's fixed millisecond boundaries.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix carries the same bounds as identifier-safe
// suffixes for backends that cannot label series.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
