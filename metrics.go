package authcore

import "sync/atomic"

// MetricID indexes the engine's internal counters.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricSessionCreated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRevoke
	MetricRevokeAll
	MetricOTPStarted
	MetricOTPDeliveryFailure
	MetricOTPVerifySuccess
	MetricOTPVerifyFailure
	MetricResetCapabilityIssued
	MetricResetRedeemSuccess
	MetricResetRedeemFailure

	metricCount
)

var metricNames = [metricCount]string{
	"login_success",
	"login_failure",
	"session_created",
	"refresh_success",
	"refresh_failure",
	"refresh_reuse_detected",
	"revoke",
	"revoke_all",
	"otp_started",
	"otp_delivery_failure",
	"otp_verify_success",
	"otp_verify_failure",
	"reset_capability_issued",
	"reset_redeem_success",
	"reset_redeem_failure",
}

type metricsTable struct {
	counters [metricCount]atomic.Uint64
}

func newMetricsTable() *metricsTable {
	return &metricsTable{}
}

func (m *metricsTable) inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot returns the current counter values keyed by metric name.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	snap := make(map[string]uint64, metricCount)
	if e == nil || e.metrics == nil {
		return snap
	}
	for i := MetricID(0); i < metricCount; i++ {
		snap[metricNames[i]] = e.metrics.counters[i].Load()
	}
	return snap
}
