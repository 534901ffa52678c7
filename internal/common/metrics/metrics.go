// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Total number of dispatch cycles by outcome",
		},
		[]string{"status"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_emails_sent_total",
			Help: "Total number of emails sent by type",
		},
		[]string{"email_type"},
	)

	EmailSendFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_email_send_failures_total",
			Help: "Total number of failed email sends by type",
		},
		[]string{"email_type"},
	)

	DispatchCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "dispatch_cycle_duration_seconds",
			Help: "Duration of a full dispatch cycle in seconds",
		},
	)

	WatermarkUpdateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_watermark_update_failures_total",
			Help: "Watermark writes that failed after a confirmed send",
		},
	)

	AuditLogFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_audit_log_failures_total",
			Help: "Best-effort audit appends that failed",
		},
	)
)
