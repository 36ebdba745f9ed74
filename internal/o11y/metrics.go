package o11y

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RidesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rides_started_total",
			Help: "Total number of rides started",
		},
	)

	RidesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rides_completed_total",
			Help: "Total number of rides completed, by penalty reason",
		},
		[]string{"penalty_reason"},
	)

	OTPIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "Total number of unlock codes handed out, fresh or reused",
		},
		[]string{"kind"},
	)

	OTPVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total number of unlock code verifications, by result",
		},
		[]string{"result"},
	)

	PaymentConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirmations_total",
			Help: "Total number of asynchronous ride payment confirmations, by result",
		},
		[]string{"result"},
	)
)

var registered sync.Map

// RegisterDomainMetrics registers the domain counters with reg. Registering
// with the same registry twice is a no-op.
func RegisterDomainMetrics(reg *prometheus.Registry) {
	if _, loaded := registered.LoadOrStore(reg, struct{}{}); loaded {
		return
	}
	reg.MustRegister(RidesStarted, RidesCompleted, OTPIssued, OTPVerifications, PaymentConfirmations)
}
