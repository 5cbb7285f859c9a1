package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		checkoutsTotal,
		callbackRequests,
		callbackDuration,
		paymentsConfirmedTotal,
		paymentsRevenueTotal,
		pendingPrunedTotal,
	)
}

var (
	// result: ok|fail
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_checkouts_total",
			Help: "Checkouts started, by tariff and result.",
		},
		[]string{"tariff", "result"},
	)

	// result: ok|rejected|error
	// reason: bad_signature|unknown_invoice|amount_mismatch|malformed|storage
	callbackRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callback_requests_total",
			Help: "Gateway result notifications by result and bounded reason.",
		},
		[]string{"result", "reason"},
	)

	callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_callback_duration_seconds",
			Help:    "Duration of the result notification handler in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"result"},
	)

	// method: gateway|promo|card
	paymentsConfirmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Ledger records appended, by payment method.",
		},
		[]string{"method"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Monetary value of confirmed gateway payments, by method.",
		},
		[]string{"method"},
	)

	pendingPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_pending_pruned_total",
			Help: "Stale pending intents removed by the pruner.",
		},
	)
)

func IncCheckout(tariff string, ok bool) {
	checkoutsTotal.WithLabelValues(norm(tariff), okLabel(ok)).Inc()
}

// ObserveCallback records one handled notification. reason is empty on success.
func ObserveCallback(result, reason string, seconds float64) {
	callbackRequests.WithLabelValues(norm(result), norm(reason)).Inc()
	callbackDuration.WithLabelValues(norm(result)).Observe(seconds)
}

func IncPaymentConfirmed(method string, amount decimal.Decimal) {
	paymentsConfirmedTotal.WithLabelValues(norm(method)).Inc()
	f, _ := amount.Float64()
	paymentsRevenueTotal.WithLabelValues(norm(method)).Add(f)
}

func AddPendingPruned(n int) {
	pendingPrunedTotal.Add(float64(n))
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
