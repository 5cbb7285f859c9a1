package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		gateChecksTotal,
		notificationsTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	// decision: allow|deny
	gateChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_gate_checks_total",
			Help: "Conversation gate decisions for incoming chat messages.",
		},
		[]string{"decision"},
	)

	// result: queued|dropped|sent|failed
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_payment_notifications_total",
			Help: "Payment confirmation messages by delivery result.",
		},
		[]string{"result"},
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncGateCheck(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	gateChecksTotal.WithLabelValues(decision).Inc()
}

func IncNotification(result string) {
	notificationsTotal.WithLabelValues(norm(result)).Inc()
}
