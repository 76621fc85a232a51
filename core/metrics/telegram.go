package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramUpdatesTotal,
		telegramSendFailuresTotal,
		telegramRateLimitedTotal,
	)
}

var (
	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound updates by kind.",
		},
		[]string{"kind"},
	)

	telegramSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_send_failures_total",
			Help: "Outbound Bot API calls that failed after all retries.",
		},
		[]string{"action"},
	)

	telegramRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limited_total",
			Help: "Updates dropped by the per-user rate limiter.",
		},
	)
)

func IncUpdate(kind string) {
	telegramUpdatesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncSendFailure(action string) {
	telegramSendFailuresTotal.WithLabelValues(norm(action)).Inc()
}

func IncRateLimited() {
	telegramRateLimitedTotal.Inc()
}
