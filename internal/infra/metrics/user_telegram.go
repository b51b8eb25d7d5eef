package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		quotaExceededTotal,
		voiceMessagesTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered.",
		},
	)

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

	quotaExceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "free_quota_exceeded_total",
			Help: "Messages refused because the free message quota was used up.",
		},
	)

	voiceMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_messages_total",
			Help: "Voice notes by direction (in, out).",
		},
		[]string{"direction"},
	)
)

func IncUsersRegistered() {
	usersRegisteredTotal.Inc()
}

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncQuotaExceeded() {
	quotaExceededTotal.Inc()
}

func IncVoiceMessage(direction string) {
	voiceMessagesTotal.WithLabelValues(norm(direction)).Inc()
}
