package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MonitorCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_cycles_total",
			Help: "Total number of poll cycles executed (count)",
		},
		[]string{"status"},
	)

	MonitorCycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_ms",
			Help:    "Duration of a poll cycle in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	MonitorConsecutiveErrors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_consecutive_errors",
			Help: "Current number of consecutive failed poll cycles (count)",
		},
	)

	MonitorRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_running",
			Help: "Whether the poll loop is running (0 or 1)",
		},
	)

	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_login_attempts_total",
			Help: "Total number of manual login attempts by outcome (count)",
		},
		[]string{"result"},
	)

	CandidatesExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_candidates_total",
			Help: "Total number of raw items seen by the extraction engine (count)",
		},
		[]string{"result"},
	)

	MessagesIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "history_messages_ingested_total",
			Help: "Total number of new messages appended to history (count)",
		},
	)

	DuplicatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "history_duplicates_total",
			Help: "Total number of candidates collapsed as duplicates (count)",
		},
	)

	HistorySize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "history_size",
			Help: "Number of messages currently retained (count)",
		},
	)

	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Number of connected subscribers (count)",
		},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_published_total",
			Help: "Total number of events published by kind (count)",
		},
		[]string{"event"},
	)

	EventDeliveryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_delivery_failures_total",
			Help: "Total number of failed per-subscriber deliveries (count)",
		},
		[]string{"reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	RelayPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_publish_total",
			Help: "Total number of events forwarded to external relays (count)",
		},
		[]string{"relay", "status"},
	)
)

func RegisterMonitorMetrics() {
	prometheus.MustRegister(MonitorCyclesTotal)
	prometheus.MustRegister(MonitorCycleDuration)
	prometheus.MustRegister(MonitorConsecutiveErrors)
	prometheus.MustRegister(MonitorRunning)
	prometheus.MustRegister(LoginAttemptsTotal)
	prometheus.MustRegister(CandidatesExtractedTotal)
	prometheus.MustRegister(MessagesIngestedTotal)
	prometheus.MustRegister(DuplicatesTotal)
	prometheus.MustRegister(HistorySize)
}

func RegisterBroadcastMetrics() {
	prometheus.MustRegister(SubscribersActive)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(EventDeliveryFailuresTotal)
	prometheus.MustRegister(RelayPublishTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveCycle(duration time.Duration, status string) {
	MonitorCyclesTotal.WithLabelValues(status).Inc()
	MonitorCycleDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func SetConsecutiveErrors(count int) {
	MonitorConsecutiveErrors.Set(float64(count))
}

func SetMonitorRunning(running bool) {
	if running {
		MonitorRunning.Set(1)
		return
	}
	MonitorRunning.Set(0)
}

func IncLoginAttempt(result string) {
	LoginAttemptsTotal.WithLabelValues(result).Inc()
}

func AddCandidates(result string, n int) {
	if n > 0 {
		CandidatesExtractedTotal.WithLabelValues(result).Add(float64(n))
	}
}

func RecordIngest(added, duplicates, size int) {
	MessagesIngestedTotal.Add(float64(added))
	DuplicatesTotal.Add(float64(duplicates))
	HistorySize.Set(float64(size))
}

func SetHistorySize(size int) {
	HistorySize.Set(float64(size))
}

func SetSubscribers(count int) {
	SubscribersActive.Set(float64(count))
}

func IncEventPublished(kind string) {
	EventsPublishedTotal.WithLabelValues(kind).Inc()
}

func IncDeliveryFailure(reason string) {
	EventDeliveryFailuresTotal.WithLabelValues(reason).Inc()
}

func IncRelayPublish(relay, status string) {
	RelayPublishTotal.WithLabelValues(relay, status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
